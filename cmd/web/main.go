// Command web runs the Music-Mediator-Go HTTP server and a handful of
// one-shot commands for talking to the catalog from a terminal. Settings
// come from a TOML file, a .env file and the process environment, in that
// order of increasing precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"Music-Mediator-Go/pkg/apperrors"
	"Music-Mediator-Go/pkg/config"
	"Music-Mediator-Go/pkg/logging"
)

var version = "dev"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "music-mediator",
		Usage:   "Search a streaming catalog through a cached client-credentials token",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars("MEDIATOR_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			searchCommand(),
			tracksCommand(),
			tokenCommand(),
			configCommand(),
		},
	}
}

// loadConfig reads the file named by --config and checks it. Warnings are
// logged, not returned.
func loadConfig(cmd *cli.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	for _, w := range warnings {
		logger.Warn(w)
	}
	return cfg, logger, nil
}

func newCLIRunner(cmd *cli.Command, history bool) (*Runner, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return NewRunner(RunnerOpts{
		Config:      cfg,
		Logger:      logger,
		Output:      cmd.Root().Writer,
		OpenHistory: history,
	})
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the catalog and print normalized tracks",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 10, Usage: "maximum results"},
			&cli.BoolFlag{Name: "pretty", Usage: "indent JSON output"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
			if query == "" {
				return fmt.Errorf("search query is required: %w", apperrors.ErrInvalidInput)
			}
			r, err := newCLIRunner(cmd, false)
			if err != nil {
				return err
			}
			defer r.Close()
			tracks, err := r.mediator.SearchTracks(ctx, query, int(cmd.Int("limit")))
			if err != nil {
				return err
			}
			return r.writeJSON(tracks, cmd.Bool("pretty"))
		},
	}
}

func tracksCommand() *cli.Command {
	return &cli.Command{
		Name:      "tracks",
		Usage:     "Look up tracks by ID and print them normalized",
		ArgsUsage: "<id> [id...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "pretty", Usage: "indent JSON output"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var ids []string
			for _, a := range cmd.Args().Slice() {
				ids = append(ids, strings.Split(a, ",")...)
			}
			if len(ids) == 0 {
				return fmt.Errorf("at least one track id is required: %w", apperrors.ErrInvalidInput)
			}
			r, err := newCLIRunner(cmd, false)
			if err != nil {
				return err
			}
			defer r.Close()
			tracks, err := r.mediator.LookupTracks(ctx, ids)
			if err != nil {
				return err
			}
			return r.writeJSON(tracks, cmd.Bool("pretty"))
		},
	}
}

// tokenCommand checks the credentials. The access token itself is never
// printed.
func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Fetch an access token and print when it expires",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, err := newCLIRunner(cmd, false)
			if err != nil {
				return err
			}
			defer r.Close()
			tok, err := r.tokens.GetToken(ctx, r.config.Credentials.Credential())
			if err != nil {
				return err
			}
			return r.writeJSON(map[string]any{
				"expiresAt": tok.ExpiresAt.UTC().Format(time.RFC3339),
				"expiresIn": time.Until(tok.ExpiresAt).Round(time.Second).String(),
			}, false)
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the configuration file",
		Commands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "Write the example config to a file",
				ArgsUsage: "[path]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := cmd.Args().First()
					if path == "" {
						path = "config.toml"
					}
					if _, err := os.Stat(path); err == nil {
						if !cmd.Bool("force") {
							return fmt.Errorf("%s already exists, use --force to overwrite", path)
						}
						if err := os.Remove(path); err != nil {
							return err
						}
					} else if !errors.Is(err, os.ErrNotExist) {
						return err
					}
					if err := config.CreateConfigFile(path); err != nil {
						return err
					}
					fmt.Fprintf(cmd.Root().Writer, "wrote %s\n", path)
					return nil
				},
			},
		},
	}
}
