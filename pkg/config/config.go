// Package config loads the application configuration. Values come from the
// embedded example file, then an optional TOML file, then the environment
// (a .env file in the working directory is loaded first when present).
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	"Music-Mediator-Go/pkg/apperrors"
	"Music-Mediator-Go/pkg/auth"
	"Music-Mediator-Go/pkg/provider"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Credentials CredentialsConfig `toml:"credentials"`
	Provider    ProviderConfig    `toml:"provider"`
	Database    DatabaseConfig    `toml:"database"`
	Log         LogConfig         `toml:"log"`
	Sentry      SentryConfig      `toml:"sentry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `toml:"host"`
	Port            int           `toml:"port"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// CredentialsConfig contains the client-credentials pair.
type CredentialsConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// Credential converts the config into an auth.Credential.
func (c CredentialsConfig) Credential() auth.Credential {
	return auth.Credential{ClientID: c.ClientID, ClientSecret: c.ClientSecret}
}

// Auth styles accepted in ProviderConfig.AuthStyle.
const (
	AuthStyleBasic = "basic"
	AuthStyleBody  = "body"
)

// ProviderConfig describes the catalog provider's endpoints.
type ProviderConfig struct {
	TokenURL       string        `toml:"token_url"`
	AuthStyle      string        `toml:"auth_style"`
	ExpiresInField string        `toml:"expires_in_field"`
	ExpiryLeeway   time.Duration `toml:"expiry_leeway"`
	SearchURL      string        `toml:"search_url"`
	TracksURL      string        `toml:"tracks_url"`
	QueryParam     string        `toml:"query_param"`
	CountryCode    string        `toml:"country_code"`
	PageSize       int           `toml:"page_size"`
	Timeout        time.Duration `toml:"timeout"`
}

// OAuthAuthStyle maps AuthStyle onto the oauth2 constant.
func (p ProviderConfig) OAuthAuthStyle() (oauth2.AuthStyle, error) {
	switch strings.ToLower(strings.TrimSpace(p.AuthStyle)) {
	case "", AuthStyleBasic:
		return oauth2.AuthStyleInHeader, nil
	case AuthStyleBody:
		return oauth2.AuthStyleInParams, nil
	}
	return oauth2.AuthStyleAutoDetect, fmt.Errorf("unknown auth_style %q: %w", p.AuthStyle, apperrors.ErrInvalidInput)
}

// Client returns the provider client configuration.
func (p ProviderConfig) Client() provider.Config {
	return provider.Config{
		SearchURL:   p.SearchURL,
		TracksURL:   p.TracksURL,
		QueryParam:  p.QueryParam,
		CountryCode: p.CountryCode,
		PageSize:    p.PageSize,
	}
}

// DatabaseConfig contains the search history database settings. An empty
// Path disables history.
type DatabaseConfig struct {
	Path      string        `toml:"path"`
	Retention time.Duration `toml:"retention"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN              string  `toml:"dsn"`
	Environment      string  `toml:"environment"`
	TracesSampleRate float64 `toml:"traces_sample_rate"`
}

// DefaultConfig returns a Config with sensible defaults loaded from the
// embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ExampleConfig returns the embedded example file.
func ExampleConfig() []byte {
	return append([]byte(nil), exampleConf...)
}

// Load builds the configuration. path may be empty, in which case only the
// defaults and the environment are used. A missing .env file is not an
// error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := DefaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
		}
	}
	config.applyEnv()
	return config, nil
}

// CreateConfigFile writes the embedded example config to path. It refuses to
// overwrite an existing file.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, exampleConf, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Credentials.ClientID, "CATALOG_CLIENT_ID")
	setString(&c.Credentials.ClientSecret, "CATALOG_CLIENT_SECRET")
	setString(&c.Provider.TokenURL, "CATALOG_TOKEN_URL")
	setString(&c.Provider.AuthStyle, "CATALOG_AUTH_STYLE")
	setString(&c.Provider.SearchURL, "CATALOG_SEARCH_URL")
	setString(&c.Provider.TracksURL, "CATALOG_TRACKS_URL")
	setString(&c.Provider.CountryCode, "CATALOG_COUNTRY_CODE")
	c.Provider.PageSize = getPageSize(c.Provider.PageSize)
	c.Server.Port = getPort(c.Server.Port)
	setString(&c.Database.Path, "DATABASE_PATH")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Sentry.DSN, "SENTRY_DSN")
	setString(&c.Sentry.Environment, "SENTRY_ENVIRONMENT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func getPort(def int) int {
	portStr := os.Getenv("PORT")
	if portStr == "" {
		return def
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return def
	}
	return port
}

func getPageSize(def int) int {
	sizeStr := os.Getenv("CATALOG_PAGE_SIZE")
	if sizeStr == "" {
		return def
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size <= 0 {
		return def
	}
	if size > 100 {
		return 100 // Providers cap filter[id] lists well below this
	}
	return size
}

// Validate reports configuration errors that prevent startup. Missing
// credentials are not fatal: every request then fails with
// auth.MissingCredentials, so they are returned separately as a warning.
func (c *Config) Validate() (warnings []string, err error) {
	var errs []error
	if _, e := c.Provider.OAuthAuthStyle(); e != nil {
		errs = append(errs, e)
	}
	for name, raw := range map[string]string{
		"provider.token_url":  c.Provider.TokenURL,
		"provider.search_url": c.Provider.SearchURL,
		"provider.tracks_url": c.Provider.TracksURL,
	} {
		if u, e := url.Parse(raw); e != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", name, raw))
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Provider.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("provider.page_size must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if !c.Credentials.Credential().Complete() {
		warnings = append(warnings, "catalog client credentials are not set; requests will fail until they are")
	}
	return warnings, errors.Join(errs...)
}
