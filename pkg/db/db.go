// Package db provides the persistence layer used by the application. It wraps
// a SQLite database that records the searches served by the mediator and the
// normalized tracks each one returned. Tokens are never stored here. Callers
// are expected to open a single DB instance using New and reuse it for all
// operations.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"Music-Mediator-Go/pkg/catalog"
)

// DB wraps a sql.DB connection and exposes helper methods for the
// application's persistence layer.
type DB struct {
	*sql.DB
}

// New opens the SQLite database located at path. If the file does not
// exist it is created along with the required schema.
func New(path string) (*DB, error) {
	d, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		d.SetMaxOpenConns(1)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS searches (id TEXT PRIMARY KEY, query TEXT NOT NULL, result_count INTEGER NOT NULL, searched_at TIMESTAMP NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS idx_searches_at ON searches(searched_at)`,
		`CREATE TABLE IF NOT EXISTS search_results (search_id TEXT NOT NULL, position INTEGER NOT NULL, track_id TEXT NOT NULL, title TEXT NOT NULL, artist TEXT NOT NULL, album_image_url TEXT, related_ids TEXT NOT NULL, PRIMARY KEY (search_id, position))`,
	}
	// Errors here likely mean the database file is not writable.
	for _, s := range stmts {
		if _, err := d.Exec(s); err != nil {
			d.Close()
			return nil, fmt.Errorf("init db: %w", err)
		}
	}
	return &DB{d}, nil
}

// Search is one recorded search.
type Search struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	ResultCount int       `json:"resultCount"`
	SearchedAt  time.Time `json:"searchedAt"`
}

// RecordSearch stores query and the tracks it returned under a new random
// ID, which is returned to the caller. The search and its results are
// written in one transaction.
func (db *DB) RecordSearch(ctx context.Context, query string, tracks []catalog.NormalizedTrack, at time.Time) (string, error) {
	id := uuid.NewString()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO searches(id, query, result_count, searched_at) VALUES(?, ?, ?, ?)`, id, query, len(tracks), at.UTC()); err != nil {
		return "", fmt.Errorf("insert search: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO search_results(search_id, position, track_id, title, artist, album_image_url, related_ids) VALUES(?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for i, t := range tracks {
		related, err := json.Marshal(t.RelatedTrackIDs)
		if err != nil {
			return "", err
		}
		var image sql.NullString
		if t.AlbumImageURL != nil {
			image = sql.NullString{String: *t.AlbumImageURL, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id, i, t.ID, t.Title, t.Artist, image, string(related)); err != nil {
			return "", fmt.Errorf("insert search result: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// RecentSearches returns up to limit searches, newest first.
func (db *DB) RecentSearches(ctx context.Context, limit int) ([]Search, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, query, result_count, searched_at FROM searches ORDER BY searched_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ss := []Search{}
	for rows.Next() {
		var s Search
		if err := rows.Scan(&s.ID, &s.Query, &s.ResultCount, &s.SearchedAt); err != nil {
			return nil, err
		}
		ss = append(ss, s)
	}
	return ss, rows.Err()
}

// SearchResults returns the tracks recorded for a search in their original
// order. sql.ErrNoRows is returned when the search does not exist which
// allows callers to respond with a 404.
func (db *DB) SearchResults(ctx context.Context, searchID string) ([]catalog.NormalizedTrack, error) {
	var exists int
	if err := db.QueryRowContext(ctx, `SELECT 1 FROM searches WHERE id=?`, searchID).Scan(&exists); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT track_id, title, artist, album_image_url, related_ids FROM search_results WHERE search_id=? ORDER BY position`, searchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tracks := []catalog.NormalizedTrack{}
	for rows.Next() {
		var (
			t       catalog.NormalizedTrack
			image   sql.NullString
			related string
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Artist, &image, &related); err != nil {
			return nil, err
		}
		if image.Valid {
			t.AlbumImageURL = &image.String
		}
		if err := json.Unmarshal([]byte(related), &t.RelatedTrackIDs); err != nil {
			return nil, fmt.Errorf("decode related ids: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// ArtistCount represents how often an artist appeared in search results.
type ArtistCount struct {
	Artist string `json:"artist"`
	Count  int    `json:"count"`
}

// TopArtistsSince returns the artists that appeared most often in search
// results since the provided time. Unresolved artists are skipped.
func (db *DB) TopArtistsSince(ctx context.Context, since time.Time, limit int) ([]ArtistCount, error) {
	rows, err := db.QueryContext(ctx, `SELECT r.artist, COUNT(*) c FROM search_results r JOIN searches s ON s.id = r.search_id WHERE s.searched_at >= ? AND r.artist <> ? GROUP BY r.artist ORDER BY c DESC, r.artist LIMIT ?`, since.UTC(), catalog.UnknownArtist, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []ArtistCount{}
	for rows.Next() {
		var ac ArtistCount
		if err := rows.Scan(&ac.Artist, &ac.Count); err != nil {
			return nil, err
		}
		res = append(res, ac)
	}
	return res, rows.Err()
}

// PruneBefore deletes searches older than t and their results. It returns
// the number of searches removed.
func (db *DB) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM search_results WHERE search_id IN (SELECT id FROM searches WHERE searched_at < ?)`, t.UTC()); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM searches WHERE searched_at < ?`, t.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
