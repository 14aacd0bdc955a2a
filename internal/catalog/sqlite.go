package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"raveview/pkg/setlink"
)

const sqliteDateLayout = "2006-01-02"

// SQLiteStore is an embedded catalog for local runs and tests.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path (":memory:" for an in-memory catalog) and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writes serialize in sqlite anyway and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	statements, err := migrations("sqlite")
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// FindByURL implements Store.
func (s *SQLiteStore) FindByURL(ctx context.Context, url string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM sets WHERE url = ?`, url).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find set by url: %w", err)
	}
	return id, nil
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, entry *Entry) error {
	var (
		duration  sql.NullInt64
		uploaded  sql.NullString
		thumbnail sql.NullString
	)
	if entry.DurationSec != nil {
		duration = sql.NullInt64{Int64: int64(*entry.DurationSec), Valid: true}
	}
	if entry.UploadedAt != nil {
		uploaded = sql.NullString{String: entry.UploadedAt.UTC().Format(sqliteDateLayout), Valid: true}
	}
	if entry.ThumbnailURL != "" {
		thumbnail = sql.NullString{String: entry.ThumbnailURL, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sets (id, url, title, artist, platform, platform_id, duration_sec, uploaded_at,
		                   thumbnail_url, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.URL, entry.Title, entry.Artist, string(entry.Platform), entry.PlatformID,
		duration, uploaded, thumbnail, entry.CreatedBy, entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateURL
		}
		return fmt.Errorf("insert set: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Entry, error) {
	var (
		entry     Entry
		platform  string
		duration  sql.NullInt64
		uploaded  sql.NullString
		thumbnail sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, artist, platform, platform_id, duration_sec, uploaded_at,
		        thumbnail_url, created_by, created_at
		 FROM sets WHERE id = ?`, id,
	).Scan(&entry.ID, &entry.URL, &entry.Title, &entry.Artist, &platform, &entry.PlatformID,
		&duration, &uploaded, &thumbnail, &entry.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get set: %w", err)
	}

	entry.Platform = setlink.Platform(platform)
	if duration.Valid {
		d := int(duration.Int64)
		entry.DurationSec = &d
	}
	if uploaded.Valid {
		if t, err := time.Parse(sqliteDateLayout, uploaded.String); err == nil {
			entry.UploadedAt = &t
		}
	}
	entry.ThumbnailURL = thumbnail.String
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		entry.CreatedAt = t
	}
	return &entry, nil
}

// RecentURLs implements Store.
func (s *SQLiteStore) RecentURLs(ctx context.Context, limit int) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, id FROM sets ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent sets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var url, id string
		if err := rows.Scan(&url, &id); err != nil {
			return nil, fmt.Errorf("scan recent set: %w", err)
		}
		out[url] = id
	}
	return out, rows.Err()
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
