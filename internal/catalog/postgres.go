package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"raveview/pkg/setlink"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

const (
	postgresMaxConns = 10
	postgresMinConns = 1
)

// PostgresStore is the production catalog backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres creates a pgx pool for databaseURL and applies the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("postgres catalog requires a database url")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	config.MaxConns = postgresMaxConns
	config.MinConns = postgresMinConns

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	statements, err := migrations("postgres")
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// FindByURL implements Store.
func (s *PostgresStore) FindByURL(ctx context.Context, url string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id::text FROM sets WHERE url = $1`, url).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find set by url: %w", err)
	}
	return id, nil
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, entry *Entry) error {
	var thumbnail *string
	if entry.ThumbnailURL != "" {
		thumbnail = &entry.ThumbnailURL
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sets (id, url, title, artist, platform, platform_id, duration_sec, uploaded_at,
		                   thumbnail_url, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.URL, entry.Title, entry.Artist, string(entry.Platform), entry.PlatformID,
		entry.DurationSec, entry.UploadedAt, thumbnail, entry.CreatedBy, entry.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateURL
		}
		return fmt.Errorf("insert set: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	var (
		entry     Entry
		platform  string
		thumbnail *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, url, title, artist, platform, platform_id, duration_sec, uploaded_at,
		        thumbnail_url, created_by, created_at
		 FROM sets WHERE id = $1`, id,
	).Scan(&entry.ID, &entry.URL, &entry.Title, &entry.Artist, &platform, &entry.PlatformID,
		&entry.DurationSec, &entry.UploadedAt, &thumbnail, &entry.CreatedBy, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get set: %w", err)
	}

	entry.Platform = setlink.Platform(platform)
	if thumbnail != nil {
		entry.ThumbnailURL = *thumbnail
	}
	return &entry, nil
}

// RecentURLs implements Store.
func (s *PostgresStore) RecentURLs(ctx context.Context, limit int) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT url, id::text FROM sets ORDER BY created_at DESC LIMIT $1`, limit)
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
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
