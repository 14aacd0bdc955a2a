// Package catalog persists resolved sets, one row per canonical URL.
package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"raveview/pkg/setlink"
)

//go:embed schema
var schemaFS embed.FS

var (
	// ErrDuplicateURL is returned by a Store when the url unique constraint rejects an insert.
	ErrDuplicateURL = errors.New("catalog entry with this url already exists")
	// ErrNotFound is returned when no entry matches a lookup.
	ErrNotFound = errors.New("catalog entry not found")
)

// Entry is one catalogued set.
type Entry struct {
	ID           string           `json:"id"`
	URL          string           `json:"url"`
	Title        string           `json:"title"`
	Artist       string           `json:"artist"`
	Platform     setlink.Platform `json:"platform"`
	PlatformID   string           `json:"platformId"`
	DurationSec  *int             `json:"durationSec,omitempty"`
	UploadedAt   *time.Time       `json:"uploadedAt,omitempty"`
	ThumbnailURL string           `json:"thumbnailUrl,omitempty"`
	CreatedBy    string           `json:"createdBy"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// Store is the relational catalog. Implementations must enforce uniqueness of URL
// and report violations as ErrDuplicateURL.
type Store interface {
	// FindByURL returns the id of the entry with url, or ErrNotFound.
	FindByURL(ctx context.Context, url string) (string, error)
	// Insert creates entry, or fails with ErrDuplicateURL.
	Insert(ctx context.Context, entry *Entry) error
	// Get returns the entry with id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Entry, error)
	// RecentURLs returns up to limit url to id pairs, newest first.
	RecentURLs(ctx context.Context, limit int) (map[string]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the store named by driver ("postgres" or "sqlite") and applies the schema.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "postgres", "postgresql", "pgx":
		return OpenPostgres(ctx, dsn)
	case "sqlite", "sqlite3":
		return OpenSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported catalog driver %q", driver)
	}
}

// migrations returns the schema files for dialect in name order.
func migrations(dialect string) ([]string, error) {
	dir := "schema/" + dialect
	entries, err := fs.ReadDir(schemaFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var statements []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(schemaFS, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		statements = append(statements, string(data))
	}
	return statements, nil
}
