package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"raveview/internal/store"
	"raveview/pkg/setlink"
)

const (
	// UntitledSet replaces an empty title when an entry is persisted.
	UntitledSet = "Untitled set"
	// UnknownArtist replaces an empty artist when an entry is persisted.
	UnknownArtist = "Unknown artist"
)

// ErrInvalidEntry is returned for metadata that cannot be catalogued.
var ErrInvalidEntry = errors.New("invalid catalog entry")

// Writer looks up or creates catalog entries. The store's unique url index is the only
// concurrency control; the Writer holds no locks across store calls.
type Writer struct {
	db        Store
	index     *store.URLIndex
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
	conflicts atomic.Int64
}

// NewWriter creates a Writer over db. index may be nil.
func NewWriter(db Store, index *store.URLIndex, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		db:     db,
		index:  index,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Ingest returns the id of the entry for meta.CanonicalURL, creating it on first sight.
// created reports whether this call inserted the row.
func (w *Writer) Ingest(ctx context.Context, meta *setlink.SetMetadata, creatorID string) (id string, created bool, err error) {
	if meta == nil || meta.CanonicalURL == "" {
		return "", false, fmt.Errorf("%w: missing canonical url", ErrInvalidEntry)
	}
	if creatorID == "" {
		return "", false, fmt.Errorf("%w: missing creator", ErrInvalidEntry)
	}

	id, found, err := w.FindByURL(ctx, meta.CanonicalURL)
	if err != nil {
		return "", false, err
	}
	if found {
		return id, false, nil
	}

	entry := w.newEntry(meta, creatorID)
	err = w.db.Insert(ctx, entry)
	switch {
	case err == nil:
		w.remember(entry.URL, entry.ID)
		w.logger.Info("Catalogued set",
			zap.String("id", entry.ID),
			zap.String("url", entry.URL),
			zap.String("platform", string(entry.Platform)),
			zap.String("created_by", creatorID))
		return entry.ID, true, nil
	case errors.Is(err, ErrDuplicateURL):
		return w.resolveConflict(ctx, entry.URL)
	default:
		return "", false, fmt.Errorf("failed to insert set: %w", err)
	}
}

// resolveConflict re-reads the row a concurrent request inserted first.
func (w *Writer) resolveConflict(ctx context.Context, url string) (string, bool, error) {
	w.conflicts.Add(1)

	id, err := w.db.FindByURL(ctx, url)
	if err != nil {
		return "", false, fmt.Errorf("failed to re-read set after duplicate insert: %w", err)
	}
	w.remember(url, id)

	w.logger.Info("Concurrent insert resolved to existing set", zap.String("id", id), zap.String("url", url))
	return id, false, nil
}

// FindByURL returns the id for a canonical URL.
func (w *Writer) FindByURL(ctx context.Context, url string) (string, bool, error) {
	if w.index != nil {
		if id, ok := w.index.Get(url); ok {
			return id, true, nil
		}
	}

	id, err := w.db.FindByURL(ctx, url)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up set: %w", err)
	}

	w.remember(url, id)
	return id, true, nil
}

// Get returns the entry with id, or ErrNotFound.
func (w *Writer) Get(ctx context.Context, id string) (*Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return w.db.Get(ctx, id)
}

// Warm loads up to limit recent URLs into the index.
func (w *Writer) Warm(ctx context.Context, limit int) error {
	if w.index == nil || limit <= 0 {
		return nil
	}

	recent, err := w.db.RecentURLs(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to warm url index: %w", err)
	}
	w.index.Load(recent)
	w.logger.Info("Warmed url index", zap.Int("entries", w.index.Len()))
	return nil
}

// Conflicts returns how many inserts lost a race and were resolved by re-reading.
func (w *Writer) Conflicts() int64 {
	return w.conflicts.Load()
}

// Ping checks the underlying store.
func (w *Writer) Ping(ctx context.Context) error {
	return w.db.Ping(ctx)
}

func (w *Writer) remember(url, id string) {
	if w.index != nil {
		w.index.Put(url, id)
	}
}

func (w *Writer) newEntry(meta *setlink.SetMetadata, creatorID string) *Entry {
	entry := &Entry{
		ID:           w.newID(),
		URL:          meta.CanonicalURL,
		Title:        strings.TrimSpace(meta.Title),
		Artist:       strings.TrimSpace(meta.Artist),
		Platform:     meta.Platform,
		PlatformID:   meta.PlatformID,
		DurationSec:  meta.DurationSec,
		UploadedAt:   meta.UploadedAt,
		ThumbnailURL: meta.ThumbnailURL,
		CreatedBy:    creatorID,
		CreatedAt:    w.now().UTC(),
	}
	if entry.Title == "" {
		entry.Title = UntitledSet
	}
	if entry.Artist == "" {
		entry.Artist = UnknownArtist
	}
	if entry.PlatformID == "" {
		entry.PlatformID = meta.CanonicalURL
	}
	return entry
}
