package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"raveview/pkg/setlink"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteStore_InsertAndGet(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	duration := 5400
	uploaded := time.Date(2023, 8, 19, 0, 0, 0, 0, time.UTC)
	entry := &Entry{
		ID:           "9b2f4f4e-3f43-4c55-9a57-0d1a3d2a7f10",
		URL:          "https://soundcloud.com/dj/set",
		Title:        "Closing Set",
		Artist:       "DJ",
		Platform:     setlink.PlatformSoundCloud,
		PlatformID:   "123",
		DurationSec:  &duration,
		UploadedAt:   &uploaded,
		ThumbnailURL: "https://i1.sndcdn.com/artworks-1-t500x500.jpg",
		CreatedBy:    "user-1",
		CreatedAt:    time.Date(2024, 2, 3, 4, 5, 6, 7, time.UTC),
	}
	if err := db.Insert(ctx, entry); err != nil {
		t.Fatalf("Insert() unexpected error: %v", err)
	}

	got, err := db.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if got.URL != entry.URL || got.Title != entry.Title || got.Platform != entry.Platform || got.PlatformID != "123" {
		t.Errorf("Get() = %+v", got)
	}
	if got.DurationSec == nil || *got.DurationSec != duration {
		t.Errorf("DurationSec = %v, want %d", got.DurationSec, duration)
	}
	if got.UploadedAt == nil || !got.UploadedAt.Equal(uploaded) {
		t.Errorf("UploadedAt = %v, want %v", got.UploadedAt, uploaded)
	}
	if !got.CreatedAt.Equal(entry.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, entry.CreatedAt)
	}

	id, err := db.FindByURL(ctx, entry.URL)
	if err != nil || id != entry.ID {
		t.Errorf("FindByURL() = %q, %v", id, err)
	}
}

func TestSQLiteStore_NullableFields(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	entry := &Entry{
		ID:         "1f0c2b8e-8d0e-4a57-8a43-5d1e0f7c9b21",
		URL:        "https://youtu.be/abc",
		Title:      UntitledSet,
		Artist:     UnknownArtist,
		Platform:   setlink.PlatformYouTube,
		PlatformID: "abc",
		CreatedBy:  "user-1",
		CreatedAt:  time.Now(),
	}
	if err := db.Insert(ctx, entry); err != nil {
		t.Fatalf("Insert() unexpected error: %v", err)
	}

	got, err := db.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if got.DurationSec != nil || got.UploadedAt != nil || got.ThumbnailURL != "" {
		t.Errorf("optional fields should stay unset: %+v", got)
	}
}

func TestSQLiteStore_DuplicateURL(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	first := &Entry{ID: "a", URL: "https://youtu.be/abc", Platform: setlink.PlatformYouTube, CreatedAt: time.Now()}
	second := &Entry{ID: "b", URL: "https://youtu.be/abc", Platform: setlink.PlatformYouTube, CreatedAt: time.Now()}

	if err := db.Insert(ctx, first); err != nil {
		t.Fatalf("Insert() unexpected error: %v", err)
	}
	if err := db.Insert(ctx, second); !errors.Is(err, ErrDuplicateURL) {
		t.Errorf("Insert() duplicate error = %v, want ErrDuplicateURL", err)
	}
}

func TestSQLiteStore_NotFound(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	if _, err := db.FindByURL(ctx, "https://youtu.be/none"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByURL() error = %v, want ErrNotFound", err)
	}
	if _, err := db.Get(ctx, "none"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_ConcurrentIngestCreatesOneRow(t *testing.T) {
	db := openTestSQLite(t)
	writer := NewWriter(db, nil, zap.NewNop())

	const callers = 16
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ids[i], _, errs[i] = writer.Ingest(context.Background(), testMetadata("https://youtu.be/race"), fmt.Sprintf("user-%d", i))
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("caller %d id = %q, want %q", i, ids[i], ids[0])
		}
	}

	recent, err := db.RecentURLs(context.Background(), 100)
	if err != nil {
		t.Fatalf("RecentURLs() unexpected error: %v", err)
	}
	if len(recent) != 1 || recent["https://youtu.be/race"] != ids[0] {
		t.Errorf("RecentURLs() = %v, want one row for the raced url", recent)
	}

	entry, err := db.Get(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if !strings.HasPrefix(entry.CreatedBy, "user-") {
		t.Errorf("CreatedBy = %q, want one of the racing creators", entry.CreatedBy)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "dsn"); err == nil {
		t.Error("Open() expected error for an unsupported driver")
	}
}
