package setlink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestYouTubeResolver_extractVideoID(t *testing.T) {
	resolver := NewYouTubeResolver(YouTubeConfig{}, zap.NewNop())

	tests := []struct {
		name       string
		url        string
		expectedID string
		wantError  bool
	}{
		{
			name:       "Standard YouTube URL",
			url:        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			expectedID: "dQw4w9WgXcQ",
		},
		{
			name:       "YouTube short URL",
			url:        "https://youtu.be/dQw4w9WgXcQ",
			expectedID: "dQw4w9WgXcQ",
		},
		{
			name:       "Short URL with trailing path",
			url:        "https://youtu.be/dQw4w9WgXcQ/extra",
			expectedID: "dQw4w9WgXcQ",
		},
		{
			name:       "Short host wins over query parameter",
			url:        "https://youtu.be/fromPath?v=fromQuery",
			expectedID: "fromPath",
		},
		{
			name:       "Query parameter wins over embed path",
			url:        "https://www.youtube.com/embed/fromPath?v=fromQuery",
			expectedID: "fromQuery",
		},
		{
			name:       "Embed URL",
			url:        "https://www.youtube.com/embed/dQw4w9WgXcQ",
			expectedID: "dQw4w9WgXcQ",
		},
		{
			name:       "Live URL",
			url:        "https://www.youtube.com/live/abc_DEF-123",
			expectedID: "abc_DEF-123",
		},
		{
			name:       "URL with additional parameters",
			url:        "https://www.youtube.com/watch?list=PLrAXtmErZgOeiKm4sgNOknGvNjby9efdf&v=dQw4w9WgXcQ",
			expectedID: "dQw4w9WgXcQ",
		},
		{
			name:      "No video ID",
			url:       "https://www.youtube.com/",
			wantError: true,
		},
		{
			name:      "Empty youtu.be path",
			url:       "https://youtu.be/",
			wantError: true,
		},
		{
			name:      "Channel page",
			url:       "https://www.youtube.com/@boilerroom",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			videoID, err := resolver.extractVideoID(tt.url)
			if tt.wantError {
				if !errors.Is(err, ErrInvalidURL) {
					t.Errorf("extractVideoID() error = %v, want ErrInvalidURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractVideoID() unexpected error: %v", err)
			}
			if videoID != tt.expectedID {
				t.Errorf("extractVideoID() = %v, want %v", videoID, tt.expectedID)
			}
		})
	}
}

// newYouTubeTestServer serves oEmbed at /oembed and the Data API at /videos.
func newYouTubeTestServer(t *testing.T, oembedStatus, dataStatus int, dataBody string) (*httptest.Server, *int32) {
	t.Helper()

	var dataCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oembed", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("url"); got != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
			t.Errorf("oEmbed url param = %q", got)
		}
		w.WriteHeader(oembedStatus)
		_, _ = w.Write([]byte(`{"title":"Boiler Room: Live Set","author_name":"Boiler Room",` +
			`"thumbnail_url":"https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg"}`))
	})
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dataCalls, 1)
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("Data API key = %q", r.URL.Query().Get("key"))
		}
		w.WriteHeader(dataStatus)
		_, _ = w.Write([]byte(dataBody))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &dataCalls
}

func TestYouTubeResolver_Resolve_WithEnrichment(t *testing.T) {
	body := `{"items":[{"contentDetails":{"duration":"PT1H2M3S"},"snippet":{"publishedAt":"2023-04-05T18:00:00Z"}}]}`
	server, calls := newYouTubeTestServer(t, http.StatusOK, http.StatusOK, body)

	resolver := NewYouTubeResolver(YouTubeConfig{
		APIKey:     "test-key",
		OEmbedURL:  server.URL + "/oembed",
		DataAPIURL: server.URL + "/videos",
	}, zap.NewNop())

	meta, err := resolver.Resolve(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}

	if meta.Platform != PlatformYouTube || meta.PlatformID != "dQw4w9WgXcQ" {
		t.Errorf("Resolve() platform/id = %s/%s", meta.Platform, meta.PlatformID)
	}
	if meta.Title != "Boiler Room: Live Set" || meta.Artist != "Boiler Room" {
		t.Errorf("Resolve() title/artist = %q/%q", meta.Title, meta.Artist)
	}
	if meta.ThumbnailURL != "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg" {
		t.Errorf("Resolve() thumbnail = %q", meta.ThumbnailURL)
	}
	if meta.DurationSec == nil || *meta.DurationSec != 3723 {
		t.Errorf("Resolve() duration = %v, want 3723", meta.DurationSec)
	}
	want := time.Date(2023, 4, 5, 0, 0, 0, 0, time.UTC)
	if meta.UploadedAt == nil || !meta.UploadedAt.Equal(want) {
		t.Errorf("Resolve() uploadedAt = %v, want %v", meta.UploadedAt, want)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("Data API calls = %d, want 1", atomic.LoadInt32(calls))
	}
}

func TestYouTubeResolver_Resolve_EnrichmentIsBestEffort(t *testing.T) {
	tests := []struct {
		name       string
		dataStatus int
		dataBody   string
	}{
		{name: "Data API forbidden", dataStatus: http.StatusForbidden, dataBody: `{"error":{}}`},
		{name: "Malformed JSON", dataStatus: http.StatusOK, dataBody: `{"items":[`},
		{name: "No items", dataStatus: http.StatusOK, dataBody: `{"items":[]}`},
		{name: "Duration without components", dataStatus: http.StatusOK,
			dataBody: `{"items":[{"contentDetails":{"duration":"PT"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newYouTubeTestServer(t, http.StatusOK, tt.dataStatus, tt.dataBody)
			resolver := NewYouTubeResolver(YouTubeConfig{
				APIKey:     "test-key",
				OEmbedURL:  server.URL + "/oembed",
				DataAPIURL: server.URL + "/videos",
			}, zap.NewNop())

			meta, err := resolver.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if meta.DurationSec != nil {
				t.Errorf("Resolve() duration = %d, want unset", *meta.DurationSec)
			}
			if meta.UploadedAt != nil {
				t.Errorf("Resolve() uploadedAt = %v, want unset", meta.UploadedAt)
			}
			if meta.Title == "" {
				t.Error("Resolve() should keep oEmbed title")
			}
		})
	}
}

func TestYouTubeResolver_Resolve_NoAPIKeySkipsEnrichment(t *testing.T) {
	server, calls := newYouTubeTestServer(t, http.StatusOK, http.StatusOK, `{}`)
	resolver := NewYouTubeResolver(YouTubeConfig{
		OEmbedURL:  server.URL + "/oembed",
		DataAPIURL: server.URL + "/videos",
	}, zap.NewNop())

	if _, err := resolver.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ"); err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if atomic.LoadInt32(calls) != 0 {
		t.Errorf("Data API calls = %d, want 0 without a key", atomic.LoadInt32(calls))
	}
}

func TestYouTubeResolver_Resolve_OEmbedFailureIsFatal(t *testing.T) {
	server, _ := newYouTubeTestServer(t, http.StatusNotFound, http.StatusOK, `{}`)
	resolver := NewYouTubeResolver(YouTubeConfig{OEmbedURL: server.URL + "/oembed"}, zap.NewNop())

	_, err := resolver.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")

	var reqErr *UpstreamRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Resolve() error = %v, want *UpstreamRequestError", err)
	}
	if reqErr.Status != http.StatusNotFound {
		t.Errorf("UpstreamRequestError.Status = %d, want 404", reqErr.Status)
	}
}

func TestYouTubeResolver_Resolve_TimeoutIsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	resolver := NewYouTubeResolver(YouTubeConfig{
		OEmbedURL: server.URL,
		Timeout:   50 * time.Millisecond,
	}, zap.NewNop())

	_, err := resolver.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")

	var reqErr *UpstreamRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Resolve() error = %v, want *UpstreamRequestError", err)
	}
	if reqErr.Status != 0 {
		t.Errorf("UpstreamRequestError.Status = %d, want 0 for a timeout", reqErr.Status)
	}
}

func TestYouTubeResolver_Resolve_ThumbnailFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"title":"Set","author_name":"DJ"}`))
	}))
	defer server.Close()

	resolver := NewYouTubeResolver(YouTubeConfig{OEmbedURL: server.URL}, zap.NewNop())
	meta, err := resolver.Resolve(context.Background(), "https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if meta.ThumbnailURL != "https://img.youtube.com/vi/abc123/hqdefault.jpg" {
		t.Errorf("Resolve() thumbnail = %q", meta.ThumbnailURL)
	}
}
