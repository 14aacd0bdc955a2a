package setlink

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// YouTubeOEmbedURL is the YouTube oEmbed API endpoint.
	YouTubeOEmbedURL = "https://www.youtube.com/oembed"
	// YouTubeDataAPIURL is the YouTube Data API v3 videos endpoint.
	YouTubeDataAPIURL = "https://www.googleapis.com/youtube/v3/videos"
	// youtubeWatchURL is the watch URL handed to oEmbed.
	youtubeWatchURL = "https://www.youtube.com/watch?v="
	// youtubeThumbnailURL is the static thumbnail used when oEmbed has none.
	youtubeThumbnailURL = "https://img.youtube.com/vi/%s/hqdefault.jpg"
)

// youtubePathIDRegex matches the embed path form and the shorts/live variants.
var youtubePathIDRegex = regexp.MustCompile(`^/(?:embed|shorts|live)/([a-zA-Z0-9_-]+)`)

// YouTubeConfig configures the YouTube resolver.
type YouTubeConfig struct {
	// APIKey enables duration and publish date enrichment. Optional.
	APIKey            string
	OEmbedURL         string
	DataAPIURL        string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// YouTubeResolver resolves YouTube links to set metadata.
type YouTubeResolver struct {
	config YouTubeConfig
	client *apiClient
	logger *zap.Logger
}

// NewYouTubeResolver creates a new YouTube link resolver.
func NewYouTubeResolver(config YouTubeConfig, logger *zap.Logger) *YouTubeResolver {
	if config.OEmbedURL == "" {
		config.OEmbedURL = YouTubeOEmbedURL
	}
	if config.DataAPIURL == "" {
		config.DataAPIURL = YouTubeDataAPIURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &YouTubeResolver{
		config: config,
		client: newAPIClient(config.Timeout, config.RequestsPerSecond),
		logger: logger,
	}
}

// Platform implements Resolver.
func (r *YouTubeResolver) Platform() Platform {
	return PlatformYouTube
}

// Resolve fetches oEmbed metadata for a YouTube URL and enriches it from the Data API when a key is set.
func (r *YouTubeResolver) Resolve(ctx context.Context, rawURL string) (*SetMetadata, error) {
	videoID, err := r.extractVideoID(rawURL)
	if err != nil {
		return nil, err
	}

	oembed, err := r.fetchOEmbed(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch YouTube oEmbed data: %w", err)
	}

	meta := &SetMetadata{
		Platform:     PlatformYouTube,
		PlatformID:   videoID,
		CanonicalURL: rawURL,
		Title:        cleanText(oembed.Title),
		Artist:       cleanText(oembed.AuthorName),
		ThumbnailURL: strings.TrimSpace(oembed.ThumbnailURL),
	}
	if meta.ThumbnailURL == "" {
		meta.ThumbnailURL = fmt.Sprintf(youtubeThumbnailURL, videoID)
	}

	r.enrich(ctx, videoID, meta)

	return meta, nil
}

// extractVideoID finds the video id in the short-host, query parameter, or embed path forms, in that order.
func (r *YouTubeResolver) extractVideoID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	hostname := strings.ToLower(u.Hostname())

	// Handle youtu.be short links.
	if hostname == "youtu.be" || strings.HasSuffix(hostname, ".youtu.be") {
		id, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
		if id == "" {
			return "", fmt.Errorf("%w: no video ID in youtu.be URL", ErrInvalidURL)
		}
		return id, nil
	}

	if id := u.Query().Get("v"); id != "" {
		return id, nil
	}

	if m := youtubePathIDRegex.FindStringSubmatch(u.Path); m != nil {
		return m[1], nil
	}

	return "", fmt.Errorf("%w: no video ID in YouTube URL", ErrInvalidURL)
}

// fetchOEmbed fetches metadata from YouTube's oEmbed API.
func (r *YouTubeResolver) fetchOEmbed(ctx context.Context, videoID string) (*oEmbedResponse, error) {
	reqURL := fmt.Sprintf("%s?url=%s&format=json", r.config.OEmbedURL, url.QueryEscape(youtubeWatchURL+videoID))

	var resp oEmbedResponse
	if err := r.client.getJSON(ctx, "YouTube oEmbed", reqURL, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// enrich adds duration and publish date from the Data API. Failures leave the fields unset.
func (r *YouTubeResolver) enrich(ctx context.Context, videoID string, meta *SetMetadata) {
	if r.config.APIKey == "" {
		return
	}

	params := url.Values{}
	params.Set("id", videoID)
	params.Set("part", "contentDetails,snippet")
	params.Set("key", r.config.APIKey)

	body, err := r.client.getBody(ctx, "YouTube Data API", r.config.DataAPIURL+"?"+params.Encode(), nil)
	if err != nil {
		r.logger.Debug("YouTube enrichment skipped", zap.String("video_id", videoID), zap.Error(err))
		return
	}
	if !gjson.ValidBytes(body) {
		r.logger.Debug("YouTube enrichment returned malformed JSON", zap.String("video_id", videoID))
		return
	}

	item := gjson.GetBytes(body, "items.0")
	if sec, ok := ParseISODuration(item.Get("contentDetails.duration").String()); ok {
		meta.DurationSec = intPtr(sec)
	}
	meta.UploadedAt = datePart(item.Get("snippet.publishedAt").String())
}
