package setlink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

const (
	// SoundCloudAPIURL is the SoundCloud public API base.
	SoundCloudAPIURL = "https://api.soundcloud.com"
	// SoundCloudOEmbedURL is the SoundCloud oEmbed API endpoint.
	SoundCloudOEmbedURL = "https://soundcloud.com/oembed"

	soundcloudKindTrack    = "track"
	soundcloudKindPlaylist = "playlist"
	// soundcloudTitleSeparator splits "Artist - Title" oEmbed titles.
	soundcloudTitleSeparator = " - "
)

// SoundCloudConfig configures the SoundCloud resolver.
type SoundCloudConfig struct {
	APIURL            string
	OEmbedURL         string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// SoundCloudResolver resolves SoundCloud links through the authenticated API, falling back to oEmbed.
type SoundCloudResolver struct {
	config SoundCloudConfig
	tokens *CredentialCache
	client *apiClient
	logger *zap.Logger
}

// NewSoundCloudResolver creates a new SoundCloud link resolver.
func NewSoundCloudResolver(config SoundCloudConfig, tokens *CredentialCache, logger *zap.Logger) *SoundCloudResolver {
	if config.APIURL == "" {
		config.APIURL = SoundCloudAPIURL
	}
	if config.OEmbedURL == "" {
		config.OEmbedURL = SoundCloudOEmbedURL
	}
	config.APIURL = strings.TrimRight(config.APIURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SoundCloudResolver{
		config: config,
		tokens: tokens,
		client: newAPIClient(config.Timeout, config.RequestsPerSecond),
		logger: logger,
	}
}

// Platform implements Resolver.
func (r *SoundCloudResolver) Platform() Platform {
	return PlatformSoundCloud
}

// Resolve fetches metadata for a SoundCloud track or playlist URL.
func (r *SoundCloudResolver) Resolve(ctx context.Context, rawURL string) (*SetMetadata, error) {
	scURL := NormalizeShortLink(rawURL)
	if !r.isSoundCloudURL(scURL) {
		return nil, fmt.Errorf("%w: not a SoundCloud URL", ErrInvalidURL)
	}

	if r.tokens == nil || !r.tokens.Configured() {
		return nil, ErrMissingCredentials
	}

	token, err := r.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resolved, err := r.resolveResource(ctx, token, scURL)
	if err != nil {
		var reqErr *UpstreamRequestError
		if !errors.As(err, &reqErr) {
			return nil, err
		}
		if reqErr.Status == http.StatusUnauthorized {
			// Revoked before its advertised expiry; make the next request exchange again.
			r.tokens.Invalidate()
		}
		r.logger.Warn("SoundCloud resolve failed, falling back to oEmbed",
			zap.String("url", scURL), zap.Int("status", reqErr.Status), zap.Error(err))
		return r.resolveViaOEmbed(ctx, scURL)
	}

	resource := r.materialize(ctx, token, resolved)
	return mapSoundCloudResource(resource, scURL), nil
}

// isSoundCloudURL checks the host of an already short-link-normalized URL.
func (r *SoundCloudResolver) isSoundCloudURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	hostname := strings.ToLower(u.Hostname())
	return hostname == "soundcloud.com" || strings.HasSuffix(hostname, ".soundcloud.com")
}

// resolveResource calls the resolve endpoint and returns the raw resource stub.
func (r *SoundCloudResolver) resolveResource(ctx context.Context, token, scURL string) (gjson.Result, error) {
	reqURL := fmt.Sprintf("%s/resolve?url=%s", r.config.APIURL, url.QueryEscape(scURL))

	body, err := r.client.getBody(ctx, "SoundCloud resolve", reqURL, authHeader(token))
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &UpstreamRequestError{
			Service: "SoundCloud resolve",
			Status:  http.StatusOK,
			Err:     errors.New("malformed JSON"),
		}
	}
	return gjson.ParseBytes(body), nil
}

// materialize re-fetches the full track or playlist when the kind is known.
// A failing follow-up keeps the resolve payload as is.
func (r *SoundCloudResolver) materialize(ctx context.Context, token string, resolved gjson.Result) gjson.Result {
	kind := resolved.Get("kind").String()
	id := resolved.Get("id").String()
	if id == "" {
		return resolved
	}

	var path string
	switch kind {
	case soundcloudKindTrack:
		path = "/tracks/" + url.PathEscape(id)
	case soundcloudKindPlaylist:
		path = "/playlists/" + url.PathEscape(id)
	default:
		return resolved
	}

	body, err := r.client.getBody(ctx, "SoundCloud "+kind, r.config.APIURL+path, authHeader(token))
	if err != nil || !gjson.ValidBytes(body) {
		r.logger.Debug("SoundCloud follow-up fetch failed, using resolve payload",
			zap.String("kind", kind), zap.String("id", id), zap.Error(err))
		return resolved
	}

	full := gjson.ParseBytes(body)
	if !full.Get("kind").Exists() {
		// Some endpoints omit kind; the mapper needs it for duration.
		patched, err := sjson.SetBytes(body, "kind", kind)
		if err != nil {
			return resolved
		}
		return gjson.ParseBytes(patched)
	}
	return full
}

// resolveViaOEmbed builds metadata from the public oEmbed endpoint.
func (r *SoundCloudResolver) resolveViaOEmbed(ctx context.Context, scURL string) (*SetMetadata, error) {
	reqURL := fmt.Sprintf("%s?format=json&url=%s", r.config.OEmbedURL, url.QueryEscape(scURL))

	var resp oEmbedResponse
	if err := r.client.getJSON(ctx, "SoundCloud oEmbed", reqURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch SoundCloud oEmbed data: %w", err)
	}

	title, artist := r.parseOEmbedTitle(&resp)

	return &SetMetadata{
		Platform:     PlatformSoundCloud,
		PlatformID:   scURL,
		CanonicalURL: scURL,
		Title:        title,
		Artist:       artist,
		ThumbnailURL: strings.TrimSpace(resp.ThumbnailURL),
	}, nil
}

// parseOEmbedTitle splits "Artist - Title" on the first separator.
// author_name, when present, wins over the artist parsed from the title.
func (r *SoundCloudResolver) parseOEmbedTitle(resp *oEmbedResponse) (title, artist string) {
	fullTitle := cleanText(resp.Title)
	artist = cleanText(resp.AuthorName)

	parts := strings.SplitN(fullTitle, soundcloudTitleSeparator, expectedSplitParts)
	if len(parts) == expectedSplitParts {
		if artist == "" {
			artist = strings.TrimSpace(parts[0])
		}
		if rest := strings.TrimSpace(parts[1]); rest != "" {
			return rest, artist
		}
	}

	return fullTitle, artist
}

// FetchThumbnail returns the oEmbed thumbnail for a SoundCloud page. No credentials are needed.
func (r *SoundCloudResolver) FetchThumbnail(ctx context.Context, scURL string) (string, error) {
	reqURL := fmt.Sprintf("%s?format=json&url=%s", r.config.OEmbedURL, url.QueryEscape(scURL))

	var resp oEmbedResponse
	if err := r.client.getJSON(ctx, "SoundCloud oEmbed", reqURL, nil, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.ThumbnailURL), nil
}

func authHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "OAuth "+token)
	return h
}
