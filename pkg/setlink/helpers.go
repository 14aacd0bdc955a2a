package setlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"
)

const (
	// userAgent identifies the resolver to upstream APIs.
	userAgent = "raveview-set-resolver/1.0"
	// defaultHTTPTimeout bounds every upstream call.
	defaultHTTPTimeout = 10 * time.Second
	// maxHTTPRedirects is the maximum number of HTTP redirects to follow.
	maxHTTPRedirects = 3
	// maxResponseSize caps how much of an upstream body is read.
	maxResponseSize = 4 << 20
	// defaultRequestsPerSecond is the outbound rate per provider when none is configured.
	defaultRequestsPerSecond = 10
	// expectedSplitParts is the expected number of parts when splitting titles.
	expectedSplitParts = 2
)

// ErrTooManyRedirects is returned when too many redirects are encountered.
var ErrTooManyRedirects = errors.New("too many redirects")

// newHTTPClient creates an HTTP client with a timeout and redirect validation.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// newLimiter returns a token bucket allowing rps requests per second with a burst of the same size.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// apiClient is the shared upstream transport: rate limited, time bounded, JSON aware.
type apiClient struct {
	http    *http.Client
	limiter *rate.Limiter
}

func newAPIClient(timeout time.Duration, rps float64) *apiClient {
	return &apiClient{
		http:    newHTTPClient(timeout),
		limiter: newLimiter(rps),
	}
}

// getBody performs a GET and returns the body of a 2xx response.
// Every failure, including a timeout, comes back as *UpstreamRequestError.
func (c *apiClient) getBody(ctx context.Context, service, reqURL string, header http.Header) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &UpstreamRequestError{Service: service, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, &UpstreamRequestError{Service: service, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamRequestError{Service: service, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, newStatusError(service, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &UpstreamRequestError{
			Service: service,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return body, nil
}

// getJSON performs a GET and decodes a 2xx JSON body into dest.
func (c *apiClient) getJSON(ctx context.Context, service, reqURL string, header http.Header, dest any) error {
	body, err := c.getBody(ctx, service, reqURL, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return &UpstreamRequestError{
			Service: service,
			Status:  http.StatusOK,
			Err:     fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return nil
}

// oEmbedResponse is the subset of the oEmbed payload both providers return.
type oEmbedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	AuthorURL    string `json:"author_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// cleanText trims and NFC-normalizes upstream text so equal titles compare equal.
func cleanText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// datePart truncates an RFC 3339 timestamp (or a bare date) to a UTC date.
func datePart(ts string) *time.Time {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return nil
	}
	day, _, _ := strings.Cut(ts, "T")
	// SoundCloud v1 timestamps look like "2019/05/01 10:00:00 +0000".
	day, _, _ = strings.Cut(day, " ")
	day = strings.ReplaceAll(day, "/", "-")

	parsed, err := time.Parse(time.DateOnly, day)
	if err != nil {
		return nil
	}
	return &parsed
}

func intPtr(v int) *int {
	return &v
}
