package setlink

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidURL is returned when a URL cannot be parsed or carries no media id.
	ErrInvalidURL = errors.New("invalid set URL")
	// ErrUnsupportedPlatform is returned for hosts outside the allow-list.
	// It also matches ErrInvalidURL.
	ErrUnsupportedPlatform = fmt.Errorf("%w: unsupported platform (YouTube or SoundCloud only)", ErrInvalidURL)
	// ErrUpstreamAuth is returned when the client-credentials exchange fails.
	ErrUpstreamAuth = errors.New("upstream authentication failed")
	// ErrMissingCredentials is returned when SoundCloud client credentials are not configured.
	ErrMissingCredentials = errors.New("missing SoundCloud client id/secret")
)

// UpstreamRequestError reports a mandatory upstream call that did not succeed.
// Status is zero when the request never produced a response (timeout, dial failure).
type UpstreamRequestError struct {
	Service string
	Status  int
	Err     error
}

func (e *UpstreamRequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s returned status %d: %v", e.Service, e.Status, e.Err)
}

func (e *UpstreamRequestError) Unwrap() error {
	return e.Err
}

// newStatusError builds an UpstreamRequestError for a non-2xx response.
func newStatusError(service string, status int) *UpstreamRequestError {
	return &UpstreamRequestError{
		Service: service,
		Status:  status,
		Err:     errors.New(http.StatusText(status)),
	}
}
