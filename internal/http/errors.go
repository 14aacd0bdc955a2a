package http

import (
	"errors"
	"net/http"
	"strconv"

	"raveview/internal/catalog"
	"raveview/pkg/setlink"
)

// apiError is the JSON error body.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classify maps a pipeline error to an HTTP status and a stable code.
func classify(err error) (int, string) {
	var reqErr *setlink.UpstreamRequestError

	switch {
	case errors.Is(err, setlink.ErrMissingCredentials):
		return http.StatusServiceUnavailable, "missing_credentials"
	case errors.Is(err, setlink.ErrUnsupportedPlatform):
		return http.StatusBadRequest, "unsupported_platform"
	case errors.Is(err, setlink.ErrInvalidURL):
		return http.StatusBadRequest, "invalid_url"
	case errors.Is(err, catalog.ErrInvalidEntry):
		return http.StatusBadRequest, "invalid_entry"
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, setlink.ErrUpstreamAuth):
		return http.StatusBadGateway, "upstream_auth"
	case errors.As(err, &reqErr):
		return http.StatusBadGateway, "upstream_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}
