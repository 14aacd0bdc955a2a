package http

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"raveview/pkg/setlink"
)

const (
	maxRequestBodyBytes = 64 << 10
	readyPingTimeout    = 2 * time.Second

	floodActionSubmit   = "submit"
	floodActionMetadata = "metadata"
)

// thumbnailHosts are the only hosts the thumbnail lookup will query.
var thumbnailHosts = map[string]bool{
	"soundcloud.com":   true,
	"m.soundcloud.com": true,
}

var (
	errMissingURL   = fmt.Errorf("%w: url is required", setlink.ErrInvalidURL)
	errPrivateHost  = fmt.Errorf("%w: private hosts are not allowed", setlink.ErrInvalidURL)
	errHostNotAllow = fmt.Errorf("%w: host is not an allowed SoundCloud host", setlink.ErrInvalidURL)
)

type urlRequest struct {
	URL string `json:"url"`
}

type submitResponse struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Created bool   `json:"created"`
}

type lookupResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type thumbnailResponse struct {
	ThumbnailURL string `json:"thumbnailUrl"`
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	req, err := decodeURLRequest(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if !s.allow(w, floodActionMetadata, s.callerKey(r)) {
		return
	}

	meta, err := s.deps.Submitter.Preview(r.Context(), req.URL)
	if err != nil {
		_, code := classify(err)
		s.metrics.recordResolveError(code)
		s.logger.Warn("Metadata preview failed", zap.String("url", req.URL), zap.Error(err))
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(s.config.UserHeader))
	if userID == "" {
		s.metrics.recordSubmission("unauthenticated")
		writeJSON(w, http.StatusUnauthorized, apiError{Error: "authentication required", Code: "unauthenticated"})
		return
	}

	req, err := decodeURLRequest(w, r)
	if err != nil {
		s.metrics.recordSubmission("rejected")
		s.writeError(w, err)
		return
	}

	if !s.allow(w, floodActionSubmit, userID) {
		s.metrics.recordSubmission("flooded")
		return
	}

	result, err := s.deps.Submitter.Submit(r.Context(), req.URL, userID)
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			s.metrics.recordResolveError(code)
			s.metrics.recordSubmission("failed")
			s.logger.Error("Submission failed", zap.String("url", req.URL), zap.String("user", userID), zap.Error(err))
		} else {
			s.metrics.recordSubmission("rejected")
		}
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
		s.metrics.recordSubmission("created")
	} else {
		s.metrics.recordSubmission("existing")
	}
	writeJSON(w, status, submitResponse{ID: result.ID, URL: result.URL, Created: result.Created})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if strings.TrimSpace(raw) == "" {
		s.writeError(w, errMissingURL)
		return
	}

	canonical := setlink.Canonicalize(raw)
	id, found, err := s.deps.Catalog.FindByURL(r.Context(), canonical)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, apiError{Error: "set not catalogued", Code: "not_found"})
		return
	}

	writeJSON(w, http.StatusOK, lookupResponse{ID: id, URL: canonical})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := s.deps.Catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	pageURL, err := validateThumbnailURL(r.URL.Query().Get("url"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.deps.Thumbnails == nil {
		writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "thumbnail lookup disabled", Code: "unavailable"})
		return
	}

	thumbnail, err := s.deps.Thumbnails.FetchThumbnail(r.Context(), pageURL)
	if err != nil {
		s.logger.Warn("Thumbnail lookup failed", zap.String("url", pageURL), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, apiError{Error: "thumbnail lookup failed", Code: "upstream_request"})
		return
	}

	writeJSON(w, http.StatusOK, thumbnailResponse{ThumbnailURL: thumbnail})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "raveview"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ready", "service": "raveview"}
	if s.deps.Flood != nil {
		body["flood"] = s.deps.Flood.Stats()
	}

	if s.deps.Catalog != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyPingTimeout)
		defer cancel()

		if err := s.deps.Catalog.Ping(ctx); err != nil {
			s.logger.Warn("Readiness check failed", zap.Error(err))
			body["status"] = "unavailable"
			body["error"] = "catalog unreachable"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}

	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>raveview</title></head>
<body>
    <h1>raveview</h1>
    <p>DJ set ingestion for YouTube and SoundCloud links.</p>
    <ul>
        <li>POST /api/sets/metadata</li>
        <li>POST /api/sets</li>
        <li>GET /api/sets?url=</li>
        <li>GET /api/sets/{id}</li>
        <li>GET /api/soundcloud/thumbnail?url=</li>
        <li><a href="/metrics">/metrics</a>, <a href="/healthz">/healthz</a>, <a href="/readyz">/readyz</a></li>
    </ul>
</body>
</html>`))
}

// allow applies flood control and writes the 429 response when the caller is over the limit.
func (s *Server) allow(w http.ResponseWriter, action, key string) bool {
	if s.deps.Flood == nil {
		return true
	}

	decision := s.deps.Flood.Check(action, key)
	if decision.Allowed {
		return true
	}

	s.metrics.recordFloodRejection(action)
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeJSON(w, http.StatusTooManyRequests, apiError{Error: "too many submissions, slow down", Code: "flooded"})
	return false
}

// callerKey identifies anonymous callers by user header, falling back to the remote address.
func (s *Server) callerKey(r *http.Request) string {
	if user := strings.TrimSpace(r.Header.Get(s.config.UserHeader)); user != "" {
		return user
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
		message = "internal error"
	}
	writeJSON(w, status, apiError{Error: message, Code: code})
}

func decodeURLRequest(w http.ResponseWriter, r *http.Request) (*urlRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: malformed request body", setlink.ErrInvalidURL)
	}
	if strings.TrimSpace(req.URL) == "" {
		return nil, errMissingURL
	}
	return &req, nil
}

// validateThumbnailURL accepts only http(s) URLs on the SoundCloud allow-list.
func validateThumbnailURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errMissingURL
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: not an http(s) url", setlink.ErrInvalidURL)
	}

	host := strings.ToLower(u.Hostname())
	if isPrivateHost(host) {
		return "", errPrivateHost
	}
	if !thumbnailHosts[host] || u.Port() != "" || u.User != nil {
		return "", errHostNotAllow
	}

	u.Host = host
	return u.String(), nil
}

func isPrivateHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
