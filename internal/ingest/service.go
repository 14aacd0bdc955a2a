// Package ingest turns submitted links into catalog ids.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"raveview/pkg/setlink"
)

// MetadataResolver resolves a raw URL into set metadata.
type MetadataResolver interface {
	ResolveMetadata(ctx context.Context, rawURL string) (*setlink.SetMetadata, error)
}

// Catalog looks up and creates catalog entries by canonical URL.
type Catalog interface {
	FindByURL(ctx context.Context, url string) (string, bool, error)
	Ingest(ctx context.Context, meta *setlink.SetMetadata, creatorID string) (string, bool, error)
}

// Result is the outcome of a submission.
type Result struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Created bool   `json:"created"`
}

// Service runs the submission pipeline.
type Service struct {
	resolver MetadataResolver
	catalog  Catalog
	logger   *zap.Logger
}

// NewService creates a submission pipeline.
func NewService(resolver MetadataResolver, catalog Catalog, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{resolver: resolver, catalog: catalog, logger: logger}
}

// Submit canonicalizes raw, returns the existing entry if the URL is already catalogued,
// and otherwise resolves metadata and creates the entry.
func (s *Service) Submit(ctx context.Context, raw, creatorID string) (*Result, error) {
	canonical := setlink.Canonicalize(raw)
	if _, err := setlink.Detect(canonical); err != nil {
		return nil, err
	}

	id, found, err := s.catalog.FindByURL(ctx, canonical)
	if err != nil {
		return nil, err
	}
	if found {
		s.logger.Debug("Submission already catalogued", zap.String("url", canonical), zap.String("id", id))
		return &Result{ID: id, URL: canonical}, nil
	}

	meta, err := s.resolver.ResolveMetadata(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", canonical, err)
	}

	id, created, err := s.catalog.Ingest(ctx, meta, creatorID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Submission ingested",
		zap.String("url", canonical),
		zap.String("id", id),
		zap.Bool("created", created),
		zap.String("creator", creatorID))
	return &Result{ID: id, URL: canonical, Created: created}, nil
}

// Preview resolves metadata without touching the catalog.
func (s *Service) Preview(ctx context.Context, raw string) (*setlink.SetMetadata, error) {
	return s.resolver.ResolveMetadata(ctx, raw)
}
