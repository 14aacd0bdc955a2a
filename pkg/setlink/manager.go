package setlink

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	// DefaultMetadataCacheSize bounds the number of cached resolutions.
	DefaultMetadataCacheSize = 1024
	// DefaultMetadataCacheTTL is how long a resolution is reused.
	DefaultMetadataCacheTTL = 5 * time.Minute
)

// Manager canonicalizes, detects the platform, and dispatches to the matching resolver.
type Manager struct {
	resolvers map[Platform]Resolver
	cache     *expirable.LRU[string, SetMetadata]
	logger    *zap.Logger
}

// NewManager creates a manager over the given resolvers. A cacheSize of zero disables caching.
func NewManager(logger *zap.Logger, cacheSize int, cacheTTL time.Duration, resolvers ...Resolver) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		resolvers: make(map[Platform]Resolver, len(resolvers)),
		logger:    logger,
	}
	for _, r := range resolvers {
		m.resolvers[r.Platform()] = r
	}
	if cacheSize > 0 {
		m.cache = expirable.NewLRU[string, SetMetadata](cacheSize, nil, cacheTTL)
	}

	return m
}

// ResolveMetadata turns a raw submitted URL into SetMetadata.
// Unsupported hosts fail before any network call.
func (m *Manager) ResolveMetadata(ctx context.Context, rawURL string) (*SetMetadata, error) {
	canonical := Canonicalize(rawURL)

	platform, err := Detect(canonical)
	if err != nil {
		return nil, err
	}

	resolver, ok := m.resolvers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: no resolver registered for %s", ErrUnsupportedPlatform, platform)
	}

	if m.cache != nil {
		if cached, hit := m.cache.Get(canonical); hit {
			m.logger.Debug("Metadata cache hit", zap.String("url", canonical))
			return cloneMetadata(&cached), nil
		}
	}

	meta, err := resolver.Resolve(ctx, canonical)
	if err != nil {
		return nil, err
	}

	meta.Platform = platform
	meta.CanonicalURL = canonical
	if meta.PlatformID == "" {
		meta.PlatformID = canonical
	}

	if m.cache != nil {
		m.cache.Add(canonical, *cloneMetadata(meta))
	}

	m.logger.Debug("Resolved set metadata",
		zap.String("platform", string(platform)),
		zap.String("platform_id", meta.PlatformID),
		zap.String("url", canonical))

	return meta, nil
}

func cloneMetadata(meta *SetMetadata) *SetMetadata {
	out := *meta
	if meta.DurationSec != nil {
		out.DurationSec = intPtr(*meta.DurationSec)
	}
	if meta.UploadedAt != nil {
		t := *meta.UploadedAt
		out.UploadedAt = &t
	}
	return &out
}
