// Package setlink resolves YouTube and SoundCloud links to DJ set metadata.
package setlink

import (
	"context"
	"time"
)

// Platform identifies the provider hosting a set.
type Platform string

const (
	// PlatformYouTube is the video provider.
	PlatformYouTube Platform = "youtube"
	// PlatformSoundCloud is the audio provider.
	PlatformSoundCloud Platform = "soundcloud"
)

// SetMetadata is the canonical record produced by every resolver.
type SetMetadata struct {
	Platform     Platform   `json:"platform"`
	PlatformID   string     `json:"platformId"`
	CanonicalURL string     `json:"url"`
	Title        string     `json:"title"`
	Artist       string     `json:"artist"`
	ThumbnailURL string     `json:"thumbnailUrl,omitempty"`
	DurationSec  *int       `json:"durationSec,omitempty"`
	UploadedAt   *time.Time `json:"uploadedAt,omitempty"` // Date only, UTC midnight.
}

// Resolver turns a canonical URL into set metadata for one platform.
type Resolver interface {
	// Resolve fetches metadata for a canonical URL.
	Resolve(ctx context.Context, url string) (*SetMetadata, error)

	// Platform reports which platform this resolver serves.
	Platform() Platform
}
