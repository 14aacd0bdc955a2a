package setlink

import (
	"math"
	"regexp"

	"github.com/tidwall/gjson"
)

// artworkSizeRegex matches the size token SoundCloud appends to artwork URLs.
var artworkSizeRegex = regexp.MustCompile(`-(?:large|t300x300|crop)\.(jpg|png)`)

// Fallback chains, tried in order. Playlists carry their tracks under "tracks".
var (
	soundcloudTitlePaths     = []string{"title", "tracks.0.title"}
	soundcloudArtistPaths    = []string{"publisher_metadata.artist", "user.username", "tracks.0.user.username"}
	soundcloudThumbnailPaths = []string{"artwork_url", "visuals.visuals.0.visual_url", "user.avatar_url"}
)

// mapSoundCloudResource converts a track or playlist payload into SetMetadata.
// The provider's field names stop here.
func mapSoundCloudResource(resource gjson.Result, canonicalURL string) *SetMetadata {
	meta := &SetMetadata{
		Platform:     PlatformSoundCloud,
		PlatformID:   resource.Get("id").String(),
		CanonicalURL: canonicalURL,
		Title:        cleanText(firstString(resource, soundcloudTitlePaths)),
		Artist:       cleanText(firstString(resource, soundcloudArtistPaths)),
		ThumbnailURL: UpscaleArtwork(firstString(resource, soundcloudThumbnailPaths)),
		UploadedAt:   datePart(resource.Get("created_at").String()),
	}
	if meta.PlatformID == "" {
		meta.PlatformID = canonicalURL
	}

	switch resource.Get("kind").String() {
	case soundcloudKindTrack:
		if d := resource.Get("duration"); d.Type == gjson.Number {
			meta.DurationSec = intPtr(millisToSeconds(d.Float()))
		}
	case soundcloudKindPlaylist:
		var totalMs float64
		for _, d := range resource.Get("tracks.#.duration").Array() {
			if d.Type == gjson.Number {
				totalMs += d.Float()
			}
		}
		if totalMs > 0 {
			meta.DurationSec = intPtr(millisToSeconds(totalMs))
		}
	}

	return meta
}

// UpscaleArtwork rewrites a SoundCloud artwork URL to request the 500x500 rendition.
func UpscaleArtwork(artworkURL string) string {
	if artworkURL == "" {
		return ""
	}
	return artworkSizeRegex.ReplaceAllString(artworkURL, "-t500x500.$1")
}

// firstString returns the first non-empty string among paths.
func firstString(resource gjson.Result, paths []string) string {
	for _, p := range paths {
		if v := resource.Get(p); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func millisToSeconds(ms float64) int {
	return int(math.Round(ms / 1000))
}
