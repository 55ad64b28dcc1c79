package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedPlatform is returned for identifiers outside the supported set
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Platform identifies one external content source
type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformLinkedIn Platform = "linkedin"
	PlatformDiscord  Platform = "discord"
	PlatformTelegram Platform = "telegram"
	PlatformYouTube  Platform = "youtube"
	PlatformBlog     Platform = "blog"
)

var supportedPlatforms = []Platform{
	PlatformTwitter,
	PlatformLinkedIn,
	PlatformDiscord,
	PlatformTelegram,
	PlatformYouTube,
	PlatformBlog,
}

// SupportedPlatforms returns the closed set of platforms, in canonical order
func SupportedPlatforms() []Platform {
	out := make([]Platform, len(supportedPlatforms))
	copy(out, supportedPlatforms)
	return out
}

// ParsePlatform validates a raw identifier. Matching ignores case and surrounding space.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if p.Valid() {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s)
}

// Valid reports whether p is in the supported set
func (p Platform) Valid() bool {
	for _, sp := range supportedPlatforms {
		if p == sp {
			return true
		}
	}
	return false
}

func (p Platform) String() string {
	return string(p)
}
