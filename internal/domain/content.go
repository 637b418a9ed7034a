package domain

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusScheduled Status = "SCHEDULED"
	// StatusPublishing marks an item claimed by a running reconciliation.
	StatusPublishing Status = "PUBLISHING"
	StatusPublished  Status = "PUBLISHED"
)

type Platform string

const (
	PlatformTelegram  Platform = "TELEGRAM"
	PlatformInstagram Platform = "INSTAGRAM"
	PlatformFacebook  Platform = "FACEBOOK"
	PlatformTwitter   Platform = "TWITTER"
	PlatformLinkedIn  Platform = "LINKEDIN"
)

func (p Platform) String() string {
	return string(p)
}

// ParsePlatforms turns loosely formatted identifiers into a platform set.
// Blank entries are dropped, duplicates collapse, case is normalised.
func ParsePlatforms(raw []string) []Platform {
	platforms := lo.FilterMap(raw, func(s string, _ int) (Platform, bool) {
		s = strings.ToUpper(strings.TrimSpace(s))
		return Platform(s), s != ""
	})
	return lo.Uniq(platforms)
}

type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

type Media struct {
	URL      string
	Kind     MediaKind
	MimeType string
}

// ResolvedKind returns the declared kind, falling back to the MIME type.
func (m Media) ResolvedKind() MediaKind {
	switch MediaKind(strings.ToLower(string(m.Kind))) {
	case MediaImage:
		return MediaImage
	case MediaVideo:
		return MediaVideo
	case MediaDocument:
		return MediaDocument
	}
	return DetectMediaKind(m.MimeType)
}

func DetectMediaKind(mimeType string) MediaKind {
	lower := strings.ToLower(mimeType)
	if strings.HasPrefix(lower, "image/") {
		return MediaImage
	}
	if strings.HasPrefix(lower, "video/") {
		return MediaVideo
	}
	return MediaDocument
}

type ContentItem struct {
	ID        string
	UserID    string
	Title     string
	Body      string
	Media     []Media
	Hashtags  []string
	Platforms []Platform
	Status    Status

	// ScheduledFor is set while the item is SCHEDULED.
	ScheduledFor *time.Time
	// PublishedAt is written once, on the transition to PUBLISHED.
	PublishedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDue reports whether the item is scheduled and its time has passed.
func (c *ContentItem) IsDue(now time.Time) bool {
	return c.Status == StatusScheduled && c.ScheduledFor != nil && c.ScheduledFor.Before(now)
}
