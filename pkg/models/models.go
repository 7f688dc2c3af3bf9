package models

import (
	"strings"
	"time"
)

// MediaType is the kind of a post as reported by the media feed
type MediaType string

const (
	MediaTypePhoto    MediaType = "photo"
	MediaTypeVideo    MediaType = "video"
	MediaTypeCarousel MediaType = "carousel"
)

// ParseMediaType maps the feed's type strings onto a MediaType.
// The feed reports photos as "image" on some revisions.
func ParseMediaType(s string) (MediaType, bool) {
	switch strings.ToLower(s) {
	case "photo", "image":
		return MediaTypePhoto, true
	case "video":
		return MediaTypeVideo, true
	case "carousel":
		return MediaTypeCarousel, true
	default:
		return "", false
	}
}

// MediaDelimiter joins media URLs when a post is persisted
const MediaDelimiter = ","

// Post is a single feed entry extracted from one page
type Post struct {
	Shortcode string
	Date      string
	Timestamp time.Time
	Type      MediaType

	// Likes is the normalised count. LikesHidden is set when the feed omitted
	// the likes object entirely, as opposed to reporting zero.
	Likes       int
	LikesHidden bool

	Location  *string
	Caption   *string
	MediaURLs []string

	// Cursor is the feed id of this post, used as max_id for the next page
	Cursor string
}

// JoinedMedia returns the media URLs in their persisted form
func (p Post) JoinedMedia() string {
	return strings.Join(p.MediaURLs, MediaDelimiter)
}

// CaptionText returns the caption or an empty string
func (p Post) CaptionText() string {
	if p.Caption == nil {
		return ""
	}
	return *p.Caption
}

// LocationName returns the location or an empty string
func (p Post) LocationName() string {
	if p.Location == nil {
		return ""
	}
	return *p.Location
}

// SplitMedia is the inverse of JoinedMedia
func SplitMedia(media string) []string {
	if media == "" {
		return nil
	}
	return strings.Split(media, MediaDelimiter)
}
