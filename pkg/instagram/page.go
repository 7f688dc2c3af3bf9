package instagram

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"instadb/pkg/errors"
	"instadb/pkg/models"
)

// DateLayout renders post dates the way EXIF DateTimeOriginal expects them
const DateLayout = "2006:01:02 15:04:05"

// PageOptions holds the parsing policies applied to every page
type PageOptions struct {
	// Location renders created_time; nil means UTC
	Location *time.Location
}

// Page is one decoded response of the media feed.
// All accessors are pure reads indexed by zero-based post position.
type Page struct {
	raw   []byte
	items []gjson.Result
	more  bool
	loc   *time.Location
}

// NewPage wraps a validated JSON body
func NewPage(raw []byte, opts PageOptions) *Page {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Page{
		raw:   raw,
		items: gjson.GetBytes(raw, "items").Array(),
		more:  gjson.GetBytes(raw, "more_available").Bool(),
		loc:   loc,
	}
}

// Raw returns the body the page was built from
func (p *Page) Raw() []byte {
	return p.raw
}

// PostCount returns the number of posts on the page
func (p *Page) PostCount() int {
	return len(p.items)
}

// HasMorePages reports the feed's more_available flag
func (p *Page) HasMorePages() bool {
	return p.more
}

// IsPrivateOrEmpty reports an inaccessible account: no posts on the first page
func (p *Page) IsPrivateOrEmpty(firstPage bool) bool {
	return firstPage && len(p.items) == 0
}

// NextCursor returns the id of the last post on the page, or "" for an empty page
func (p *Page) NextCursor() string {
	if len(p.items) == 0 {
		return ""
	}
	return p.Cursor(len(p.items) - 1)
}

func (p *Page) item(i int) gjson.Result {
	if i < 0 || i >= len(p.items) {
		return gjson.Result{}
	}
	return p.items[i]
}

func parseError(i int, format string, args ...interface{}) error {
	return errors.New(errors.ErrorTypeParsing, fmt.Sprintf("post %d: ", i)+fmt.Sprintf(format, args...))
}

// Shortcode returns the post's share code
func (p *Page) Shortcode(i int) string {
	return p.item(i).Get("code").String()
}

// Cursor returns the post's feed id
func (p *Page) Cursor(i int) string {
	return p.item(i).Get("id").String()
}

// Timestamp parses created_time, which the feed sends as a string or a number
func (p *Page) Timestamp(i int) (time.Time, error) {
	ct := p.item(i).Get("created_time")

	var secs int64
	switch ct.Type {
	case gjson.Number:
		secs = ct.Int()
	case gjson.String:
		n, err := strconv.ParseInt(strings.TrimSpace(ct.Str), 10, 64)
		if err != nil {
			return time.Time{}, parseError(i, "created_time %q is not a unix time", ct.Str)
		}
		secs = n
	default:
		return time.Time{}, parseError(i, "created_time missing")
	}

	return time.Unix(secs, 0).In(p.loc), nil
}

// Date returns created_time formatted with DateLayout in the configured zone
func (p *Page) Date(i int) (string, error) {
	ts, err := p.Timestamp(i)
	if err != nil {
		return "", err
	}
	return ts.Format(DateLayout), nil
}

// Type returns the post's media type
func (p *Page) Type(i int) (models.MediaType, error) {
	raw := p.item(i).Get("type").String()
	t, ok := models.ParseMediaType(raw)
	if !ok {
		return "", parseError(i, "unknown media type %q", raw)
	}
	return t, nil
}

// Likes returns likes.count and whether the likes object was present at all.
// A hidden count yields (0, false), distinct from an explicit (0, true).
func (p *Page) Likes(i int) (int, bool) {
	count := p.item(i).Get("likes.count")
	if !count.Exists() || count.Type == gjson.Null {
		return 0, false
	}
	return int(count.Int()), true
}

// Location returns the tagged location name, or nil
func (p *Page) Location(i int) *string {
	return optionalString(p.item(i).Get("location.name"))
}

// Caption returns the caption text, or nil when absent or empty
func (p *Page) Caption(i int) *string {
	return optionalString(p.item(i).Get("caption.text"))
}

func optionalString(r gjson.Result) *string {
	if r.Type != gjson.String || r.Str == "" {
		return nil
	}
	s := r.Str
	return &s
}

// MediaURLs resolves the post's media. Carousel slides resolve independently, in order.
func (p *Page) MediaURLs(i int) ([]string, error) {
	t, err := p.Type(i)
	if err != nil {
		return nil, err
	}

	item := p.item(i)
	switch t {
	case models.MediaTypeVideo:
		u, err := videoURL(item)
		if err != nil {
			return nil, parseError(i, "%v", err)
		}
		return []string{u}, nil
	case models.MediaTypeCarousel:
		return p.carouselURLs(i, item)
	default:
		u, err := imageURL(item)
		if err != nil {
			return nil, parseError(i, "%v", err)
		}
		return []string{u}, nil
	}
}

func (p *Page) carouselURLs(i int, item gjson.Result) ([]string, error) {
	slides := item.Get("carousel_media")
	if !slides.IsArray() {
		return nil, parseError(i, "carousel_media missing")
	}

	var urls []string
	var slideErr error
	slides.ForEach(func(key, slide gjson.Result) bool {
		var u string
		var err error
		switch kind := slide.Get("type").String(); kind {
		case "image":
			u, err = imageURL(slide)
		case "video":
			u, err = videoURL(slide)
		default:
			err = fmt.Errorf("unknown carousel slide type %q", kind)
		}
		if err != nil {
			slideErr = parseError(i, "slide %d: %v", key.Int(), err)
			return false
		}
		urls = append(urls, u)
		return true
	})
	if slideErr != nil {
		return nil, slideErr
	}
	if len(urls) == 0 {
		return nil, parseError(i, "carousel has no slides")
	}
	return urls, nil
}

func imageURL(r gjson.Result) (string, error) {
	u := r.Get("images.standard_resolution.url").String()
	if u == "" {
		return "", fmt.Errorf("image url missing")
	}
	return CleanImageURL(u), nil
}

func videoURL(r gjson.Result) (string, error) {
	u := r.Get("videos.standard_resolution.url").String()
	if u == "" {
		return "", fmt.Errorf("video url missing")
	}
	return u, nil
}

var resizeDir = regexp.MustCompile(`[ps]640x640/`)

// CleanImageURL strips the 640px resize directories to reach the full-size
// asset. Removal repeats until none is left, so the result is a fixed point.
func CleanImageURL(u string) string {
	for {
		next := resizeDir.ReplaceAllString(u, "")
		if next == u {
			return u
		}
		u = next
	}
}

// Post assembles every accessor for post i
func (p *Page) Post(i int) (models.Post, error) {
	if i < 0 || i >= len(p.items) {
		return models.Post{}, parseError(i, "index out of range (page has %d posts)", len(p.items))
	}

	shortcode := p.Shortcode(i)
	if shortcode == "" {
		return models.Post{}, parseError(i, "code missing")
	}
	cursor := p.Cursor(i)
	if cursor == "" {
		return models.Post{}, parseError(i, "id missing")
	}

	ts, err := p.Timestamp(i)
	if err != nil {
		return models.Post{}, err
	}
	t, err := p.Type(i)
	if err != nil {
		return models.Post{}, err
	}
	urls, err := p.MediaURLs(i)
	if err != nil {
		return models.Post{}, err
	}
	likes, present := p.Likes(i)

	return models.Post{
		Shortcode:   shortcode,
		Date:        ts.Format(DateLayout),
		Timestamp:   ts,
		Type:        t,
		Likes:       likes,
		LikesHidden: !present,
		Location:    p.Location(i),
		Caption:     p.Caption(i),
		MediaURLs:   urls,
		Cursor:      cursor,
	}, nil
}
