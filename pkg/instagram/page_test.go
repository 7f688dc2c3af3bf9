package instagram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"instadb/pkg/errors"
	"instadb/pkg/models"
)

const feedPage = `{
  "status": "ok",
  "more_available": true,
  "items": [
    {
      "id": "1700_1",
      "code": "PHOTO1",
      "type": "image",
      "created_time": "1500000000",
      "likes": {"count": 42},
      "location": {"name": "Reykjavik"},
      "caption": {"text": "northern lights"},
      "images": {"standard_resolution": {"url": "https://cdn.example/t51/s640x640/sh0.08/e35/p640x640/a.jpg"}}
    },
    {
      "id": "1700_2",
      "code": "VIDEO1",
      "type": "video",
      "created_time": 1500000100,
      "location": null,
      "caption": null,
      "images": {"standard_resolution": {"url": "https://cdn.example/thumb.jpg"}},
      "videos": {"standard_resolution": {"url": "https://cdn.example/v.mp4"}}
    },
    {
      "id": "1700_3",
      "code": "CAROUSEL1",
      "type": "carousel",
      "created_time": "1500000200",
      "likes": {"count": 0},
      "caption": {"text": ""},
      "carousel_media": [
        {"type": "image", "images": {"standard_resolution": {"url": "https://cdn.example/p640x640/c1.jpg"}}},
        {"type": "video", "videos": {"standard_resolution": {"url": "https://cdn.example/c2.mp4"}}},
        {"type": "image", "images": {"standard_resolution": {"url": "https://cdn.example/c3.jpg"}}}
      ]
    }
  ]
}`

func TestPageBasics(t *testing.T) {
	page := NewPage([]byte(feedPage), PageOptions{})

	assert.Equal(t, 3, page.PostCount())
	assert.True(t, page.HasMorePages())
	assert.Equal(t, "1700_3", page.NextCursor())
	assert.False(t, page.IsPrivateOrEmpty(true))
	assert.Equal(t, "PHOTO1", page.Shortcode(0))
	assert.Equal(t, "1700_2", page.Cursor(1))
}

func TestPageDate(t *testing.T) {
	page := NewPage([]byte(feedPage), PageOptions{})

	date, err := page.Date(0)
	require.NoError(t, err)
	assert.Equal(t, "2017:07:14 02:40:00", date)

	date, err = page.Date(1)
	require.NoError(t, err)
	assert.Equal(t, "2017:07:14 02:41:40", date, "numeric created_time")
}

func TestPageDateInZone(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	page := NewPage([]byte(feedPage), PageOptions{Location: loc})

	date, err := page.Date(0)
	require.NoError(t, err)
	assert.Equal(t, "2017:07:13 21:40:00", date)
}

func TestPageLikes(t *testing.T) {
	page := NewPage([]byte(feedPage), PageOptions{})

	likes, present := page.Likes(0)
	assert.Equal(t, 42, likes)
	assert.True(t, present)

	likes, present = page.Likes(1)
	assert.Equal(t, 0, likes, "hidden likes normalise to zero")
	assert.False(t, present)

	likes, present = page.Likes(2)
	assert.Equal(t, 0, likes)
	assert.True(t, present, "explicit zero is not hidden")
}

func TestPageOptionalFields(t *testing.T) {
	page := NewPage([]byte(feedPage), PageOptions{})

	require.NotNil(t, page.Location(0))
	assert.Equal(t, "Reykjavik", *page.Location(0))
	require.NotNil(t, page.Caption(0))
	assert.Equal(t, "northern lights", *page.Caption(0))

	assert.Nil(t, page.Location(1))
	assert.Nil(t, page.Caption(1))
	assert.Nil(t, page.Location(2), "location key absent")
	assert.Nil(t, page.Caption(2), "empty caption")
}

func TestPageMediaURLs(t *testing.T) {
	page := NewPage([]byte(feedPage), PageOptions{})

	urls, err := page.MediaURLs(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example/t51/sh0.08/e35/a.jpg"}, urls)

	urls, err = page.MediaURLs(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example/v.mp4"}, urls)

	urls, err = page.MediaURLs(2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://cdn.example/c1.jpg",
		"https://cdn.example/c2.mp4",
		"https://cdn.example/c3.jpg",
	}, urls)
}

func TestPageUnknownSlideType(t *testing.T) {
	raw := `{"more_available": false, "items": [{
		"id": "1", "code": "X", "type": "carousel", "created_time": "1500000000",
		"carousel_media": [
			{"type": "image", "images": {"standard_resolution": {"url": "https://cdn.example/a.jpg"}}},
			{"type": "hologram"}
		]
	}]}`
	page := NewPage([]byte(raw), PageOptions{})

	_, err := page.MediaURLs(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeParsing))
	assert.Contains(t, err.Error(), "hologram")
}

func TestPageUnknownPostType(t *testing.T) {
	raw := `{"items": [{"id": "1", "code": "X", "type": "story", "created_time": "1500000000"}]}`
	page := NewPage([]byte(raw), PageOptions{})

	_, err := page.Post(0)
	assert.True(t, errors.Is(err, errors.ErrorTypeParsing))
}

func TestPageMissingID(t *testing.T) {
	raw := `{"more_available": true, "items": [{"code": "X", "type": "image", "created_time": "1500000000",
		"images": {"standard_resolution": {"url": "https://cdn.example/a.jpg"}}}]}`
	page := NewPage([]byte(raw), PageOptions{})

	_, err := page.Post(0)
	assert.True(t, errors.Is(err, errors.ErrorTypeParsing), "a post without id cannot continue the feed")
}

func TestPageMissingURL(t *testing.T) {
	raw := `{"items": [{"id": "1", "code": "X", "type": "video", "created_time": "1500000000"}]}`
	page := NewPage([]byte(raw), PageOptions{})

	_, err := page.MediaURLs(0)
	assert.True(t, errors.Is(err, errors.ErrorTypeParsing))
}

func TestPageBadTimestamp(t *testing.T) {
	raw := `{"items": [{"id": "1", "code": "X", "type": "image", "created_time": "yesterday"}]}`
	page := NewPage([]byte(raw), PageOptions{})

	_, err := page.Date(0)
	assert.True(t, errors.Is(err, errors.ErrorTypeParsing))
}

func TestPagePost(t *testing.T) {
	page := NewPage([]byte(feedPage), PageOptions{})

	post, err := page.Post(1)
	require.NoError(t, err)

	assert.Equal(t, "VIDEO1", post.Shortcode)
	assert.Equal(t, models.MediaTypeVideo, post.Type)
	assert.Equal(t, "2017:07:14 02:41:40", post.Date)
	assert.Equal(t, int64(1500000100), post.Timestamp.Unix())
	assert.Equal(t, 0, post.Likes)
	assert.True(t, post.LikesHidden)
	assert.Nil(t, post.Caption)
	assert.Equal(t, "1700_2", post.Cursor)

	photo, err := page.Post(0)
	require.NoError(t, err)
	assert.Equal(t, models.MediaTypePhoto, photo.Type, "image normalises to photo")

	_, err = page.Post(3)
	assert.True(t, errors.Is(err, errors.ErrorTypeParsing))
}

func TestEmptyPage(t *testing.T) {
	page := NewPage([]byte(`{"items": [], "more_available": false}`), PageOptions{})

	assert.Equal(t, 0, page.PostCount())
	assert.True(t, page.IsPrivateOrEmpty(true))
	assert.False(t, page.IsPrivateOrEmpty(false))
	assert.Equal(t, "", page.NextCursor())
	assert.False(t, page.HasMorePages())
}

func TestCleanImageURLIdempotent(t *testing.T) {
	urls := []string{
		"https://x/p640x640/a.jpg",
		"https://x/s640x640/p640x640/a.jpg",
		"https://x/p6s640x640/40x640/a.jpg",
		"https://x/ps640x640/640x640/s640x640/a.jpg",
		"https://x/a.jpg",
		"",
	}

	for _, u := range urls {
		once := CleanImageURL(u)
		assert.Equal(t, once, CleanImageURL(once), u)
	}
	assert.Equal(t, "https://x/a.jpg", CleanImageURL("https://x/p640x640/a.jpg"))
	assert.Equal(t, "https://x/a.jpg", CleanImageURL("https://x/p6s640x640/40x640/a.jpg"))
}
