package integration

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"instadb/pkg/checkpoint"
	"instadb/pkg/errors"
	"instadb/pkg/logger"
	"instadb/pkg/metadata"
	"instadb/pkg/scraper"
)

func twoPageFeed(m *MockInstagramServer) {
	m.SetPage("", true, FeedPost{Code: "A", ID: "C0", Likes: 10}, FeedPost{Code: "B", ID: "C1", Likes: 20})
	m.SetPage("C1", false, FeedPost{Code: "C", ID: "C2", Likes: 30})
}

func TestTwoPageScrapeIntoSQLite(t *testing.T) {
	h := NewTestHelper(t)
	twoPageFeed(h.Server())
	cfg := h.CreateTestConfig()

	res, err := h.Run(cfg, false)
	require.NoError(t, err)

	assert.Equal(t, scraper.StateDone, res.State)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 3, res.Downloaded)
	assert.Equal(t, []string{"", "C1"}, h.Server().Cursors())

	st := h.OpenStore(cfg)
	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rec, err := st.Get(context.Background(), "B")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.Likes)
	assert.Equal(t, 20, *rec.Likes)
	assert.Equal(t, "2017:07:14 02:40:00", rec.Date)
	assert.Equal(t, []string{h.Server().GetURL() + "/cdn/B.jpg"}, rec.MediaURLs())

	for _, code := range []string{"A", "B", "C"} {
		h.AssertFileExists(h.MediaPath(cfg, code))
	}

	meta, err := metadata.Load(h.MediaPath(cfg, "A"))
	require.NoError(t, err)
	assert.Equal(t, "caption of A", meta.Caption)

	mgr, err := checkpoint.NewManager(cfg.Output.CheckpointDir, testAccount, logger.NewNopLogger())
	require.NoError(t, err)
	assert.False(t, mgr.Exists(), "a completed run leaves no checkpoint")
}

func TestSecondRunOnlyUpdatesLikes(t *testing.T) {
	h := NewTestHelper(t)
	twoPageFeed(h.Server())
	cfg := h.CreateTestConfig()

	_, err := h.Run(cfg, false)
	require.NoError(t, err)

	h.Server().SetPage("", true, FeedPost{Code: "A", ID: "C0", Likes: 11}, FeedPost{Code: "B", ID: "C1", Likes: 20})
	h.Server().ResetCounters()

	res, err := h.Run(cfg, false)
	require.NoError(t, err)

	assert.Zero(t, res.Inserted)
	assert.Equal(t, 1, res.Updated)
	assert.Zero(t, h.Server().MediaHits(), "known posts are not downloaded again")

	likes, err := h.OpenStore(cfg).Likes(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 11, likes)
}

func TestNewOnlyStopsAtKnownPost(t *testing.T) {
	h := NewTestHelper(t)
	h.Server().SetPage("", true, FeedPost{Code: "OLD", ID: "C0", Likes: 1})
	h.Server().SetPage("C0", false, FeedPost{Code: "OLDER", ID: "C1", Likes: 1})
	cfg := h.CreateTestConfig()

	_, err := h.Run(cfg, false)
	require.NoError(t, err)

	h.Server().SetPage("", true,
		FeedPost{Code: "NEW", ID: "N0", Likes: 1},
		FeedPost{Code: "OLD", ID: "C0", Likes: 1},
	)
	h.Server().ResetCounters()
	cfg.Download.NewOnly = true

	res, err := h.Run(cfg, false)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, []string{""}, h.Server().Cursors())
}

func TestNewOnlyWithoutStoreStopsAtDownloadedFile(t *testing.T) {
	h := NewTestHelper(t)
	twoPageFeed(h.Server())
	cfg := h.CreateTestConfig()
	cfg.Store.Enabled = false

	_, err := h.Run(cfg, false)
	require.NoError(t, err)

	h.Server().SetPage("", true,
		FeedPost{Code: "NEW", ID: "N0", Likes: 1},
		FeedPost{Code: "A", ID: "C0", Likes: 10},
		FeedPost{Code: "B", ID: "C1", Likes: 20},
	)
	h.Server().ResetCounters()
	cfg.Download.NewOnly = true

	res, err := h.Run(cfg, false)
	require.NoError(t, err)

	assert.Equal(t, scraper.StateDone, res.State)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, []string{""}, h.Server().Cursors())
	h.AssertFileExists(h.MediaPath(cfg, "NEW"))
}

func TestMetadataOnlyWritesNoFiles(t *testing.T) {
	h := NewTestHelper(t)
	twoPageFeed(h.Server())
	cfg := h.CreateTestConfig()
	cfg.Download.MetadataOnly = true

	res, err := h.Run(cfg, false)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Inserted)
	assert.Zero(t, h.Server().MediaHits())
	_, statErr := os.Stat(cfg.OutputDir(testAccount))
	assert.True(t, os.IsNotExist(statErr), "no media directory in metadata-only mode")
}

func TestPrivateAccount(t *testing.T) {
	h := NewTestHelper(t)
	h.Server().SetPage("", false)
	cfg := h.CreateTestConfig()

	res, err := h.Run(cfg, false)
	require.Error(t, err)

	assert.True(t, errors.Is(err, errors.ErrorTypePrivate))
	assert.Equal(t, scraper.StateAbort, res.State)

	n, err := h.OpenStore(cfg).Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUnknownAccount(t *testing.T) {
	h := NewTestHelper(t)
	cfg := h.CreateTestConfig()

	_, err := h.Run(cfg, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeNotFound))
	assert.Len(t, h.Server().Cursors(), 1, "not_found is never retried")
}

func TestMalformedBodyIsSaved(t *testing.T) {
	h := NewTestHelper(t)
	h.Server().SetRawBody("", "<html>please log in</html>")
	cfg := h.CreateTestConfig()

	_, err := h.Run(cfg, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeMalformed))

	data, readErr := os.ReadFile(filepath.Join(cfg.OutputDir(testAccount), cfg.Output.DiagnosticsFile))
	require.NoError(t, readErr)
	assert.Equal(t, "<html>please log in</html>", string(data))
}

func TestResumeAfterServerError(t *testing.T) {
	h := NewTestHelper(t)
	twoPageFeed(h.Server())
	h.Server().SetError("C1", http.StatusBadGateway)
	cfg := h.CreateTestConfig()

	res, err := h.Run(cfg, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeServerError))
	assert.Equal(t, 2, res.Inserted)

	h.Server().ClearError("C1")
	h.Server().ResetCounters()

	res, err = h.Run(cfg, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"C1"}, h.Server().Cursors(), "resumes after the last processed post")
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 3, res.Processed)

	n, err := h.OpenStore(cfg).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestBoltStore(t *testing.T) {
	h := NewTestHelper(t)
	twoPageFeed(h.Server())
	cfg := h.CreateTestConfig()
	cfg.Store.Driver = "bolt"

	res, err := h.Run(cfg, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)

	res, err = h.Run(cfg, false)
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)

	h.AssertFileExists(filepath.Join(cfg.Store.Directory, testAccount+".bolt"))
}
