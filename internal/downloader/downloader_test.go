package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"instadb/pkg/errors"
	"instadb/pkg/logger"
	"instadb/pkg/metadata"
	"instadb/pkg/models"
	"instadb/pkg/ratelimit"
	"instadb/pkg/retry"
	"instadb/pkg/storage"
)

var (
	jpegData = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, bytes.Repeat([]byte{0x01}, 32)...)
	mp4Data  = append([]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00}, bytes.Repeat([]byte{0x00}, 32)...)
)

// MockClient serves media bytes by URL and counts calls
type MockClient struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string][]error
}

func NewMockClient() *MockClient {
	return &MockClient{calls: make(map[string]int), failures: make(map[string][]error)}
}

func (m *MockClient) FailNext(url string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[url] = append(m.failures[url], errs...)
}

func (m *MockClient) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[url]++

	if pending := m.failures[url]; len(pending) > 0 {
		m.failures[url] = pending[1:]
		return nil, pending[0]
	}

	data := jpegData
	if storage.Extension(url) == "mp4" {
		data = mp4Data
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockClient) Calls(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[url]
}

func (m *MockClient) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// MockEmbedder records every request
type MockEmbedder struct {
	requests []metadata.Request
	err      error
}

func (m *MockEmbedder) Embed(ctx context.Context, req metadata.Request) error {
	m.requests = append(m.requests, req)
	return m.err
}

func caption(s string) *string { return &s }

func carouselPost() models.Post {
	return models.Post{
		Shortcode: "CAR",
		Date:      "2017:07:14 02:40:00",
		Type:      models.MediaTypeCarousel,
		Likes:     50,
		Caption:   caption("three slides"),
		MediaURLs: []string{
			"https://cdn.example/c1.jpg",
			"https://cdn.example/c2.mp4",
			"https://cdn.example/c3.jpg",
		},
	}
}

type fixture struct {
	client   *MockClient
	storage  *storage.Manager
	pacer    *ratelimit.Recorder
	embedder *MockEmbedder
	log      *logger.TestLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mgr, err := storage.NewManager(t.TempDir(), "natgeo")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	return &fixture{
		client:   NewMockClient(),
		storage:  mgr,
		pacer:    &ratelimit.Recorder{},
		embedder: &MockEmbedder{},
		log:      logger.NewTestLogger(),
	}
}

func (f *fixture) downloader(opts Options) *Downloader {
	opts.Account = "natgeo"
	if opts.Backoff == nil {
		opts.Backoff = &retry.ConstantBackoff{}
	}
	pacer := ratelimit.NewDelay(0, 0).WithSleep(f.pacer.Sleep)
	return New(f.client, f.storage, pacer, f.embedder, opts, f.log)
}

func TestDownloadCarousel(t *testing.T) {
	f := newFixture(t)
	d := f.downloader(Options{Tags: []string{"natgeo", "instagram"}})

	summary, err := d.DownloadPost(context.Background(), carouselPost())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.Downloaded != 3 {
		t.Errorf("Expected 3 downloads, got %+v", summary)
	}

	for _, name := range []string{"natgeo - CAR (1).jpg", "natgeo - CAR (2).mp4", "natgeo - CAR (3).jpg"} {
		if !f.storage.Exists(name) {
			t.Errorf("Expected %s to exist", name)
		}
	}

	if f.pacer.Count() != 3 {
		t.Errorf("Expected one file delay per download, got %d", f.pacer.Count())
	}

	if len(f.embedder.requests) != 3 {
		t.Fatalf("Expected 3 embed requests, got %d", len(f.embedder.requests))
	}
	req := f.embedder.requests[1]
	if req.Account != "natgeo" || req.Shortcode != "CAR" || req.Caption != "three slides" {
		t.Errorf("Unexpected embed request %+v", req)
	}
	if req.Date != "2017:07:14 02:40:00" {
		t.Errorf("Unexpected date %q", req.Date)
	}
	if req.PostURL != "https://www.instagram.com/p/CAR/" {
		t.Errorf("Expected the post URL in the embed request, got %q", req.PostURL)
	}
	if req.Path != f.storage.Path("natgeo - CAR (2).mp4") {
		t.Errorf("Unexpected path %q", req.Path)
	}
	if len(req.Tags) != 2 {
		t.Errorf("Expected tags to be passed through, got %v", req.Tags)
	}
}

func TestDownloadSinglePostFilename(t *testing.T) {
	f := newFixture(t)
	d := f.downloader(Options{})

	post := models.Post{Shortcode: "VID", Type: models.MediaTypeVideo, MediaURLs: []string{"https://cdn.example/v.mp4?x=1"}}
	if _, err := d.DownloadPost(context.Background(), post); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !f.storage.Exists("natgeo - VID.mp4") {
		t.Error("Expected natgeo - VID.mp4 to exist")
	}
}

func TestFilters(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		expected []string
	}{
		{"all", Options{}, []string{"natgeo - CAR (1).jpg", "natgeo - CAR (2).mp4", "natgeo - CAR (3).jpg"}},
		{"only photos", Options{OnlyPhotos: true}, []string{"natgeo - CAR (1).jpg", "natgeo - CAR (3).jpg"}},
		{"only videos", Options{OnlyVideos: true}, []string{"natgeo - CAR (2).mp4"}},
		{"likes below minimum", Options{MinLikes: 51}, nil},
		{"likes at minimum", Options{MinLikes: 50}, []string{"natgeo - CAR (1).jpg", "natgeo - CAR (2).mp4", "natgeo - CAR (3).jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			jobs := f.downloader(tt.opts).Jobs(carouselPost())

			if len(jobs) != len(tt.expected) {
				t.Fatalf("Expected %d jobs, got %d", len(tt.expected), len(jobs))
			}
			for i, job := range jobs {
				if job.Filename != tt.expected[i] {
					t.Errorf("Job %d: expected %q, got %q", i, tt.expected[i], job.Filename)
				}
			}
		})
	}
}

func TestSkipExistingUnlessRefresh(t *testing.T) {
	f := newFixture(t)
	post := models.Post{Shortcode: "ABC", Type: models.MediaTypePhoto, MediaURLs: []string{"https://cdn.example/a.jpg"}}

	if err := os.WriteFile(f.storage.Path("natgeo - ABC.jpg"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	summary, err := f.downloader(Options{}).DownloadPost(context.Background(), post)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.Skipped != 1 || summary.Existing != 1 || summary.Downloaded != 0 {
		t.Errorf("Expected the existing file to be skipped, got %+v", summary)
	}
	if f.client.TotalCalls() != 0 {
		t.Error("Existing files must not be fetched")
	}
	if f.pacer.Count() != 0 {
		t.Error("Skipped files must not be paced")
	}
	if len(f.embedder.requests) != 0 {
		t.Error("Skipped files must not be re-tagged")
	}

	summary, err = f.downloader(Options{Refresh: true}).DownloadPost(context.Background(), post)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.Downloaded != 1 {
		t.Errorf("Expected refresh to download again, got %+v", summary)
	}
	data, _ := os.ReadFile(f.storage.Path("natgeo - ABC.jpg"))
	if !bytes.Equal(data, jpegData) {
		t.Error("Expected refreshed content")
	}
}

func TestFailedFileIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.client.FailNext("https://cdn.example/c2.mp4", errors.New(errors.ErrorTypeNotFound, "gone"))

	summary, err := f.downloader(Options{RetryAttempts: 2}).DownloadPost(context.Background(), carouselPost())
	if err != nil {
		t.Fatalf("Per-file failures must not abort: %v", err)
	}
	if summary.Downloaded != 2 || summary.Failed != 1 {
		t.Errorf("Expected 2 downloaded and 1 failed, got %+v", summary)
	}
	if f.client.Calls("https://cdn.example/c2.mp4") != 1 {
		t.Error("not_found must not be retried")
	}
	if f.pacer.Count() != 2 {
		t.Errorf("Expected a file delay after each successful download only, got %d", f.pacer.Count())
	}
	if summary.Existing != 0 {
		t.Errorf("A failed file is not an existing one, got %+v", summary)
	}
	if !f.log.HasMessage("Download failed") {
		t.Error("Expected the failure to be logged")
	}
}

func TestTransientFailureIsRetried(t *testing.T) {
	f := newFixture(t)
	url := "https://cdn.example/a.jpg"
	f.client.FailNext(url, errors.New(errors.ErrorTypeServerError, "502"))

	post := models.Post{Shortcode: "ABC", Type: models.MediaTypePhoto, MediaURLs: []string{url}}
	summary, err := f.downloader(Options{RetryAttempts: 1}).DownloadPost(context.Background(), post)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.Downloaded != 1 {
		t.Errorf("Expected the retry to succeed, got %+v", summary)
	}
	if f.client.Calls(url) != 2 {
		t.Errorf("Expected 2 attempts, got %d", f.client.Calls(url))
	}
}

func TestEmbedderFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.embedder.err = fmt.Errorf("exiftool not found")

	summary, err := f.downloader(Options{}).DownloadPost(context.Background(), carouselPost())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.Downloaded != 3 {
		t.Errorf("Expected all files to be kept, got %+v", summary)
	}
	if len(f.log.GetMessagesByLevel("WARN")) != 3 {
		t.Errorf("Expected one warning per file, got %d", len(f.log.GetMessagesByLevel("WARN")))
	}
}

func TestCancelledDownload(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.downloader(Options{}).DownloadPost(ctx, carouselPost())
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if f.client.TotalCalls() != 0 {
		t.Error("Nothing should be fetched after cancellation")
	}
}

func TestSidecarCarriesPostURL(t *testing.T) {
	f := newFixture(t)
	post := models.Post{Shortcode: "ABC", Type: models.MediaTypePhoto, MediaURLs: []string{"https://cdn.example/a.jpg"}}

	d := New(f.client, f.storage, nil, metadata.NewSidecar(), Options{Account: "natgeo"}, f.log)
	if _, err := d.DownloadPost(context.Background(), post); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	meta, err := metadata.Load(f.storage.Path("natgeo - ABC.jpg"))
	if err != nil {
		t.Fatalf("Failed to load sidecar: %v", err)
	}
	if meta.URL != "https://www.instagram.com/p/ABC/" {
		t.Errorf("Expected the post URL in the sidecar, got %q", meta.URL)
	}
}
