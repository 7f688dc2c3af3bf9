package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"instadb/internal/app"
	"instadb/pkg/config"
	"instadb/pkg/logger"
	"instadb/pkg/scraper"
	"instadb/pkg/store"
)

const testAccount = "natgeo"

// TestHelper provides common test utilities
type TestHelper struct {
	t          *testing.T
	mockServer *MockInstagramServer
	tempDir    string
	log        *logger.TestLogger
}

// NewTestHelper creates a helper with its own temp dir and mock server
func NewTestHelper(t *testing.T) *TestHelper {
	h := &TestHelper{
		t:       t,
		tempDir: t.TempDir(),
		log:     logger.NewTestLogger(),
	}
	h.mockServer = NewMockInstagramServer(testAccount)
	t.Cleanup(h.mockServer.Close)
	return h
}

// Server returns the mock feed server
func (h *TestHelper) Server() *MockInstagramServer {
	return h.mockServer
}

// Logger returns the capturing logger passed to every run
func (h *TestHelper) Logger() *logger.TestLogger {
	return h.log
}

// CreateTestConfig points a default configuration at the mock server and the temp dir
func (h *TestHelper) CreateTestConfig() *config.Config {
	cfg := config.DefaultConfig()

	cfg.Instagram.BaseURL = h.mockServer.GetURL()
	cfg.Instagram.UserAgent = "TestBot/1.0"
	cfg.Network.Timeout = config.MinTimeout
	cfg.Network.RetryDelay = 0

	cfg.RateLimit.RequestDelay = 0
	cfg.RateLimit.FileDelay = 0
	cfg.RateLimit.Jitter = 0

	cfg.Output.BaseDirectory = filepath.Join(h.tempDir, "downloads")
	cfg.Output.CreateUserFolders = true
	cfg.Output.CheckpointDir = filepath.Join(h.tempDir, "checkpoints")

	cfg.Store.Directory = filepath.Join(h.tempDir, "db")
	cfg.Store.Driver = "sqlite"
	cfg.Store.Backup = false

	cfg.Metadata.Enabled = false
	cfg.Metadata.Sidecar = true

	cfg.Download.RetryAttempts = 0
	cfg.Logging.Level = "error"

	if err := cfg.Validate(); err != nil {
		h.t.Fatalf("Invalid test config: %v", err)
	}
	return cfg
}

// Run scrapes the test account with cfg
func (h *TestHelper) Run(cfg *config.Config, resume bool) (scraper.Result, error) {
	return app.Run(context.Background(), cfg, testAccount, app.RunOptions{
		Resume: resume,
		Logger: h.log,
	})
}

// OpenStore opens the account's SQLite store for inspection
func (h *TestHelper) OpenStore(cfg *config.Config) store.Store {
	h.t.Helper()
	st, err := store.OpenSQLite(context.Background(), store.Path(cfg, testAccount), store.Options{})
	if err != nil {
		h.t.Fatalf("Failed to open store: %v", err)
	}
	h.t.Cleanup(func() { st.Close() })
	return st
}

// MediaPath returns where a downloaded file for shortcode is expected
func (h *TestHelper) MediaPath(cfg *config.Config, shortcode string) string {
	return filepath.Join(cfg.OutputDir(testAccount), testAccount+" - "+shortcode+".jpg")
}

// AssertFileExists checks if a file exists
func (h *TestHelper) AssertFileExists(path string) {
	h.t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		h.t.Errorf("Expected file to exist: %s", path)
	}
}

// AssertFileNotExists checks if a file does not exist
func (h *TestHelper) AssertFileNotExists(path string) {
	h.t.Helper()
	if _, err := os.Stat(path); err == nil {
		h.t.Errorf("Expected file to not exist: %s", path)
	}
}
