package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	errs "instadb/pkg/errors"
	"instadb/pkg/logger"
)

const currentVersion = 1

// Checkpoint is the pagination position of one account's scrape
type Checkpoint struct {
	Account   string    `json:"account"`
	Cursor    string    `json:"cursor"`
	Page      int       `json:"page"`
	Processed int       `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// Manager owns the checkpoint file of a single account
type Manager struct {
	mu      sync.Mutex
	account string
	path    string
	logger  logger.Logger
	now     func() time.Time
}

// NewManager creates a checkpoint manager for account. An empty dir selects
// the platform data directory.
func NewManager(dir, account string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if dir == "" {
		base, err := dataDir()
		if err != nil {
			return nil, fmt.Errorf("no checkpoint directory: %w", err)
		}
		dir = filepath.Join(base, "checkpoints")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.Filesystem("failed to create checkpoints directory", dir, err)
	}

	return &Manager{
		account: account,
		path:    filepath.Join(dir, account+".checkpoint.json"),
		logger:  log.WithField("account", account),
		now:     time.Now,
	}, nil
}

// Path returns the checkpoint file
func (m *Manager) Path() string {
	return m.path
}

// Exists reports whether a checkpoint file is present
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Create writes a fresh checkpoint positioned at the head of the feed
func (m *Manager) Create() (*Checkpoint, error) {
	now := m.now()
	cp := &Checkpoint{
		Account:   m.account,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   currentVersion,
	}
	if err := m.Save(cp); err != nil {
		return nil, err
	}

	m.logger.WithField("path", m.path).Debug("Checkpoint created")
	return cp, nil
}

// Load returns the saved checkpoint. A missing file, or one written for
// another account or format version, yields nil.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Filesystem("failed to read checkpoint", m.path, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, "corrupt checkpoint "+m.path, err)
	}

	if cp.Account != m.account || cp.Version != currentVersion {
		m.logger.WarnWithFields("Ignoring foreign checkpoint", map[string]interface{}{
			"checkpoint_account": cp.Account,
			"version":            cp.Version,
		})
		return nil, nil
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"cursor":     cp.Cursor,
		"page":       cp.Page,
		"processed":  cp.Processed,
		"updated_at": cp.UpdatedAt,
	})
	return &cp, nil
}

// UpdateProgress records the cursor reached after a fully processed page
func (m *Manager) UpdateProgress(cp *Checkpoint, cursor string, page, processed int) error {
	cp.Cursor = cursor
	cp.Page = page
	cp.Processed = processed
	return m.Save(cp)
}

// Save replaces the checkpoint file through a synced temporary file
func (m *Manager) Save(cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp.UpdatedAt = m.now()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := writeSynced(tmp, data); err != nil {
		os.Remove(tmp)
		return errs.Filesystem("failed to write checkpoint", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return errs.Filesystem("failed to replace checkpoint", m.path, err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"cursor": cp.Cursor,
		"page":   cp.Page,
	})
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Delete removes the checkpoint file; a missing file is not an error
func (m *Manager) Delete() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return errs.Filesystem("failed to delete checkpoint", m.path, err)
	}
	m.logger.Debug("Checkpoint deleted")
	return nil
}

// dataDir is the per-user application data directory
func dataDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "instadb"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "instadb"), nil
	}

	// Application Support on macOS, %AppData% on Windows
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "instadb"), nil
}
