package storage

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	errs "instadb/pkg/errors"
)

// sniffLen is the header size filetype needs to recognise a format
const sniffLen = 262

// Manager owns the media directory of one account
type Manager struct {
	outputDir string
	account   string
	saved     int
	mu        sync.RWMutex
}

// NewManager creates the output directory and returns a manager for account
func NewManager(outputDir, account string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, errs.Filesystem("failed to create output directory", outputDir, err)
	}

	return &Manager{
		outputDir: outputDir,
		account:   account,
	}, nil
}

// Extension returns "mp4" for video URLs and "jpg" for everything else
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if strings.EqualFold(path.Ext(p), ".mp4") {
		return "mp4"
	}
	return "jpg"
}

// Filename derives the media filename of a post. slide is the 1-based
// position inside a carousel, or 0 for single-media posts.
func (m *Manager) Filename(shortcode string, slide int, ext string) string {
	if slide > 0 {
		return fmt.Sprintf("%s - %s (%d).%s", m.account, shortcode, slide, ext)
	}
	return fmt.Sprintf("%s - %s.%s", m.account, shortcode, ext)
}

// Path joins name onto the output directory
func (m *Manager) Path(name string) string {
	return filepath.Join(m.outputDir, name)
}

// Exists reports whether name is already present in the output directory
func (m *Manager) Exists(name string) bool {
	info, err := os.Stat(m.Path(name))
	return err == nil && !info.IsDir()
}

// Save streams r into name through a temporary file and renames it into place.
// Content that is neither an image nor a video is rejected, which catches
// HTML error pages served with a 200.
func (m *Manager) Save(r io.Reader, name string) (types.Type, error) {
	filename := m.Path(name)
	tempFile := filename + ".tmp"

	out, err := os.Create(tempFile)
	if err != nil {
		return types.Unknown, errs.Filesystem("failed to create temporary file", tempFile, err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return types.Unknown, fmt.Errorf("failed to save media data: %w", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return types.Unknown, errs.Filesystem("failed to close file", tempFile, closeErr)
	}

	kind, err := sniff(tempFile)
	if err != nil {
		os.Remove(tempFile)
		return types.Unknown, err
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return types.Unknown, errs.Filesystem("failed to rename temporary file", filename, err)
	}

	m.mu.Lock()
	m.saved++
	m.mu.Unlock()

	return kind, nil
}

func sniff(file string) (types.Type, error) {
	f, err := os.Open(file)
	if err != nil {
		return types.Unknown, errs.Filesystem("failed to open media for sniffing", file, err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return types.Unknown, errs.Filesystem("failed to read media header", file, err)
	}

	kind, _ := filetype.Match(head[:n])
	if !filetype.IsImage(head[:n]) && !filetype.IsVideo(head[:n]) {
		return kind, errs.New(errs.ErrorTypeMalformed, fmt.Sprintf("downloaded content is not media (%s)", describe(kind)))
	}
	return kind, nil
}

func describe(kind types.Type) string {
	if kind == types.Unknown || kind.MIME.Value == "" {
		return "unknown type"
	}
	return kind.MIME.Value
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// SavedCount returns the number of files written by this manager
func (m *Manager) SavedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saved
}
