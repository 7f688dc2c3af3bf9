package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// PostMetadata is the JSON sidecar written next to a media file
type PostMetadata struct {
	Account      string    `json:"account"`
	Shortcode    string    `json:"shortcode"`
	URL          string    `json:"url,omitempty"`
	Title        string    `json:"title"`
	Date         string    `json:"date,omitempty"`
	Caption      string    `json:"caption,omitempty"`
	Location     string    `json:"location,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// Sidecar writes "<file>.json" next to each media file
type Sidecar struct {
	now func() time.Time
}

func NewSidecar() *Sidecar {
	return &Sidecar{now: time.Now}
}

func (s *Sidecar) Embed(ctx context.Context, req Request) error {
	meta := &PostMetadata{
		Account:      req.Account,
		Shortcode:    req.Shortcode,
		URL:          req.PostURL,
		Title:        req.Title(),
		Date:         req.Date,
		Caption:      req.Caption,
		Location:     req.Location,
		Tags:         req.Tags,
		DownloadedAt: s.now(),
	}
	return meta.Save(req.Path)
}

// Save writes the metadata to a JSON file
func (m *PostMetadata) Save(mediaPath string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(mediaPath+".json", data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// Load reads the sidecar of a media file
func Load(mediaPath string) (*PostMetadata, error) {
	data, err := os.ReadFile(mediaPath + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta PostMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &meta, nil
}

// Exists checks if a sidecar exists for a media file
func Exists(mediaPath string) bool {
	_, err := os.Stat(mediaPath + ".json")
	return err == nil
}
