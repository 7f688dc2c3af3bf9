package metadata

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"instadb/pkg/config"
	"instadb/pkg/logger"
)

// Request describes one downloaded media file and the tags to write into it
type Request struct {
	Account   string
	Path      string
	Date      string
	Shortcode string
	PostURL   string
	Caption   string
	Location  string
	Tags      []string
}

// Title is "<account> - <shortcode>", or the account alone
func (r Request) Title() string {
	if r.Shortcode == "" {
		return r.Account
	}
	return r.Account + " - " + r.Shortcode
}

// Embedder writes post metadata into (or next to) a media file
type Embedder interface {
	Embed(ctx context.Context, req Request) error
}

// Chain runs every embedder and joins their failures
type Chain []Embedder

func (c Chain) Embed(ctx context.Context, req Request) error {
	var errs []error
	for _, e := range c {
		if err := e.Embed(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every request
type Nop struct{}

func (Nop) Embed(context.Context, Request) error { return nil }

var datePattern = regexp.MustCompile(`^\d{4}:\d{2}:\d{2} \d{2}:\d{2}:\d{2}$`)

// ValidDate reports whether date is in the EXIF "YYYY:MM:DD HH:MM:SS" layout
func ValidDate(date string) bool {
	return datePattern.MatchString(date)
}

// Printable drops everything outside printable ASCII. EXIF UserComment
// readers show an empty field when the value carries emoji.
func Printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		return -1
	}, s)
}

// FromConfig assembles the embedders enabled in cfg
func FromConfig(cfg config.MetadataConfig, log logger.Logger) Embedder {
	var chain Chain
	if cfg.Enabled {
		chain = append(chain, NewExifTool(cfg.ExifTool, log))
	}
	if cfg.Sidecar {
		chain = append(chain, NewSidecar())
	}
	if len(chain) == 0 {
		return Nop{}
	}
	return chain
}
