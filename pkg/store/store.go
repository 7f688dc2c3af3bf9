package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"instadb/pkg/config"
	errs "instadb/pkg/errors"
	"instadb/pkg/logger"
	"instadb/pkg/models"
)

// ErrDuplicate is returned by Insert for a shortcode that is already stored.
// Callers check Exists first; hitting it is a defect in the caller.
var ErrDuplicate = errs.New(errs.ErrorTypeDuplicate, "shortcode already stored")

// Store is the persistent per-account mapping keyed by shortcode.
// Every write is durable when the call returns.
type Store interface {
	Exists(ctx context.Context, shortcode string) (bool, error)
	// Likes returns the stored count, 0 when the post is absent or its count is NULL
	Likes(ctx context.Context, shortcode string) (int, error)
	Insert(ctx context.Context, post models.Post) error
	UpdateLikes(ctx context.Context, shortcode string, likes int) error
	// Get returns the stored record, or nil when absent
	Get(ctx context.Context, shortcode string) (*Record, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Record is a persisted post
type Record struct {
	Code     string  `json:"code"`
	Date     string  `json:"date"`
	Type     string  `json:"type"`
	Likes    *int    `json:"likes"`
	Location *string `json:"location"`
	Caption  *string `json:"caption"`
	Media    string  `json:"media"`
}

// Options controls how posts are persisted
type Options struct {
	// HiddenLikesNull stores NULL instead of 0 for posts whose likes were hidden
	HiddenLikesNull bool
	Logger          logger.Logger
}

func (o Options) likesValue(post models.Post) *int {
	if post.LikesHidden && o.HiddenLikesNull {
		return nil
	}
	likes := post.Likes
	return &likes
}

func (o Options) record(post models.Post) Record {
	return Record{
		Code:     post.Shortcode,
		Date:     post.Date,
		Type:     string(post.Type),
		Likes:    o.likesValue(post),
		Location: post.Location,
		Caption:  post.Caption,
		Media:    post.JoinedMedia(),
	}
}

// MediaURLs splits the persisted media column
func (r Record) MediaURLs() []string {
	return models.SplitMedia(r.Media)
}

// Path returns the store file for account, or "" for the memory driver
func Path(cfg *config.Config, account string) string {
	switch strings.ToLower(cfg.Store.Driver) {
	case "sqlite":
		return filepath.Join(cfg.Store.Directory, account+".db")
	case "bolt":
		return filepath.Join(cfg.Store.Directory, account+".bolt")
	default:
		return ""
	}
}

// Open opens the account's store. With the store disabled every post is
// new for the length of the run, so an in-memory store stands in.
func Open(cfg *config.Config, account string, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	opts := Options{
		HiddenLikesNull: cfg.Parse.HiddenLikes == "null",
		Logger:          log.WithField("account", account),
	}

	if !cfg.Store.Enabled {
		return NewMemory(opts), nil
	}

	path := Path(cfg, account)
	if path == "" {
		return NewMemory(opts), nil
	}

	if err := os.MkdirAll(cfg.Store.Directory, 0755); err != nil {
		return nil, errs.Filesystem("failed to create store directory", cfg.Store.Directory, err)
	}

	if cfg.Store.Backup {
		if err := Backup(path); err != nil {
			return nil, err
		}
	}

	switch strings.ToLower(cfg.Store.Driver) {
	case "bolt":
		return OpenBolt(path, opts)
	default:
		return OpenSQLite(context.Background(), path, opts)
	}
}

// Backup copies an existing store file to "<path>.bak", replacing an older backup.
// The original stays in place so reconciliation can use it.
func Backup(path string) error {
	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Filesystem("failed to open store for backup", path, err)
	}
	defer src.Close()

	backupPath := path + ".bak"
	dst, err := os.Create(backupPath)
	if err != nil {
		return errs.Filesystem("failed to create backup file", backupPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errs.Filesystem("failed to copy store to backup", backupPath, err)
	}
	if err := dst.Close(); err != nil {
		return errs.Filesystem("failed to close backup file", backupPath, err)
	}
	return nil
}

func duplicate(shortcode string) error {
	return fmt.Errorf("insert %s: %w", shortcode, ErrDuplicate)
}
