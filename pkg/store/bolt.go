package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"instadb/pkg/logger"
	"instadb/pkg/models"
)

var postsBucket = []byte("posts")

// Bolt keeps posts as JSON records in a single bbolt bucket
type Bolt struct {
	db     *bolt.DB
	opts   Options
	logger logger.Logger
}

var _ Store = (*Bolt)(nil)

// OpenBolt opens or creates the bbolt file at path
func OpenBolt(path string, opts Options) (*Bolt, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(postsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	opts.Logger.DebugWithFields("store opened", map[string]interface{}{
		"driver": "bolt",
		"path":   path,
	})

	return &Bolt{db: db, opts: opts, logger: opts.Logger}, nil
}

func (b *Bolt) Exists(ctx context.Context, shortcode string) (bool, error) {
	rec, err := b.Get(ctx, shortcode)
	return rec != nil, err
}

func (b *Bolt) Likes(ctx context.Context, shortcode string) (int, error) {
	rec, err := b.Get(ctx, shortcode)
	if err != nil || rec == nil || rec.Likes == nil {
		return 0, err
	}
	return *rec.Likes, nil
}

func (b *Bolt) Insert(ctx context.Context, post models.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := b.opts.record(post)
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(postsBucket)
		if bucket.Get([]byte(rec.Code)) != nil {
			return duplicate(rec.Code)
		}
		return bucket.Put([]byte(rec.Code), data)
	})
}

func (b *Bolt) UpdateLikes(ctx context.Context, shortcode string, likes int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(postsBucket)
		data := bucket.Get([]byte(shortcode))
		if data == nil {
			return nil
		}

		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decoding %s: %w", shortcode, err)
		}
		rec.Likes = &likes

		updated, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(shortcode), updated)
	})
}

func (b *Bolt) Get(ctx context.Context, shortcode string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *Record
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(postsBucket).Get([]byte(shortcode))
		if data == nil {
			return nil
		}
		rec = &Record{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", shortcode, err)
	}
	return rec, nil
}

func (b *Bolt) Count(ctx context.Context) (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(postsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
