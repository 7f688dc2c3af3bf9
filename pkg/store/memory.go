package store

import (
	"context"
	"sync"

	"instadb/pkg/logger"
	"instadb/pkg/models"
)

// Memory is a non-persistent store used when persistence is disabled and in tests
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	opts    Options
}

var _ Store = (*Memory)(nil)

func NewMemory(opts Options) *Memory {
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	return &Memory{records: make(map[string]Record), opts: opts}
}

func (m *Memory) Exists(ctx context.Context, shortcode string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[shortcode]
	return ok, nil
}

func (m *Memory) Likes(ctx context.Context, shortcode string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[shortcode]
	if !ok || rec.Likes == nil {
		return 0, nil
	}
	return *rec.Likes, nil
}

func (m *Memory) Insert(ctx context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[post.Shortcode]; ok {
		return duplicate(post.Shortcode)
	}
	m.records[post.Shortcode] = m.opts.record(post)
	return nil
}

func (m *Memory) UpdateLikes(ctx context.Context, shortcode string, likes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[shortcode]
	if !ok {
		return nil
	}
	rec.Likes = &likes
	m.records[shortcode] = rec
	return nil
}

func (m *Memory) Get(ctx context.Context, shortcode string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[shortcode]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *Memory) Close() error { return nil }
