// Package cache stores project analyses keyed by repository and the
// fingerprint of the context they were generated from.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
)

type Key struct {
	Owner       string
	Repo        string
	Fingerprint string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%s", k.Owner, k.Repo, k.Fingerprint)
}

// Store is a best-effort analysis cache. A miss is (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key Key) (*models.ProjectAnalysis, bool, error)
	Set(ctx context.Context, key Key, a *models.ProjectAnalysis) error
}

// Memory is a size-bounded in-process cache whose entries expire after ttl.
type Memory struct {
	lru *expirable.LRU[string, models.ProjectAnalysis]
}

func NewMemory(size int, ttl time.Duration) *Memory {
	return &Memory{lru: expirable.NewLRU[string, models.ProjectAnalysis](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key Key) (*models.ProjectAnalysis, bool, error) {
	a, ok := m.lru.Get(key.String())
	if !ok {
		return nil, false, nil
	}
	return &a, true, nil
}

func (m *Memory) Set(_ context.Context, key Key, a *models.ProjectAnalysis) error {
	if a == nil {
		return nil
	}
	m.lru.Add(key.String(), *a)
	return nil
}

func (m *Memory) Len() int { return m.lru.Len() }

// Tiered reads the fast store first, falls back to the slow one and
// back-fills the fast store on a slow hit. Slow store failures are logged
// and treated as misses.
type Tiered struct {
	fast   Store
	slow   Store
	logger *slog.Logger
}

func NewTiered(fast, slow Store, logger *slog.Logger) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered{fast: fast, slow: slow, logger: logger}
}

func (t *Tiered) Get(ctx context.Context, key Key) (*models.ProjectAnalysis, bool, error) {
	if a, ok, err := t.fast.Get(ctx, key); err == nil && ok {
		return a, true, nil
	}
	a, ok, err := t.slow.Get(ctx, key)
	if err != nil {
		t.logger.WarnContext(ctx, "persistent cache read failed", "key", key.String(), "err", err)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	_ = t.fast.Set(ctx, key, a)
	return a, true, nil
}

func (t *Tiered) Set(ctx context.Context, key Key, a *models.ProjectAnalysis) error {
	_ = t.fast.Set(ctx, key, a)
	if err := t.slow.Set(ctx, key, a); err != nil {
		t.logger.WarnContext(ctx, "persistent cache write failed", "key", key.String(), "err", err)
	}
	return nil
}
