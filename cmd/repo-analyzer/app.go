package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/kevinmichaelchen/repo-analyzer/internal/cache"
	"github.com/kevinmichaelchen/repo-analyzer/internal/config"
	"github.com/kevinmichaelchen/repo-analyzer/internal/github"
	"github.com/kevinmichaelchen/repo-analyzer/internal/llm"
	"github.com/kevinmichaelchen/repo-analyzer/internal/pipeline"
	"github.com/kevinmichaelchen/repo-analyzer/internal/repocontext"
	"github.com/kevinmichaelchen/repo-analyzer/internal/retry"
	"github.com/kevinmichaelchen/repo-analyzer/internal/surrealdb"
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	gh     *github.Client
	svc    *pipeline.Service
	close  func()
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
}

func newGitHub(cfg *config.Config) *github.Client {
	return github.NewClient(cfg.GitHubToken,
		github.WithEndpoint(cfg.GitHubGraphQLURL),
		github.WithTimeout(cfg.GitHubTimeout),
		github.WithRetryPolicy(retry.Policy{
			MaxAttempts: cfg.RetryAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		}),
	)
}

// newApp wires the pipeline. The SurrealDB tier is optional: when it is
// not configured or unreachable the in-memory cache is used alone.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := newLogger(cfg)
	gh := newGitHub(cfg)

	gen, err := llm.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, gh: gh, close: func() {}}

	var store cache.Store = cache.NewMemory(cfg.CacheSize, cfg.CacheTTL)
	if cfg.CacheEnabled() {
		db, err := surrealdb.NewAnalysisCache(ctx, cfg)
		if err != nil {
			logger.Warn("SurrealDB cache unavailable, using memory only", "err", err)
		} else {
			store = cache.NewTiered(store, db, logger)
			a.close = func() { _ = db.Close(context.Background()) }
		}
	}

	a.svc = pipeline.NewService(gh, gen,
		pipeline.WithLogger(logger),
		pipeline.WithCache(store),
		pipeline.WithBudget(repocontext.Budget{MaxContextChars: cfg.MaxContextChars}),
	)
	return a, nil
}
