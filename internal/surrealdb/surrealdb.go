package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/surrealdb/surrealdb.go"

	"github.com/kevinmichaelchen/repo-analyzer/internal/cache"
	"github.com/kevinmichaelchen/repo-analyzer/internal/config"
	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
)

// AnalysisCache persists project analyses so they survive restarts and
// can be shared between instances.
type AnalysisCache struct {
	db  *sdk.DB
	ttl time.Duration
}

func NewAnalysisCache(ctx context.Context, cfg *config.Config) (*AnalysisCache, error) {
	db, err := sdk.FromEndpointURLString(ctx, cfg.SurrealURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, sdk.Auth{
		Namespace: cfg.SurrealNS,
		Database:  cfg.SurrealDB,
		Username:  cfg.SurrealUser,
		Password:  cfg.SurrealPass,
	}); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("signing in: %w", err)
	}

	if err := db.Use(ctx, cfg.SurrealNS, cfg.SurrealDB); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("selecting ns/db: %w", err)
	}

	return &AnalysisCache{db: db, ttl: cfg.CacheTTL}, nil
}

func (c *AnalysisCache) Close(ctx context.Context) error {
	return c.db.Close(ctx)
}

const Schema = `
DEFINE TABLE IF NOT EXISTS analysis_cache SCHEMAFULL;

DEFINE FIELD IF NOT EXISTS owner       ON TABLE analysis_cache TYPE string;
DEFINE FIELD IF NOT EXISTS repo        ON TABLE analysis_cache TYPE string;
DEFINE FIELD IF NOT EXISTS fingerprint ON TABLE analysis_cache TYPE string;
DEFINE FIELD IF NOT EXISTS analysis    ON TABLE analysis_cache FLEXIBLE TYPE object;
DEFINE FIELD IF NOT EXISTS cached_at   ON TABLE analysis_cache TYPE datetime;
DEFINE FIELD IF NOT EXISTS expires_at  ON TABLE analysis_cache TYPE datetime;

DEFINE INDEX IF NOT EXISTS idx_repo ON TABLE analysis_cache FIELDS owner, repo;
DEFINE INDEX IF NOT EXISTS idx_expires_at ON TABLE analysis_cache FIELDS expires_at;
`

func (c *AnalysisCache) InitSchema(ctx context.Context) error {
	_, err := sdk.Query[any](ctx, c.db, Schema, nil)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

type cacheRow struct {
	Analysis models.ProjectAnalysis `json:"analysis"`
}

func (c *AnalysisCache) Get(ctx context.Context, key cache.Key) (*models.ProjectAnalysis, bool, error) {
	results, err := sdk.Query[[]cacheRow](ctx, c.db,
		`SELECT analysis FROM type::thing("analysis_cache", $id) WHERE expires_at > time::now()`,
		map[string]any{"id": recordID(key)})
	if err != nil {
		return nil, false, fmt.Errorf("reading cached analysis for %s: %w", key, err)
	}
	if len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, false, nil
	}
	a := (*results)[0].Result[0].Analysis
	if a.Technologies == nil {
		a.Technologies = []models.Technology{}
	}
	if a.KeyFeatures == nil {
		a.KeyFeatures = []string{}
	}
	return &a, true, nil
}

func (c *AnalysisCache) Set(ctx context.Context, key cache.Key, a *models.ProjectAnalysis) error {
	now := time.Now().UTC()
	_, err := sdk.Query[any](ctx, c.db,
		`UPSERT type::thing("analysis_cache", $id) CONTENT $data`,
		map[string]any{
			"id": recordID(key),
			"data": map[string]any{
				"owner":       key.Owner,
				"repo":        key.Repo,
				"fingerprint": key.Fingerprint,
				"analysis":    analysisDoc(a),
				"cached_at":   now,
				"expires_at":  now.Add(c.ttl),
			},
		})
	if err != nil {
		return fmt.Errorf("caching analysis for %s: %w", key, err)
	}
	return nil
}

// Purge deletes expired entries.
func (c *AnalysisCache) Purge(ctx context.Context) error {
	_, err := sdk.Query[any](ctx, c.db,
		`DELETE analysis_cache WHERE expires_at <= time::now()`, nil)
	if err != nil {
		return fmt.Errorf("purging expired analyses: %w", err)
	}
	return nil
}

type Stats struct {
	Total   int
	Live    int
	Expired int
}

func (c *AnalysisCache) GetStats(ctx context.Context) (*Stats, error) {
	results, err := sdk.Query[[]map[string]any](ctx, c.db,
		`SELECT
			count() AS total,
			math::sum(IF expires_at > time::now() THEN 1 ELSE 0 END) AS live
		FROM analysis_cache GROUP ALL`,
		nil)
	if err != nil {
		return nil, fmt.Errorf("getting cache stats: %w", err)
	}
	if len(*results) == 0 || len((*results)[0].Result) == 0 {
		return &Stats{}, nil
	}
	row := (*results)[0].Result[0]
	s := &Stats{Total: toInt(row["total"]), Live: toInt(row["live"])}
	s.Expired = s.Total - s.Live
	return s, nil
}

// recordID builds a record key SurrealDB accepts without escaping.
func recordID(k cache.Key) string {
	r := strings.NewReplacer("/", "_", ".", "_", "-", "_", "@", "_")
	return r.Replace(k.Owner) + "__" + r.Replace(k.Repo) + "__" + k.Fingerprint
}

// analysisDoc omits the description when absent to avoid the CBOR NULL vs
// SurrealDB NONE mismatch.
func analysisDoc(a *models.ProjectAnalysis) map[string]any {
	techs := make([]map[string]any, 0, len(a.Technologies))
	for _, t := range a.Technologies {
		techs = append(techs, map[string]any{"name": t.Name, "confidence": t.Confidence})
	}
	features := a.KeyFeatures
	if features == nil {
		features = []string{}
	}
	doc := map[string]any{
		"project_type":     string(a.ProjectType),
		"technologies":     techs,
		"key_features":     features,
		"complexity_score": a.ComplexityScore,
	}
	if a.GeneratedDescription != nil {
		doc["generated_description"] = *a.GeneratedDescription
	}
	return doc
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	default:
		return 0
	}
}
