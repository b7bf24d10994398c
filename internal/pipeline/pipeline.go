// Package pipeline orchestrates a repository analysis: the mandatory
// details fetch, then project analysis and contribution summary in
// parallel, merged into one result.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kevinmichaelchen/repo-analyzer/internal/analysis"
	"github.com/kevinmichaelchen/repo-analyzer/internal/apperr"
	"github.com/kevinmichaelchen/repo-analyzer/internal/cache"
	"github.com/kevinmichaelchen/repo-analyzer/internal/contrib"
	"github.com/kevinmichaelchen/repo-analyzer/internal/llm"
	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
	"github.com/kevinmichaelchen/repo-analyzer/internal/repocontext"
)

// Source is everything the pipeline reads from GitHub.
type Source interface {
	contrib.Source
	FetchRepositoryDetails(ctx context.Context, owner, name string) (*models.RepositoryDetails, error)
}

type Service struct {
	src        Source
	builder    *repocontext.Builder
	analyzer   *analysis.ProjectAnalyzer
	summarizer *analysis.ContributionSummarizer
	aggregator *contrib.Aggregator
	cache      cache.Store
	inflight   singleflight.Group
	logger     *slog.Logger

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context shared by every caller waiting on one in-flight
// generation. It is cancelled once the last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

type Option func(*Service)

// WithCache enables analysis caching keyed by the context fingerprint.
func WithCache(c cache.Store) Option {
	return func(s *Service) { s.cache = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithBudget(b repocontext.Budget) Option {
	return func(s *Service) { s.builder = repocontext.NewBuilder(b) }
}

func NewService(src Source, gen llm.Completer, opts ...Option) *Service {
	s := &Service{
		src:     src,
		builder: repocontext.NewBuilder(repocontext.DefaultBudget()),
		logger:  slog.Default(),
		flights: map[string]*flight{},
	}
	for _, o := range opts {
		o(s)
	}
	s.analyzer = analysis.NewProjectAnalyzer(gen, s.logger)
	s.summarizer = analysis.NewContributionSummarizer(gen, s.logger)
	s.aggregator = contrib.NewAggregator(src, s.logger)
	return s
}

// Analyze runs the full pipeline. Only a failed details fetch or a
// cancelled ctx fails the call; a failing branch is reported on the result
// while the other branch completes.
func (s *Service) Analyze(ctx context.Context, owner, repo, username string) (*models.AnalysisResult, error) {
	details, err := s.fetchDetails(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	res := &models.AnalysisResult{Repository: details}
	if details.IsEmpty() {
		res.IsEmpty = true
		return res, nil
	}

	var (
		project    *models.ProjectAnalysis
		cached     bool
		projectErr error
		contribRes contributionOutcome
	)
	var g errgroup.Group
	g.Go(func() error {
		project, cached, projectErr = s.analyzeProject(ctx, details)
		return nil
	})
	if strings.TrimSpace(username) != "" {
		g.Go(func() error {
			contribRes = s.analyzeContributions(ctx, details, username)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if projectErr != nil {
		s.logger.WarnContext(ctx, "project analysis unavailable",
			"owner", owner, "repo", repo, "branch", "project_analysis", "err", projectErr)
		res.ProjectAnalysisError = branchError(projectErr)
	} else {
		res.ProjectAnalysis = project
		res.Cached = cached
	}
	contribRes.apply(ctx, s.logger, res)
	mergeDescription(res)
	return res, nil
}

// AnalyzeContributions runs only the contribution branch. Unlike Analyze, a
// failure to gather contributions fails the call; a failed summary is
// reported on the result.
func (s *Service) AnalyzeContributions(ctx context.Context, owner, repo, username string) (*models.AnalysisResult, error) {
	details, err := s.fetchDetails(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	res := &models.AnalysisResult{Repository: details}
	if details.IsEmpty() {
		res.IsEmpty = true
		return res, nil
	}
	if strings.TrimSpace(username) == "" {
		return res, nil
	}

	out := s.analyzeContributions(ctx, details, username)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if out.aggregateErr != nil {
		return nil, upstream("aggregate contributions", out.aggregateErr)
	}
	out.apply(ctx, s.logger, res)
	mergeDescription(res)
	return res, nil
}

// Contributions returns username's raw activity on the repository and its
// share of repository activity, without generating a summary.
func (s *Service) Contributions(ctx context.Context, owner, repo, username string) (*models.UserContributionRaw, error) {
	raw, err := s.aggregator.Aggregate(ctx, owner, repo, username)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, upstream("aggregate contributions", err)
	}
	return raw, nil
}

func (s *Service) fetchDetails(ctx context.Context, owner, repo string) (*models.RepositoryDetails, error) {
	details, err := s.src.FetchRepositoryDetails(ctx, owner, repo)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, upstream("fetch repository details", err)
	}
	return details, nil
}

// upstream passes NotFound, AccessDenied and cancellation through and
// reports every other exhausted failure as UpstreamUnavailable.
func upstream(op string, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound, apperr.KindAccessDenied:
		return err
	case apperr.KindUnknown:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return apperr.New(apperr.KindUpstreamUnavailable, op, err)
	default:
		return apperr.New(apperr.KindUpstreamUnavailable, op, err)
	}
}

// analyzeProject consults the cache, then collapses concurrent requests for
// the same context into one generation call. The call is abandoned when
// every caller waiting on it has gone.
func (s *Service) analyzeProject(ctx context.Context, details *models.RepositoryDetails) (*models.ProjectAnalysis, bool, error) {
	text := s.builder.Build(details)
	key := cache.Key{Owner: details.Owner, Repo: details.Name, Fingerprint: repocontext.Fingerprint(text)}

	if s.cache != nil {
		if a, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return a, true, nil
		}
	}

	k := key.String()
	f := s.join(ctx, k)
	ch := s.inflight.DoChan(k, func() (any, error) {
		a, err := s.analyzer.Analyze(f.ctx, text)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(f.ctx, key, a); err != nil {
				s.logger.WarnContext(f.ctx, "caching project analysis failed", "key", k, "err", err)
			}
		}
		return a, nil
	})

	select {
	case <-ctx.Done():
		s.leave(k, f)
		return nil, false, ctx.Err()
	case r := <-ch:
		s.leave(k, f)
		if r.Err != nil {
			return nil, false, r.Err
		}
		return r.Val.(*models.ProjectAnalysis), false, nil
	}
}

// join registers a waiter on key. The first waiter creates the shared
// context, detached from its own cancellation.
func (s *Service) join(ctx context.Context, key string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	return f
}

// leave drops a waiter. The last one out cancels the shared context and
// forgets the key so a later request starts a fresh call.
func (s *Service) leave(key string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	if s.flights[key] == f {
		delete(s.flights, key)
	}
	f.cancel()
	s.inflight.Forget(key)
}

type contributionOutcome struct {
	ran          bool
	raw          *models.UserContributionRaw
	summary      *models.ContributionSummary
	aggregateErr error
	summaryErr   error
}

func (s *Service) analyzeContributions(ctx context.Context, details *models.RepositoryDetails, username string) contributionOutcome {
	out := contributionOutcome{ran: true}
	out.raw, out.aggregateErr = s.aggregator.Aggregate(ctx, details.Owner, details.Name, username)
	if out.aggregateErr != nil || out.raw.Totals.Activity() == 0 {
		return out
	}
	out.summary, out.summaryErr = s.summarizer.Summarize(ctx, details, out.raw)
	return out
}

func (o contributionOutcome) apply(ctx context.Context, logger *slog.Logger, res *models.AnalysisResult) {
	if !o.ran {
		return
	}
	attrs := []any{"owner", res.Repository.Owner, "repo", res.Repository.Name, "branch", "contributions"}
	if o.aggregateErr != nil {
		logger.WarnContext(ctx, "contributions unavailable", append(attrs, "err", o.aggregateErr)...)
		res.ContributionError = branchError(o.aggregateErr)
		return
	}
	res.Contributions = o.raw
	res.HasContributions = o.raw.Totals.Activity() > 0
	if o.summaryErr != nil {
		logger.WarnContext(ctx, "contribution summary unavailable", append(attrs, "err", o.summaryErr)...)
		res.ContributionError = branchError(o.summaryErr)
		return
	}
	res.ContributionSummary = o.summary
}

func branchError(err error) *models.BranchError {
	kind := string(apperr.KindOf(err))
	if kind == "" {
		kind = "unknown"
	}
	return &models.BranchError{Kind: kind, Message: err.Error()}
}

// mergeDescription prefers the repository's own description over the
// generated one.
func mergeDescription(res *models.AnalysisResult) {
	if d := res.Repository.Description; d != nil && strings.TrimSpace(*d) != "" {
		res.Description = d
		res.DescriptionSource = models.DescriptionFromRepository
		return
	}
	if pa := res.ProjectAnalysis; pa != nil && pa.GeneratedDescription != nil && strings.TrimSpace(*pa.GeneratedDescription) != "" {
		res.Description = res.ProjectAnalysis.GeneratedDescription
		res.DescriptionSource = models.DescriptionGenerated
	}
}
