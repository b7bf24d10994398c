// Package contrib gathers one user's activity on a repository and derives
// totals and their share of repository-wide activity.
package contrib

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kevinmichaelchen/repo-analyzer/internal/github"
	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
)

// Source is the slice of the GitHub client the aggregator needs.
type Source interface {
	ResolveContributor(ctx context.Context, login string) (models.Contributor, error)
	FetchUserContributions(ctx context.Context, owner, name string, who models.Contributor) (*github.Contributions, error)
	FetchContributionStats(ctx context.Context, owner, name string) (*models.ContributionStats, error)
}

type Aggregator struct {
	src    Source
	logger *slog.Logger
}

func NewAggregator(src Source, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{src: src, logger: logger}
}

// Aggregate resolves username, then fetches their activity and the
// repository-wide stats concurrently. A stats failure only drops the share.
func (a *Aggregator) Aggregate(ctx context.Context, owner, repo, username string) (*models.UserContributionRaw, error) {
	who, err := a.src.ResolveContributor(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("resolving contributor %s: %w", username, err)
	}

	var (
		activity *github.Contributions
		stats    *models.ContributionStats
		statsErr error
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		activity, err = a.src.FetchUserContributions(gCtx, owner, repo, who)
		if err != nil {
			return fmt.Errorf("fetching contributions of %s: %w", who.Login, err)
		}
		return nil
	})
	g.Go(func() error {
		stats, statsErr = a.src.FetchContributionStats(gCtx, owner, repo)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &models.UserContributionRaw{
		Contributor:  who,
		Commits:      activity.Commits,
		PullRequests: activity.PullRequests,
		Issues:       activity.Issues,
		Totals:       ComputeTotals(activity),
	}
	if statsErr != nil {
		a.logger.WarnContext(ctx, "contribution stats unavailable, omitting share",
			"owner", owner, "repo", repo, "login", who.Login, "err", statsErr)
		return out, nil
	}
	out.Stats = withContributor(stats, who.Login, out.Totals.TotalCommits > 0)
	out.Share = ComputeShare(out.Totals, out.Stats, who.Login)
	return out, nil
}

// withContributor returns stats with login added to the sampled authors
// when they have commits the sample missed. The fetched stats are not
// modified.
func withContributor(stats *models.ContributionStats, login string, hasCommits bool) *models.ContributionStats {
	if !hasCommits || login == "" || len(stats.Contributors) == 0 {
		return stats
	}
	for _, c := range stats.Contributors {
		if strings.EqualFold(c, login) {
			return stats
		}
	}
	cp := *stats
	cp.Contributors = append(append([]string{}, stats.Contributors...), login)
	cp.ContributorCount = len(cp.Contributors)
	return &cp
}

// ComputeTotals sums fetched records. Counts never fall below what GitHub
// reports, since fetched lists are capped.
func ComputeTotals(c *github.Contributions) models.Totals {
	t := models.Totals{
		TotalCommits: max(len(c.Commits), c.ReportedCommits),
		PRCount:      max(len(c.PullRequests), c.ReportedPullRequests),
		IssueCount:   max(len(c.Issues), c.ReportedIssues),
	}
	for _, cm := range c.Commits {
		t.TotalAdditions += cm.Additions
		t.TotalDeletions += cm.Deletions
	}
	return t
}

// ComputeShare returns login's percentage of repository activity, or nil
// when login is the repository's only contributor. Individual ratios are
// nil when the repository total is zero.
func ComputeShare(t models.Totals, stats *models.ContributionStats, login string) *models.Share {
	if stats == nil || soleContributor(stats, login) {
		return nil
	}
	s := &models.Share{
		Commits:      percent(t.TotalCommits, stats.TotalCommits),
		PullRequests: percent(t.PRCount, stats.TotalPullRequests),
		Issues:       percent(t.IssueCount, stats.TotalIssues),
	}
	if s.Commits == nil && s.PullRequests == nil && s.Issues == nil {
		return nil
	}
	return s
}

// soleContributor reports whether nobody but login appears among the
// sampled authors. Without a sample it falls back to the author count.
func soleContributor(stats *models.ContributionStats, login string) bool {
	if len(stats.Contributors) == 0 {
		return stats.ContributorCount <= 1
	}
	for _, c := range stats.Contributors {
		if !strings.EqualFold(c, login) {
			return false
		}
	}
	return true
}

func percent(part, total int) *float64 {
	if total <= 0 {
		return nil
	}
	p := float64(part) / float64(total) * 100
	return &p
}
