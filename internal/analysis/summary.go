package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kevinmichaelchen/repo-analyzer/internal/apperr"
	"github.com/kevinmichaelchen/repo-analyzer/internal/llm"
	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
	"github.com/kevinmichaelchen/repo-analyzer/internal/repocontext"
)

const (
	maxPromptCommits    = 30
	maxCommitMessageLen = 120
	maxPromptTitles     = 20
)

type ContributionSummarizer struct {
	llm    llm.Completer
	logger *slog.Logger
}

func NewContributionSummarizer(c llm.Completer, logger *slog.Logger) *ContributionSummarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContributionSummarizer{llm: c, logger: logger}
}

// Summarize asks the model to characterise a contributor. It must only be
// called with non-zero activity.
func (s *ContributionSummarizer) Summarize(ctx context.Context, details *models.RepositoryDetails, contrib *models.UserContributionRaw) (*models.ContributionSummary, error) {
	const op = "summarize contributions"
	if contrib == nil || contrib.Totals.Activity() <= 0 {
		panic("analysis: Summarize called without contribution activity")
	}

	prompt := ContributionPrompt(details, contrib)
	s.logger.DebugContext(ctx, "requesting contribution summary",
		"repo", details.FullName(), "login", contrib.Contributor.Login, "prompt_chars", len(prompt))

	text, err := s.llm.Complete(ctx, contributionSystemPrompt, prompt)
	if err != nil {
		return nil, generationError(ctx, op, err)
	}
	return ParseContributionSummary(text)
}

// ContributionPrompt renders the evidence the model judges the relationship
// from: repository basics, totals, PR and issue states, and recent commit
// messages.
func ContributionPrompt(details *models.RepositoryDetails, contrib *models.UserContributionRaw) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Repo: %s\n", details.FullName())
	desc := repocontext.NoDescription
	if details.Description != nil && strings.TrimSpace(*details.Description) != "" {
		desc = strings.TrimSpace(*details.Description)
	}
	fmt.Fprintf(&b, "Desc: %s\n", desc)
	langs := make([]string, 0, len(details.Languages))
	for _, l := range details.Languages {
		langs = append(langs, l.Name)
	}
	if len(langs) == 0 {
		langs = append(langs, repocontext.None)
	}
	fmt.Fprintf(&b, "Langs: %s\n", strings.Join(langs, ", "))

	t := contrib.Totals
	fmt.Fprintf(&b, "Contributor: %s\n", contrib.Contributor.Login)
	fmt.Fprintf(&b, "Commits: %d (+%d/-%d lines)\n", t.TotalCommits, t.TotalAdditions, t.TotalDeletions)
	fmt.Fprintf(&b, "Pull requests: %d %s\n", t.PRCount, stateCounts(prStates(contrib.PullRequests)))
	fmt.Fprintf(&b, "Issues: %d %s\n", t.IssueCount, stateCounts(issueStates(contrib.Issues)))

	if st := contrib.Stats; st != nil {
		fmt.Fprintf(&b, "Repository totals: %d commits, %d pull requests, %d issues, %d contributors\n",
			st.TotalCommits, st.TotalPullRequests, st.TotalIssues, st.ContributorCount)
	}
	if sh := contrib.Share; sh != nil {
		b.WriteString("Share of repository activity:")
		writePercent(&b, "commits", sh.Commits)
		writePercent(&b, "pull requests", sh.PullRequests)
		writePercent(&b, "issues", sh.Issues)
		b.WriteString("\n")
	}

	if len(contrib.PullRequests) > 0 {
		b.WriteString("Pull request titles:\n")
		for i, pr := range contrib.PullRequests {
			if i == maxPromptTitles {
				break
			}
			fmt.Fprintf(&b, "- [%s] %s\n", pr.State, repocontext.Truncate(firstLine(pr.Title), maxCommitMessageLen))
		}
	}

	if len(contrib.Commits) > 0 {
		b.WriteString("Recent commit messages:\n")
		for i, c := range contrib.Commits {
			if i == maxPromptCommits {
				break
			}
			fmt.Fprintf(&b, "- %s\n", repocontext.Truncate(firstLine(c.Message), maxCommitMessageLen))
		}
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func prStates(prs []models.PullRequest) map[string]int {
	m := make(map[string]int)
	for _, pr := range prs {
		m[pr.State]++
	}
	return m
}

func issueStates(issues []models.Issue) map[string]int {
	m := make(map[string]int)
	for _, is := range issues {
		m[is.State]++
	}
	return m
}

// stateCounts renders {MERGED: 3, OPEN: 1} as "(MERGED 3, OPEN 1)".
func stateCounts(m map[string]int) string {
	if len(m) == 0 {
		return ""
	}
	states := make([]string, 0, len(m))
	for s := range m {
		states = append(states, s)
	}
	sort.Strings(states)
	parts := make([]string, 0, len(states))
	for _, s := range states {
		parts = append(parts, fmt.Sprintf("%s %d", s, m[s]))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func writePercent(b *strings.Builder, label string, v *float64) {
	if v == nil {
		return
	}
	fmt.Fprintf(b, " %s %.1f%%", label, *v)
}

type rawSummary struct {
	Relationship    *string  `json:"relationship"`
	PrimaryAreas    []string `json:"primary_areas"`
	SummaryText     *string  `json:"summary_text"`
	NotablePatterns []string `json:"notable_patterns"`
}

// ParseContributionSummary decodes and validates model output. Primary
// areas are deduplicated keeping first occurrence order.
func ParseContributionSummary(text string) (*models.ContributionSummary, error) {
	const op = "parse contribution summary"

	var raw rawSummary
	if err := json.Unmarshal([]byte(llm.StripCodeFences(text)), &raw); err != nil {
		return nil, apperr.New(apperr.KindParse, op, err)
	}
	if raw.Relationship == nil || raw.SummaryText == nil {
		return nil, apperr.Newf(apperr.KindParse, op, "relationship and summary_text are required")
	}

	out := &models.ContributionSummary{
		Relationship:    models.Relationship(*raw.Relationship),
		PrimaryAreas:    dedupe(raw.PrimaryAreas),
		SummaryText:     strings.TrimSpace(*raw.SummaryText),
		NotablePatterns: append([]string{}, raw.NotablePatterns...),
	}
	if err := out.Validate(); err != nil {
		return nil, apperr.New(apperr.KindParse, op, err)
	}
	return out, nil
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
