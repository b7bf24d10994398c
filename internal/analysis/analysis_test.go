package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinmichaelchen/repo-analyzer/internal/apperr"
	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
)

type stubCompleter struct {
	calls      atomic.Int32
	text       string
	err        error
	lastSystem string
	lastUser   string
}

func (s *stubCompleter) Complete(_ context.Context, system, user string) (string, error) {
	s.calls.Add(1)
	s.lastSystem, s.lastUser = system, user
	return s.text, s.err
}

func ptr(s string) *string { return &s }

const validAnalysis = `{"project_type":"CLI","technologies":[{"name":"Go","confidence":0.95},{"name":"SurrealDB","confidence":0.6}],
"generated_description":"Syncs GitHub stars.","key_features":["sync","search"],"complexity_score":4}`

func TestParseProjectAnalysis(t *testing.T) {
	a, err := ParseProjectAnalysis(validAnalysis)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectTypeCLI, a.ProjectType)
	assert.Equal(t, []models.Technology{{Name: "Go", Confidence: 0.95}, {Name: "SurrealDB", Confidence: 0.6}}, a.Technologies)
	assert.Equal(t, "Syncs GitHub stars.", *a.GeneratedDescription)
	assert.Equal(t, 4, a.ComplexityScore)
}

func TestParseProjectAnalysisToleratesCodeFences(t *testing.T) {
	a, err := ParseProjectAnalysis("```json\n" + validAnalysis + "\n```")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectTypeCLI, a.ProjectType)
}

func TestParseProjectAnalysisRejects(t *testing.T) {
	tests := map[string]string{
		"not json":            `the project is a CLI`,
		"truncated":           `{"project_type":"CLI","technologies":[`,
		"missing type":        `{"technologies":[],"key_features":[],"complexity_score":3}`,
		"missing complexity":  `{"project_type":"CLI","technologies":[],"key_features":[]}`,
		"missing features":    `{"project_type":"CLI","technologies":[],"complexity_score":3}`,
		"unknown type":        `{"project_type":"Game","technologies":[],"key_features":[],"complexity_score":3}`,
		"confidence too high": `{"project_type":"CLI","technologies":[{"name":"Go","confidence":1.5}],"key_features":[],"complexity_score":3}`,
		"negative confidence": `{"project_type":"CLI","technologies":[{"name":"Go","confidence":-0.1}],"key_features":[],"complexity_score":3}`,
		"missing confidence":  `{"project_type":"CLI","technologies":[{"name":"Go"}],"key_features":[],"complexity_score":3}`,
		"empty tech name":     `{"project_type":"CLI","technologies":[{"name":" ","confidence":0.5}],"key_features":[],"complexity_score":3}`,
		"fractional score":    `{"project_type":"CLI","technologies":[],"key_features":[],"complexity_score":3.5}`,
		"score too high":      `{"project_type":"CLI","technologies":[],"key_features":[],"complexity_score":11}`,
		"score zero":          `{"project_type":"CLI","technologies":[],"key_features":[],"complexity_score":0}`,
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProjectAnalysis(text)
			require.Error(t, err)
			assert.Equal(t, apperr.KindParse, apperr.KindOf(err))
		})
	}
}

func TestProjectAnalysisRoundTrip(t *testing.T) {
	cases := []models.ProjectAnalysis{
		{
			ProjectType:          models.ProjectTypeWebApp,
			Technologies:         []models.Technology{{Name: "TypeScript", Confidence: 1}, {Name: "Next.js", Confidence: 0.75}},
			GeneratedDescription: ptr("A dashboard."),
			KeyFeatures:          []string{"auth", "charts"},
			ComplexityScore:      models.MaxComplexity,
		},
		{
			ProjectType:     models.ProjectTypeOther,
			Technologies:    []models.Technology{},
			KeyFeatures:     []string{},
			ComplexityScore: models.MinComplexity,
		},
		{
			ProjectType:          models.ProjectTypeLibrary,
			Technologies:         []models.Technology{{Name: "Rust", Confidence: 0.5}},
			GeneratedDescription: ptr("   "),
			KeyFeatures:          []string{"ffi"},
			ComplexityScore:      3,
		},
		{
			ProjectType:          models.ProjectTypeCLI,
			Technologies:         []models.Technology{},
			GeneratedDescription: ptr(""),
			KeyFeatures:          []string{},
			ComplexityScore:      2,
		},
	}
	for _, pt := range models.ProjectTypes {
		cases = append(cases, models.ProjectAnalysis{
			ProjectType: pt, Technologies: []models.Technology{{Name: "Go", Confidence: 0}},
			KeyFeatures: []string{"x"}, ComplexityScore: 5,
		})
	}

	for i, want := range cases {
		t.Run(fmt.Sprintf("%d-%s", i, want.ProjectType), func(t *testing.T) {
			b, err := json.Marshal(want)
			require.NoError(t, err)
			got, err := ParseProjectAnalysis(string(b))
			require.NoError(t, err)
			assert.Equal(t, want, *got)
		})
	}
}

// Parsed analyses always carry non-nil slices, so a nil slice marshals to
// null and is reported as a missing key rather than read back as empty.
func TestParseProjectAnalysisRejectsNullSlices(t *testing.T) {
	b, err := json.Marshal(models.ProjectAnalysis{ProjectType: models.ProjectTypeAPI, KeyFeatures: []string{}, ComplexityScore: 5})
	require.NoError(t, err)
	_, err = ParseProjectAnalysis(string(b))
	require.Error(t, err)
	assert.Equal(t, apperr.KindParse, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "technologies")
}

func TestProjectAnalyzerAnalyze(t *testing.T) {
	stub := &stubCompleter{text: validAnalysis}
	a, err := NewProjectAnalyzer(stub, nil).Analyze(context.Background(), "Repo: octo/widget")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectTypeCLI, a.ProjectType)
	assert.EqualValues(t, 1, stub.calls.Load())
	assert.Equal(t, "Repo: octo/widget", stub.lastUser)
	assert.Contains(t, stub.lastSystem, "project_type")
}

func TestProjectAnalyzerErrors(t *testing.T) {
	stub := &stubCompleter{err: apperr.New(apperr.KindRateLimited, "complete", errors.New("429"))}
	_, err := NewProjectAnalyzer(stub, nil).Analyze(context.Background(), "ctx")
	require.Error(t, err)
	assert.Equal(t, apperr.KindGeneration, apperr.KindOf(err))

	stub = &stubCompleter{text: "I think this is a CLI."}
	_, err = NewProjectAnalyzer(stub, nil).Analyze(context.Background(), "ctx")
	require.Error(t, err)
	assert.Equal(t, apperr.KindParse, apperr.KindOf(err))
	assert.EqualValues(t, 1, stub.calls.Load())
}

func TestProjectAnalyzerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stub := &stubCompleter{err: context.Canceled}
	_, err := NewProjectAnalyzer(stub, nil).Analyze(ctx, "ctx")
	assert.ErrorIs(t, err, context.Canceled)
}

func sampleContribution() *models.UserContributionRaw {
	commits := make([]models.Commit, 40)
	for i := range commits {
		commits[i] = models.Commit{SHA: fmt.Sprintf("%040d", i), Message: fmt.Sprintf("commit %d\n\nbody", i)}
	}
	commits[0].Message = strings.Repeat("x", 500)
	share := 2.5
	return &models.UserContributionRaw{
		Contributor:  models.Contributor{ID: "U_1", Login: "alice"},
		Commits:      commits,
		PullRequests: []models.PullRequest{{Title: "Add cache", State: "MERGED"}, {Title: "WIP", State: "OPEN"}, {Title: "Fix", State: "MERGED"}},
		Issues:       []models.Issue{{Title: "Bug", State: "CLOSED"}},
		Totals:       models.Totals{TotalCommits: 40, TotalAdditions: 900, TotalDeletions: 100, PRCount: 3, IssueCount: 1},
		Stats:        &models.ContributionStats{TotalCommits: 2000, ContributorCount: 2},
		Share:        &models.Share{Commits: &share},
	}
}

func TestContributionPrompt(t *testing.T) {
	d := &models.RepositoryDetails{Owner: "octo", Name: "widget", Languages: []models.Language{{Name: "Go"}}}
	p := ContributionPrompt(d, sampleContribution())

	assert.Contains(t, p, "Repo: octo/widget")
	assert.Contains(t, p, "Desc: No description provided.")
	assert.Contains(t, p, "Langs: Go")
	assert.Contains(t, p, "Commits: 40 (+900/-100 lines)")
	assert.Contains(t, p, "Pull requests: 3 (MERGED 2, OPEN 1)")
	assert.Contains(t, p, "Issues: 1 (CLOSED 1)")
	assert.Contains(t, p, "commits 2.5%")
	assert.Contains(t, p, "- commit 29\n")
	assert.NotContains(t, p, "commit 30")
	assert.NotContains(t, p, "body")
	assert.NotContains(t, p, strings.Repeat("x", 121))
}

func TestParseContributionSummary(t *testing.T) {
	s, err := ParseContributionSummary(`{"relationship":"CoreContributor","primary_areas":["cache","API","cache","api"],
		"summary_text":" Built the cache layer. ","notable_patterns":["small commits"]}`)
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipCoreContributor, s.Relationship)
	assert.Equal(t, []string{"cache", "API"}, s.PrimaryAreas)
	assert.Equal(t, "Built the cache layer.", s.SummaryText)
	assert.Equal(t, []string{"small commits"}, s.NotablePatterns)
}

func TestParseContributionSummaryRejects(t *testing.T) {
	tests := map[string]string{
		"not json":           `Alice is great`,
		"bad relationship":   `{"relationship":"Maintainer","primary_areas":["x"],"summary_text":"ok"}`,
		"empty summary":      `{"relationship":"Owner","primary_areas":["x"],"summary_text":"  "}`,
		"too many sentences": `{"relationship":"Owner","primary_areas":["x"],"summary_text":"One. Two. Three. Four."}`,
		"missing summary":    `{"relationship":"Owner","primary_areas":["x"]}`,
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseContributionSummary(text)
			require.Error(t, err)
			assert.Equal(t, apperr.KindParse, apperr.KindOf(err))
		})
	}
}

func TestSummarize(t *testing.T) {
	stub := &stubCompleter{text: `{"relationship":"Contributor","primary_areas":["docs"],"summary_text":"Wrote docs.","notable_patterns":[]}`}
	d := &models.RepositoryDetails{Owner: "octo", Name: "widget"}
	s, err := NewContributionSummarizer(stub, nil).Summarize(context.Background(), d, sampleContribution())
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipContributor, s.Relationship)
	assert.EqualValues(t, 1, stub.calls.Load())
	assert.Contains(t, stub.lastUser, "Contributor: alice")
}

func TestSummarizePanicsWithoutActivity(t *testing.T) {
	stub := &stubCompleter{}
	d := &models.RepositoryDetails{Owner: "octo", Name: "widget"}
	assert.Panics(t, func() {
		_, _ = NewContributionSummarizer(stub, nil).Summarize(context.Background(), d, &models.UserContributionRaw{})
	})
	assert.EqualValues(t, 0, stub.calls.Load())
}
