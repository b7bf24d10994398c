package github

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinmichaelchen/repo-analyzer/internal/apperr"
	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
	"github.com/kevinmichaelchen/repo-analyzer/internal/retry"
)

type gqlCall struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// newTestClient serves every GraphQL request with handle.
func newTestClient(t *testing.T, handle func(w http.ResponseWriter, call gqlCall)) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		if !assert.NoError(t, err) {
			return
		}
		var call gqlCall
		if !assert.NoError(t, json.Unmarshal(body, &call)) {
			return
		}
		handle(w, call)
	}))
	t.Cleanup(srv.Close)

	c := NewClient("test-token",
		WithEndpoint(srv.URL),
		WithTimeout(2*time.Second),
		WithRetryPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}),
	)
	return c, &calls
}

func writeData(w http.ResponseWriter, data string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"data":`+data+`}`)
}

const detailsFixture = `{"repository":{
  "owner":{"login":"octo"},
  "name":"widget",
  "description":"A widget service",
  "url":"https://github.com/octo/widget",
  "stargazerCount":42,
  "primaryLanguage":{"name":"Go"},
  "languages":{"edges":[{"size":9000,"node":{"name":"Go"}},{"size":120,"node":{"name":"Makefile"}}]},
  "repositoryTopics":{"nodes":[{"topic":{"name":"grpc"}}]},
  "defaultBranchRef":{"name":"main"},
  "tree":{"entries":[{"name":"cmd","type":"tree","path":"cmd"},{"name":"go.mod","type":"blob","path":"go.mod"}]},
  "readme0":null,
  "readme1":{"text":"# widget"},
  "config1":{"text":"module example.com/widget"},
  "config10":{}
}}`

func TestFetchRepositoryDetails(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, call gqlCall) {
		assert.Equal(t, "octo", call.Variables["owner"])
		assert.Contains(t, call.Query, `config1: object(expression: "HEAD:go.mod")`)
		writeData(w, detailsFixture)
	})

	d, err := c.FetchRepositoryDetails(context.Background(), "octo", "widget")
	require.NoError(t, err)

	assert.Equal(t, "octo/widget", d.FullName())
	require.NotNil(t, d.Description)
	assert.Equal(t, "A widget service", *d.Description)
	assert.Equal(t, []models.Language{{Name: "Go", Bytes: 9000}, {Name: "Makefile", Bytes: 120}}, d.Languages)
	assert.Equal(t, []string{"grpc"}, d.Topics)
	require.NotNil(t, d.DefaultBranch)
	assert.Len(t, d.RootTree, 2)
	require.NotNil(t, d.Readme)
	assert.Equal(t, "# widget", *d.Readme)
	assert.Equal(t, map[string]string{"go.mod": "module example.com/widget"}, d.ConfigFiles)
	assert.False(t, d.IsEmpty())
}

func TestFetchRepositoryDetailsEmptyRepository(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		writeData(w, `{"repository":{"owner":{"login":"octo"},"name":"blank","defaultBranchRef":null,"tree":null}}`)
	})

	d, err := c.FetchRepositoryDetails(context.Background(), "octo", "blank")
	require.NoError(t, err)
	assert.Nil(t, d.DefaultBranch)
	assert.Empty(t, d.RootTree)
	assert.True(t, d.IsEmpty())
}

func TestFetchRepositoryDetailsRejectsMissingOwner(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		writeData(w, `{"repository":{"name":"widget"}}`)
	})

	_, err := c.FetchRepositoryDetails(context.Background(), "octo", "widget")
	require.Error(t, err)
	assert.Equal(t, apperr.KindMalformed, apperr.KindOf(err))
}

func TestFetchRepositoryDetailsNullRepositoryIsNotFound(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		writeData(w, `{"repository":null}`)
	})

	_, err := c.FetchRepositoryDetails(context.Background(), "octo", "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		header    map[string]string
		body      string
		wantKind  apperr.Kind
		wantCalls int32
	}{
		{name: "unauthorized", status: 401, body: `{"message":"Bad credentials"}`, wantKind: apperr.KindAccessDenied, wantCalls: 1},
		{name: "forbidden", status: 403, body: `{"message":"no"}`, wantKind: apperr.KindAccessDenied, wantCalls: 1},
		{name: "secondary rate limit", status: 403, header: map[string]string{"X-RateLimit-Remaining": "0"}, wantKind: apperr.KindRateLimited, wantCalls: 3},
		{name: "too many requests", status: 429, wantKind: apperr.KindRateLimited, wantCalls: 3},
		{name: "not found", status: 404, wantKind: apperr.KindNotFound, wantCalls: 1},
		{name: "bad gateway", status: 502, wantKind: apperr.KindTransport, wantCalls: 3},
		{name: "graphql not found", status: 200, body: `{"data":{"repository":null},"errors":[{"type":"NOT_FOUND","message":"Could not resolve to a Repository"}]}`, wantKind: apperr.KindNotFound, wantCalls: 1},
		{name: "graphql rate limited", status: 200, body: `{"errors":[{"type":"RATE_LIMITED","message":"API rate limit exceeded"}]}`, wantKind: apperr.KindRateLimited, wantCalls: 3},
		{name: "graphql forbidden", status: 200, body: `{"errors":[{"type":"FORBIDDEN","message":"Resource not accessible"}]}`, wantKind: apperr.KindAccessDenied, wantCalls: 1},
		{name: "garbage", status: 200, body: `<html>`, wantKind: apperr.KindMalformed, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, calls := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.FetchRepositoryDetails(context.Background(), "octo", "widget")
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestTransientFailureIsRetried(t *testing.T) {
	var n atomic.Int32
	c, calls := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeData(w, detailsFixture)
	})

	d, err := c.FetchRepositoryDetails(context.Background(), "octo", "widget")
	require.NoError(t, err)
	assert.Equal(t, "widget", d.Name)
	assert.EqualValues(t, 2, calls.Load())
}

func TestAttemptTimeoutIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient("", WithEndpoint(srv.URL), WithTimeout(20*time.Millisecond),
		WithRetryPolicy(retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))

	_, err := c.FetchRepositoryDetails(context.Background(), "octo", "slow")
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
}

func TestFetchDirectoryTree(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, call gqlCall) {
		assert.Equal(t, "HEAD:internal/api", call.Variables["expression"])
		writeData(w, `{"repository":{"object":{"entries":[{"name":"server.go","type":"blob","path":"internal/api/server.go"}]}}}`)
	})

	entries, err := c.FetchDirectoryTree(context.Background(), "octo", "widget", "/internal/api/")
	require.NoError(t, err)
	assert.Equal(t, []models.TreeEntry{{Name: "server.go", Type: "blob", Path: "internal/api/server.go"}}, entries)
}

func TestFetchDirectoryTreeMissingPath(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		writeData(w, `{"repository":{"object":null}}`)
	})

	_, err := c.FetchDirectoryTree(context.Background(), "octo", "widget", "nope")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestFetchFileContent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, call gqlCall) {
		assert.Equal(t, "HEAD:go.mod", call.Variables["expression"])
		writeData(w, `{"repository":{"object":{"text":"module x","byteSize":8,"isBinary":false}}}`)
	})

	fc, err := c.FetchFileContent(context.Background(), "octo", "widget", "go.mod")
	require.NoError(t, err)
	assert.Equal(t, &models.FileContent{Path: "go.mod", Text: "module x", ByteSize: 8}, fc)
}

func TestResolveContributor(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, call gqlCall) {
		if call.Variables["login"] == "ghost" {
			writeData(w, `{"user":null}`)
			return
		}
		writeData(w, `{"user":{"id":"U_1","login":"alice"}}`)
	})

	who, err := c.ResolveContributor(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.Contributor{ID: "U_1", Login: "alice"}, who)

	_, err = c.ResolveContributor(context.Background(), "ghost")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestFetchUserContributionsPagesCommits(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, call gqlCall) {
		switch {
		case strings.Contains(call.Query, "history(first: $first"):
			assert.Equal(t, "U_1", call.Variables["authorId"])
			if call.Variables["after"] == nil {
				writeData(w, `{"repository":{"defaultBranchRef":{"target":{"history":{
					"totalCount":2,"pageInfo":{"hasNextPage":true,"endCursor":"c1"},
					"nodes":[{"oid":"a1","message":"feat: api","committedDate":"2024-05-01T10:00:00Z","additions":10,"deletions":2}]}}}}}`)
				return
			}
			assert.Equal(t, "c1", call.Variables["after"])
			writeData(w, `{"repository":{"defaultBranchRef":{"target":{"history":{
				"totalCount":2,"pageInfo":{"hasNextPage":false,"endCursor":"c2"},
				"nodes":[{"oid":"b2","message":"fix: nil","committedDate":"2024-05-02T10:00:00Z","additions":1,"deletions":1}]}}}}}`)
		case strings.Contains(call.Query, "search("):
			assert.Equal(t, "repo:octo/widget author:alice is:pr", call.Variables["prQuery"])
			assert.Equal(t, "repo:octo/widget author:alice is:issue", call.Variables["issueQuery"])
			writeData(w, `{
				"pullRequests":{"issueCount":1,"nodes":[{"title":"Add API","state":"MERGED","additions":50,"deletions":5}]},
				"issues":{"issueCount":1,"nodes":[{"title":"Crash","state":"open"},{}]}}`)
		default:
			t.Errorf("unexpected query %s", call.Query)
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	got, err := c.FetchUserContributions(context.Background(), "octo", "widget", models.Contributor{ID: "U_1", Login: "alice"})
	require.NoError(t, err)

	require.Len(t, got.Commits, 2)
	assert.Equal(t, "a1", got.Commits[0].SHA)
	assert.Equal(t, time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC), got.Commits[1].Date)
	assert.Equal(t, 2, got.ReportedCommits)
	assert.Equal(t, []models.PullRequest{{Title: "Add API", State: "MERGED", Additions: 50, Deletions: 5}}, got.PullRequests)
	assert.Equal(t, []models.Issue{{Title: "Crash", State: "OPEN"}}, got.Issues)
}

func TestFetchContributionStats(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		writeData(w, `{"repository":{
			"defaultBranchRef":{"target":{"history":{"totalCount":2000,"nodes":[
				{"author":{"name":"Alice","email":"a@x.io","user":{"login":"alice"}}},
				{"author":{"name":"Bob","email":"Bob@X.io","user":null}},
				{"author":{"name":"Alice","email":"a@x.io","user":{"login":"alice"}}}
			]}}},
			"pullRequests":{"totalCount":30},
			"issues":{"totalCount":12}}}`)
	})

	stats, err := c.FetchContributionStats(context.Background(), "octo", "widget")
	require.NoError(t, err)
	assert.Equal(t, 2000, stats.TotalCommits)
	assert.Equal(t, 30, stats.TotalPullRequests)
	assert.Equal(t, 12, stats.TotalIssues)
	assert.Equal(t, []string{"alice", "bob@x.io"}, stats.Contributors)
	assert.Equal(t, 2, stats.ContributorCount)
}

func TestFetchUserProfile(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		writeData(w, `{"user":{"id":"U_1","login":"alice","name":"Alice","bio":"","avatarUrl":"https://a","url":"https://github.com/alice",
			"followers":{"totalCount":3},"following":{"totalCount":4},"repositories":{"totalCount":5}}}`)
	})

	p, err := c.FetchUserProfile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Login)
	require.NotNil(t, p.Name)
	assert.Nil(t, p.Bio)
	assert.Equal(t, 3, p.Followers)
	assert.Equal(t, 5, p.Repos)
}

func TestRateLimitResetSetsRetryAfter(t *testing.T) {
	reset := time.Now().Add(90 * time.Second).Unix()
	resp := &http.Response{StatusCode: http.StatusForbidden, Header: http.Header{}}
	resp.Header.Set("X-RateLimit-Remaining", "0")
	resp.Header.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

	err := statusError("fetch", resp, []byte(`{"message":"API rate limit exceeded"}`))
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))
	wait := apperr.RetryAfter(err)
	assert.Greater(t, wait, 80*time.Second)
	assert.LessOrEqual(t, wait, 90*time.Second)

	resp.Header.Set("Retry-After", "5")
	assert.Equal(t, 5*time.Second, apperr.RetryAfter(statusError("fetch", resp, nil)))
}

func TestUntilReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	assert.Equal(t, 30*time.Second, untilReset("1700000030", now))
	assert.Zero(t, untilReset("1699999990", now))
	assert.Zero(t, untilReset("soon", now))
	assert.Zero(t, untilReset("", now))
}

func TestFetchUserRepositories(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, call gqlCall) {
		assert.Equal(t, "alice", call.Variables["login"])
		assert.EqualValues(t, 100, call.Variables["first"])
		writeData(w, `{"user":{"repositories":{"nodes":[
			{"owner":{"login":"alice"},"name":"widget","description":"Widgets","url":"https://github.com/alice/widget",
			 "stargazerCount":7,"forkCount":2,"isFork":false,"updatedAt":"2024-05-01T00:00:00Z","primaryLanguage":{"name":"Go"}},
			{"owner":{"login":"alice"},"name":"dotfiles","description":"","url":"https://github.com/alice/dotfiles",
			 "stargazerCount":0,"forkCount":0,"isFork":true,"updatedAt":"2023-01-01T00:00:00Z","primaryLanguage":null}
		]}}}`)
	})

	repos, err := c.FetchUserRepositories(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "widget", repos[0].Name)
	assert.Equal(t, 7, repos[0].Stars)
	require.NotNil(t, repos[0].PrimaryLanguage)
	assert.Equal(t, "Go", *repos[0].PrimaryLanguage)
	assert.Nil(t, repos[1].Description)
	assert.Nil(t, repos[1].PrimaryLanguage)
	assert.True(t, repos[1].IsFork)
}

func TestFetchUserRepositoriesUnknownUser(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		writeData(w, `{"user":null}`)
	})

	_, err := c.FetchUserRepositories(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchContributionCalendar(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		writeData(w, `{"user":{"login":"alice","contributionsCollection":{"contributionCalendar":{
			"totalContributions":5,
			"weeks":[
				{"contributionDays":[{"date":"2024-01-07","weekday":0,"contributionCount":2},{"date":"2024-01-08","weekday":1,"contributionCount":0}]},
				{"contributionDays":[{"date":"2024-01-14","weekday":0,"contributionCount":3}]}
			]}}}}`)
	})

	cal, err := c.FetchContributionCalendar(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", cal.Login)
	assert.Equal(t, 5, cal.TotalContributions)
	require.Len(t, cal.Weeks, 2)
	assert.Equal(t, models.CalendarDay{Date: "2024-01-08", Weekday: 1, Count: 0}, cal.Weeks[0].Days[1])
	assert.Equal(t, 3, cal.Weeks[1].Days[0].Count)
}

func TestFetchContributionCalendarRejectsMissingDate(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		writeData(w, `{"user":{"login":"alice","contributionsCollection":{"contributionCalendar":{
			"totalContributions":1,"weeks":[{"contributionDays":[{"weekday":0,"contributionCount":1}]}]}}}}`)
	})

	_, err := c.FetchContributionCalendar(context.Background(), "alice")
	require.Error(t, err)
	assert.Equal(t, apperr.KindMalformed, apperr.KindOf(err))
}
