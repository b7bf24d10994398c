package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kevinmichaelchen/repo-analyzer/internal/apperr"
	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
)

const resolveUserQuery = `
query($login: String!) {
  user(login: $login) { id login }
}
`

const userProfileQuery = `
query($login: String!) {
  user(login: $login) {
    id
    login
    name
    bio
    avatarUrl
    url
    company
    location
    followers { totalCount }
    following { totalCount }
    repositories(privacy: PUBLIC) { totalCount }
  }
}
`

// commitHistoryQuery pages through the default branch history filtered to a
// single author.
const commitHistoryQuery = `
query($owner: String!, $name: String!, $authorId: ID!, $first: Int!, $after: String) {
  repository(owner: $owner, name: $name) {
    defaultBranchRef {
      target {
        ... on Commit {
          history(first: $first, after: $after, author: {id: $authorId}) {
            totalCount
            pageInfo { hasNextPage endCursor }
            nodes { oid message committedDate additions deletions }
          }
        }
      }
    }
  }
}
`

const authoredSearchQuery = `
query($prQuery: String!, $issueQuery: String!, $first: Int!) {
  pullRequests: search(query: $prQuery, type: ISSUE, first: $first) {
    issueCount
    nodes { ... on PullRequest { title state additions deletions } }
  }
  issues: search(query: $issueQuery, type: ISSUE, first: $first) {
    issueCount
    nodes { ... on Issue { title state } }
  }
}
`

const contributionStatsQuery = `
query($owner: String!, $name: String!, $sample: Int!) {
  repository(owner: $owner, name: $name) {
    defaultBranchRef {
      target {
        ... on Commit {
          history(first: $sample) {
            totalCount
            nodes { author { name email user { login } } }
          }
        }
      }
    }
    pullRequests { totalCount }
    issues { totalCount }
  }
}
`

const (
	commitPageSize  = 100
	maxCommitPages  = 3
	searchPageSize  = 50
	statsSampleSize = 100
)

// ResolveContributor maps a login to the stable node ID used to filter
// commit history.
func (c *Client) ResolveContributor(ctx context.Context, login string) (models.Contributor, error) {
	const op = "resolve contributor"
	var data struct {
		User *struct {
			ID    string `json:"id"`
			Login string `json:"login"`
		} `json:"user"`
	}
	if err := c.query(ctx, op, resolveUserQuery, map[string]any{"login": login}, &data); err != nil {
		return models.Contributor{}, err
	}
	if data.User == nil {
		return models.Contributor{}, apperr.Newf(apperr.KindNotFound, op, "user %q not found", login)
	}
	if data.User.ID == "" {
		return models.Contributor{}, apperr.Newf(apperr.KindMalformed, op, "user %q has no id", login)
	}
	return models.Contributor{ID: data.User.ID, Login: data.User.Login}, nil
}

func (c *Client) FetchUserProfile(ctx context.Context, login string) (*models.UserProfile, error) {
	const op = "fetch user profile"
	type count struct {
		TotalCount int `json:"totalCount"`
	}
	var data struct {
		User *struct {
			ID           string  `json:"id"`
			Login        string  `json:"login"`
			Name         *string `json:"name"`
			Bio          *string `json:"bio"`
			AvatarURL    string  `json:"avatarUrl"`
			URL          string  `json:"url"`
			Company      *string `json:"company"`
			Location     *string `json:"location"`
			Followers    count   `json:"followers"`
			Following    count   `json:"following"`
			Repositories count   `json:"repositories"`
		} `json:"user"`
	}
	if err := c.query(ctx, op, userProfileQuery, map[string]any{"login": login}, &data); err != nil {
		return nil, err
	}
	u := data.User
	if u == nil {
		return nil, apperr.Newf(apperr.KindNotFound, op, "user %q not found", login)
	}
	if u.Login == "" {
		return nil, apperr.Newf(apperr.KindMalformed, op, "user %q missing login", login)
	}
	return &models.UserProfile{
		ID:        u.ID,
		Login:     u.Login,
		Name:      nonEmpty(u.Name),
		Bio:       nonEmpty(u.Bio),
		AvatarURL: u.AvatarURL,
		URL:       u.URL,
		Company:   nonEmpty(u.Company),
		Location:  nonEmpty(u.Location),
		Followers: u.Followers.TotalCount,
		Following: u.Following.TotalCount,
		Repos:     u.Repositories.TotalCount,
	}, nil
}

// Contributions is the raw activity of one author plus the counts GitHub
// reports, which may exceed what was fetched.
type Contributions struct {
	Commits      []models.Commit
	PullRequests []models.PullRequest
	Issues       []models.Issue

	ReportedCommits      int
	ReportedPullRequests int
	ReportedIssues       int
}

// FetchUserContributions returns the commits, pull requests and issues
// authored by who on the repository.
func (c *Client) FetchUserContributions(ctx context.Context, owner, name string, who models.Contributor) (*Contributions, error) {
	commits, total, err := c.fetchAuthoredCommits(ctx, owner, name, who.ID)
	if err != nil {
		return nil, err
	}
	out := &Contributions{Commits: commits, ReportedCommits: total}
	if err := c.fetchAuthoredItems(ctx, owner, name, who.Login, out); err != nil {
		return nil, err
	}
	return out, nil
}

type commitPage struct {
	TotalCount int
	PageInfo   PageInfo
	Commits    []models.Commit
}

type commitNode struct {
	OID           string `json:"oid"`
	Message       string `json:"message"`
	CommittedDate string `json:"committedDate"`
	Additions     int    `json:"additions"`
	Deletions     int    `json:"deletions"`
}

func (c *Client) fetchCommitPage(ctx context.Context, owner, name, authorID string, after *string) (*commitPage, error) {
	const op = "fetch user commits"
	var data struct {
		Repository *struct {
			DefaultBranchRef *struct {
				Target *struct {
					History *struct {
						TotalCount int          `json:"totalCount"`
						PageInfo   PageInfo     `json:"pageInfo"`
						Nodes      []commitNode `json:"nodes"`
					} `json:"history"`
				} `json:"target"`
			} `json:"defaultBranchRef"`
		} `json:"repository"`
	}
	vars := map[string]any{"owner": owner, "name": name, "authorId": authorID, "first": commitPageSize}
	if after != nil {
		vars["after"] = *after
	}
	if err := c.query(ctx, op, commitHistoryQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Repository == nil {
		return nil, apperr.Newf(apperr.KindNotFound, op, "repository %s/%s not found", owner, name)
	}
	ref := data.Repository.DefaultBranchRef
	if ref == nil || ref.Target == nil || ref.Target.History == nil {
		return &commitPage{}, nil
	}
	h := ref.Target.History
	commits := make([]models.Commit, 0, len(h.Nodes))
	for _, n := range h.Nodes {
		cm, err := nodeToCommit(n)
		if err != nil {
			return nil, apperr.New(apperr.KindMalformed, op, err)
		}
		commits = append(commits, cm)
	}
	return &commitPage{TotalCount: h.TotalCount, PageInfo: h.PageInfo, Commits: commits}, nil
}

func nodeToCommit(n commitNode) (models.Commit, error) {
	if n.OID == "" {
		return models.Commit{}, fmt.Errorf("commit missing oid")
	}
	cm := models.Commit{
		SHA:       n.OID,
		Message:   n.Message,
		Additions: n.Additions,
		Deletions: n.Deletions,
	}
	if n.CommittedDate != "" {
		t, err := time.Parse(time.RFC3339, n.CommittedDate)
		if err != nil {
			return models.Commit{}, fmt.Errorf("commit %s: bad committedDate: %w", n.OID, err)
		}
		cm.Date = t
	}
	return cm, nil
}

func (c *Client) fetchAuthoredItems(ctx context.Context, owner, name, login string, out *Contributions) error {
	const op = "search user pull requests and issues"
	scope := fmt.Sprintf("repo:%s/%s author:%s", owner, name, login)
	var data struct {
		PullRequests struct {
			IssueCount int `json:"issueCount"`
			Nodes      []struct {
				Title     string `json:"title"`
				State     string `json:"state"`
				Additions int    `json:"additions"`
				Deletions int    `json:"deletions"`
			} `json:"nodes"`
		} `json:"pullRequests"`
		Issues struct {
			IssueCount int `json:"issueCount"`
			Nodes      []struct {
				Title string `json:"title"`
				State string `json:"state"`
			} `json:"nodes"`
		} `json:"issues"`
	}
	vars := map[string]any{
		"prQuery":    scope + " is:pr",
		"issueQuery": scope + " is:issue",
		"first":      searchPageSize,
	}
	if err := c.query(ctx, op, authoredSearchQuery, vars, &data); err != nil {
		return err
	}

	out.ReportedPullRequests = data.PullRequests.IssueCount
	out.PullRequests = make([]models.PullRequest, 0, len(data.PullRequests.Nodes))
	for _, n := range data.PullRequests.Nodes {
		// Search nodes that are not pull requests decode as empty objects.
		if n.State == "" {
			continue
		}
		out.PullRequests = append(out.PullRequests, models.PullRequest{
			Title:     n.Title,
			State:     strings.ToUpper(n.State),
			Additions: n.Additions,
			Deletions: n.Deletions,
		})
	}

	out.ReportedIssues = data.Issues.IssueCount
	out.Issues = make([]models.Issue, 0, len(data.Issues.Nodes))
	for _, n := range data.Issues.Nodes {
		if n.State == "" {
			continue
		}
		out.Issues = append(out.Issues, models.Issue{Title: n.Title, State: strings.ToUpper(n.State)})
	}
	return nil
}

// FetchContributionStats returns repository-wide activity counts and the
// distinct authors of the most recent default-branch commits.
func (c *Client) FetchContributionStats(ctx context.Context, owner, name string) (*models.ContributionStats, error) {
	const op = "fetch contribution stats"
	type count struct {
		TotalCount int `json:"totalCount"`
	}
	var data struct {
		Repository *struct {
			DefaultBranchRef *struct {
				Target *struct {
					History *struct {
						TotalCount int `json:"totalCount"`
						Nodes      []struct {
							Author *struct {
								Name  string `json:"name"`
								Email string `json:"email"`
								User  *struct {
									Login string `json:"login"`
								} `json:"user"`
							} `json:"author"`
						} `json:"nodes"`
					} `json:"history"`
				} `json:"target"`
			} `json:"defaultBranchRef"`
			PullRequests count `json:"pullRequests"`
			Issues       count `json:"issues"`
		} `json:"repository"`
	}
	vars := map[string]any{"owner": owner, "name": name, "sample": statsSampleSize}
	if err := c.query(ctx, op, contributionStatsQuery, vars, &data); err != nil {
		return nil, err
	}
	r := data.Repository
	if r == nil {
		return nil, apperr.Newf(apperr.KindNotFound, op, "repository %s/%s not found", owner, name)
	}

	stats := &models.ContributionStats{
		TotalPullRequests: r.PullRequests.TotalCount,
		TotalIssues:       r.Issues.TotalCount,
		Contributors:      []string{},
	}
	if ref := r.DefaultBranchRef; ref != nil && ref.Target != nil && ref.Target.History != nil {
		stats.TotalCommits = ref.Target.History.TotalCount
		seen := map[string]bool{}
		for _, n := range ref.Target.History.Nodes {
			if n.Author == nil {
				continue
			}
			login := ""
			if n.Author.User != nil {
				login = n.Author.User.Login
			}
			id := authorIdentity(n.Author.Name, n.Author.Email, login)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			stats.Contributors = append(stats.Contributors, id)
		}
	}
	stats.ContributorCount = len(stats.Contributors)
	return stats, nil
}

// authorIdentity prefers the GitHub login and falls back to the git author
// email or name for commits not linked to an account.
func authorIdentity(name, email, login string) string {
	if login != "" {
		return login
	}
	if email != "" {
		return strings.ToLower(email)
	}
	return strings.ToLower(strings.TrimSpace(name))
}
