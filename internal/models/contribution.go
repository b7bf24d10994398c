package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Contributor is a GitHub user resolved to its stable node ID.
type Contributor struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

type Commit struct {
	SHA       string    `json:"sha"`
	Message   string    `json:"message"`
	Date      time.Time `json:"date"`
	Additions int       `json:"additions"`
	Deletions int       `json:"deletions"`
}

type PullRequest struct {
	Title     string `json:"title"`
	State     string `json:"state"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

type Issue struct {
	Title string `json:"title"`
	State string `json:"state"`
}

type Totals struct {
	TotalCommits   int `json:"total_commits"`
	TotalAdditions int `json:"total_additions"`
	TotalDeletions int `json:"total_deletions"`
	PRCount        int `json:"pr_count"`
	IssueCount     int `json:"issue_count"`
}

// Activity is the number of commits, pull requests and issues combined.
func (t Totals) Activity() int { return t.TotalCommits + t.PRCount + t.IssueCount }

// ContributionStats holds repository-wide activity counts.
type ContributionStats struct {
	TotalCommits      int `json:"total_commits"`
	TotalPullRequests int `json:"total_pull_requests"`
	TotalIssues       int `json:"total_issues"`
	// ContributorCount is the number of distinct commit authors seen in the
	// sampled default-branch history.
	ContributorCount int      `json:"contributor_count"`
	Contributors     []string `json:"contributors"`
}

// Share is the user's percentage of repository-wide activity. A nil field
// means the ratio is not meaningful and was not computed.
type Share struct {
	Commits      *float64 `json:"commits,omitempty"`
	PullRequests *float64 `json:"pull_requests,omitempty"`
	Issues       *float64 `json:"issues,omitempty"`
}

// UserContributionRaw is a single contributor's activity on a repository.
type UserContributionRaw struct {
	Contributor  Contributor        `json:"contributor"`
	Commits      []Commit           `json:"commits"`
	PullRequests []PullRequest      `json:"pull_requests"`
	Issues       []Issue            `json:"issues"`
	Totals       Totals             `json:"totals"`
	Stats        *ContributionStats `json:"stats,omitempty"`
	Share        *Share             `json:"share,omitempty"`
}

type Relationship string

const (
	RelationshipOwner                Relationship = "Owner"
	RelationshipCoreContributor      Relationship = "CoreContributor"
	RelationshipContributor          Relationship = "Contributor"
	RelationshipFirstTimeContributor Relationship = "FirstTimeContributor"
)

var Relationships = []Relationship{
	RelationshipOwner, RelationshipCoreContributor,
	RelationshipContributor, RelationshipFirstTimeContributor,
}

func (r Relationship) Valid() bool {
	for _, v := range Relationships {
		if r == v {
			return true
		}
	}
	return false
}

const (
	MaxSummarySentences = 3
	MaxSummaryChars     = 600
)

type ContributionSummary struct {
	Relationship    Relationship `json:"relationship"`
	PrimaryAreas    []string     `json:"primary_areas"`
	SummaryText     string       `json:"summary_text"`
	NotablePatterns []string     `json:"notable_patterns"`
}

func (s *ContributionSummary) Validate() error {
	var errs []error
	if !s.Relationship.Valid() {
		errs = append(errs, fmt.Errorf("relationship %q is not one of %v", s.Relationship, Relationships))
	}
	switch text := strings.TrimSpace(s.SummaryText); {
	case text == "":
		errs = append(errs, errors.New("summary_text is empty"))
	case utf8.RuneCountInString(text) > MaxSummaryChars:
		errs = append(errs, fmt.Errorf("summary_text longer than %d characters", MaxSummaryChars))
	case CountSentences(text) > MaxSummarySentences:
		errs = append(errs, fmt.Errorf("summary_text has %d sentences, at most %d allowed", CountSentences(text), MaxSummarySentences))
	}
	for i, a := range s.PrimaryAreas {
		if strings.TrimSpace(a) == "" {
			errs = append(errs, fmt.Errorf("primary_areas[%d]: empty", i))
		}
	}
	return errors.Join(errs...)
}

// CountSentences counts runs of '.', '!' or '?' that end the text or are
// followed by whitespace, so "Node.js" and "..." count once at most.
func CountSentences(text string) int {
	rs := []rune(strings.TrimSpace(text))
	if len(rs) == 0 {
		return 0
	}
	n := 0
	for i, r := range rs {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 == len(rs) || unicode.IsSpace(rs[i+1]) {
			n++
		}
	}
	if last := rs[len(rs)-1]; last != '.' && last != '!' && last != '?' {
		n++
	}
	return n
}

// ContributionCalendar is a user's daily contribution counts for the last
// year, grouped into weeks starting on Sunday.
type ContributionCalendar struct {
	Login              string         `json:"login"`
	TotalContributions int            `json:"total_contributions"`
	Weeks              []CalendarWeek `json:"weeks"`
}

type CalendarWeek struct {
	Days []CalendarDay `json:"days"`
}

type CalendarDay struct {
	Date    string `json:"date"`
	Weekday int    `json:"weekday"`
	Count   int    `json:"count"`
}
