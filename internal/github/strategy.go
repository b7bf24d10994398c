package github

import (
	"context"

	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
)

type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// fetchAuthoredCommits pages forward through an author's commit history.
//
// The connection is ordered newest first, so stopping after maxCommitPages
// keeps the most recent activity. The returned total is the count GitHub
// reports for the whole history, which may exceed len(commits).
func (c *Client) fetchAuthoredCommits(ctx context.Context, owner, name, authorID string) ([]models.Commit, int, error) {
	var all []models.Commit
	var cursor *string
	total := 0

	for page := 0; page < maxCommitPages; page++ {
		p, err := c.fetchCommitPage(ctx, owner, name, authorID, cursor)
		if err != nil {
			return nil, 0, err
		}

		all = append(all, p.Commits...)
		total = p.TotalCount

		if !p.PageInfo.HasNextPage || p.PageInfo.EndCursor == "" {
			break
		}
		end := p.PageInfo.EndCursor
		cursor = &end
	}

	if all == nil {
		all = []models.Commit{}
	}
	return all, total, nil
}
