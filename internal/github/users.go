package github

import (
	"context"

	"github.com/kevinmichaelchen/repo-analyzer/internal/apperr"
	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
)

const userRepositoriesQuery = `
query($login: String!, $first: Int!) {
  user(login: $login) {
    repositories(first: $first, ownerAffiliations: OWNER, privacy: PUBLIC, orderBy: {field: UPDATED_AT, direction: DESC}) {
      nodes {
        owner { login }
        name
        description
        url
        stargazerCount
        forkCount
        isFork
        updatedAt
        primaryLanguage { name }
      }
    }
  }
}
`

const contributionCalendarQuery = `
query($login: String!) {
  user(login: $login) {
    login
    contributionsCollection {
      contributionCalendar {
        totalContributions
        weeks {
          contributionDays { date weekday contributionCount }
        }
      }
    }
  }
}
`

const userRepositoriesPageSize = 100

// FetchUserRepositories lists the user's public repositories, most recently
// updated first.
func (c *Client) FetchUserRepositories(ctx context.Context, login string) ([]models.RepositorySummary, error) {
	const op = "fetch user repositories"
	var data struct {
		User *struct {
			Repositories struct {
				Nodes []struct {
					Owner *struct {
						Login string `json:"login"`
					} `json:"owner"`
					Name            string  `json:"name"`
					Description     *string `json:"description"`
					URL             string  `json:"url"`
					StargazerCount  int     `json:"stargazerCount"`
					ForkCount       int     `json:"forkCount"`
					IsFork          bool    `json:"isFork"`
					UpdatedAt       string  `json:"updatedAt"`
					PrimaryLanguage *struct {
						Name string `json:"name"`
					} `json:"primaryLanguage"`
				} `json:"nodes"`
			} `json:"repositories"`
		} `json:"user"`
	}
	vars := map[string]any{"login": login, "first": userRepositoriesPageSize}
	if err := c.query(ctx, op, userRepositoriesQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.User == nil {
		return nil, apperr.Newf(apperr.KindNotFound, op, "user %q not found", login)
	}

	out := make([]models.RepositorySummary, 0, len(data.User.Repositories.Nodes))
	for _, n := range data.User.Repositories.Nodes {
		if n.Owner == nil || n.Owner.Login == "" || n.Name == "" {
			return nil, apperr.Newf(apperr.KindMalformed, op, "repository of %q missing owner or name", login)
		}
		r := models.RepositorySummary{
			Owner:       n.Owner.Login,
			Name:        n.Name,
			Description: nonEmpty(n.Description),
			URL:         n.URL,
			Stars:       n.StargazerCount,
			Forks:       n.ForkCount,
			IsFork:      n.IsFork,
			UpdatedAt:   n.UpdatedAt,
		}
		if n.PrimaryLanguage != nil && n.PrimaryLanguage.Name != "" {
			lang := n.PrimaryLanguage.Name
			r.PrimaryLanguage = &lang
		}
		out = append(out, r)
	}
	return out, nil
}

// FetchContributionCalendar returns the user's contribution calendar for
// the last year.
func (c *Client) FetchContributionCalendar(ctx context.Context, login string) (*models.ContributionCalendar, error) {
	const op = "fetch contribution calendar"
	var data struct {
		User *struct {
			Login                   string `json:"login"`
			ContributionsCollection struct {
				ContributionCalendar struct {
					TotalContributions int `json:"totalContributions"`
					Weeks              []struct {
						ContributionDays []struct {
							Date              string `json:"date"`
							Weekday           int    `json:"weekday"`
							ContributionCount int    `json:"contributionCount"`
						} `json:"contributionDays"`
					} `json:"weeks"`
				} `json:"contributionCalendar"`
			} `json:"contributionsCollection"`
		} `json:"user"`
	}
	if err := c.query(ctx, op, contributionCalendarQuery, map[string]any{"login": login}, &data); err != nil {
		return nil, err
	}
	if data.User == nil {
		return nil, apperr.Newf(apperr.KindNotFound, op, "user %q not found", login)
	}

	cal := data.User.ContributionsCollection.ContributionCalendar
	out := &models.ContributionCalendar{
		Login:              data.User.Login,
		TotalContributions: cal.TotalContributions,
		Weeks:              make([]models.CalendarWeek, 0, len(cal.Weeks)),
	}
	for _, w := range cal.Weeks {
		week := models.CalendarWeek{Days: make([]models.CalendarDay, 0, len(w.ContributionDays))}
		for _, d := range w.ContributionDays {
			if d.Date == "" {
				return nil, apperr.Newf(apperr.KindMalformed, op, "calendar day of %q missing date", login)
			}
			week.Days = append(week.Days, models.CalendarDay{Date: d.Date, Weekday: d.Weekday, Count: d.ContributionCount})
		}
		out.Weeks = append(out.Weeks, week)
	}
	return out, nil
}
