package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kevinmichaelchen/repo-analyzer/internal/apperr"
	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
)

// ConfigFiles are the manifest files fetched alongside repository details.
// They are the most reliable signal for framework detection.
var ConfigFiles = []string{
	"package.json",
	"go.mod",
	"requirements.txt",
	"pyproject.toml",
	"Cargo.toml",
	"pom.xml",
	"build.gradle",
	"composer.json",
	"Gemfile",
	"pubspec.yaml",
	"Dockerfile",
	"docker-compose.yml",
}

var readmeNames = []string{"README.md", "readme.md", "README.rst", "README"}

var repositoryDetailsQuery = buildDetailsQuery()

func buildDetailsQuery() string {
	var b strings.Builder
	b.WriteString(`
query($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    owner { login }
    name
    description
    url
    stargazerCount
    primaryLanguage { name }
    languages(first: 10, orderBy: {field: SIZE, direction: DESC}) {
      edges { size node { name } }
    }
    repositoryTopics(first: 20) {
      nodes { topic { name } }
    }
    defaultBranchRef { name }
    tree: object(expression: "HEAD:") {
      ... on Tree { entries { name type path } }
    }
`)
	for i, name := range readmeNames {
		fmt.Fprintf(&b, "    readme%d: object(expression: %q) { ... on Blob { text } }\n", i, "HEAD:"+name)
	}
	for i, name := range ConfigFiles {
		fmt.Fprintf(&b, "    config%d: object(expression: %q) { ... on Blob { text } }\n", i, "HEAD:"+name)
	}
	b.WriteString("  }\n}\n")
	return b.String()
}

const directoryTreeQuery = `
query($owner: String!, $name: String!, $expression: String!) {
  repository(owner: $owner, name: $name) {
    object(expression: $expression) {
      ... on Tree { entries { name type path } }
    }
  }
}
`

const fileContentQuery = `
query($owner: String!, $name: String!, $expression: String!) {
  repository(owner: $owner, name: $name) {
    object(expression: $expression) {
      ... on Blob { text byteSize isBinary }
    }
  }
}
`

// --- raw records ---

type treeNode struct {
	Entries []models.TreeEntry `json:"entries"`
}

type blobNode struct {
	Text     *string `json:"text"`
	ByteSize int     `json:"byteSize"`
	IsBinary bool    `json:"isBinary"`
}

type repoDetailsNode struct {
	Owner *struct {
		Login string `json:"login"`
	} `json:"owner"`
	Name            string  `json:"name"`
	Description     *string `json:"description"`
	URL             string  `json:"url"`
	StargazerCount  int     `json:"stargazerCount"`
	PrimaryLanguage *struct {
		Name string `json:"name"`
	} `json:"primaryLanguage"`
	Languages struct {
		Edges []struct {
			Size int `json:"size"`
			Node struct {
				Name string `json:"name"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"languages"`
	RepositoryTopics struct {
		Nodes []struct {
			Topic struct {
				Name string `json:"name"`
			} `json:"topic"`
		} `json:"nodes"`
	} `json:"repositoryTopics"`
	DefaultBranchRef *struct {
		Name string `json:"name"`
	} `json:"defaultBranchRef"`
	Tree *treeNode `json:"tree"`
}

// FetchRepositoryDetails returns metadata, the root tree, the README and any
// known config files for a repository.
func (c *Client) FetchRepositoryDetails(ctx context.Context, owner, name string) (*models.RepositoryDetails, error) {
	const op = "fetch repository details"
	var data struct {
		Repository json.RawMessage `json:"repository"`
	}
	vars := map[string]any{"owner": owner, "name": name}
	if err := c.query(ctx, op, repositoryDetailsQuery, vars, &data); err != nil {
		return nil, err
	}
	if isNull(data.Repository) {
		return nil, apperr.Newf(apperr.KindNotFound, op, "repository %s/%s not found", owner, name)
	}
	return nodeToDetails(data.Repository)
}

// FetchDirectoryTree lists the entries at path on the default branch.
// An empty path lists the root.
func (c *Client) FetchDirectoryTree(ctx context.Context, owner, name, path string) ([]models.TreeEntry, error) {
	const op = "fetch directory tree"
	var data struct {
		Repository *struct {
			Object *treeNode `json:"object"`
		} `json:"repository"`
	}
	vars := map[string]any{"owner": owner, "name": name, "expression": "HEAD:" + strings.Trim(path, "/")}
	if err := c.query(ctx, op, directoryTreeQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Repository == nil {
		return nil, apperr.Newf(apperr.KindNotFound, op, "repository %s/%s not found", owner, name)
	}
	if data.Repository.Object == nil {
		return nil, apperr.Newf(apperr.KindNotFound, op, "path %q not found in %s/%s", path, owner, name)
	}
	return mapEntries(op, data.Repository.Object.Entries)
}

// FetchFileContent returns the text of a single file on the default branch.
func (c *Client) FetchFileContent(ctx context.Context, owner, name, path string) (*models.FileContent, error) {
	const op = "fetch file content"
	var data struct {
		Repository *struct {
			Object *blobNode `json:"object"`
		} `json:"repository"`
	}
	path = strings.Trim(path, "/")
	vars := map[string]any{"owner": owner, "name": name, "expression": "HEAD:" + path}
	if err := c.query(ctx, op, fileContentQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Repository == nil {
		return nil, apperr.Newf(apperr.KindNotFound, op, "repository %s/%s not found", owner, name)
	}
	blob := data.Repository.Object
	if blob == nil {
		return nil, apperr.Newf(apperr.KindNotFound, op, "file %q not found in %s/%s", path, owner, name)
	}
	fc := &models.FileContent{Path: path, ByteSize: blob.ByteSize, Binary: blob.IsBinary}
	if blob.Text != nil {
		fc.Text = *blob.Text
	}
	return fc, nil
}

// --- mapping ---

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func nodeToDetails(raw json.RawMessage) (*models.RepositoryDetails, error) {
	const op = "map repository details"

	var n repoDetailsNode
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, apperr.New(apperr.KindMalformed, op, err)
	}
	if n.Owner == nil || n.Owner.Login == "" {
		return nil, apperr.New(apperr.KindMalformed, op, errors.New("missing owner.login"))
	}
	if n.Name == "" {
		return nil, apperr.New(apperr.KindMalformed, op, errors.New("missing name"))
	}

	// Aliased blobs are decoded separately since their keys are generated.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apperr.New(apperr.KindMalformed, op, err)
	}
	blob := func(key string) *blobNode {
		var b *blobNode
		if err := json.Unmarshal(fields[key], &b); err != nil {
			return nil
		}
		return b
	}

	d := &models.RepositoryDetails{
		Owner:       n.Owner.Login,
		Name:        n.Name,
		Description: nonEmpty(n.Description),
		URL:         n.URL,
		Stars:       n.StargazerCount,
		Topics:      []string{},
		Languages:   []models.Language{},
		RootTree:    []models.TreeEntry{},
		ConfigFiles: map[string]string{},
	}
	if n.PrimaryLanguage != nil && n.PrimaryLanguage.Name != "" {
		d.PrimaryLanguage = &n.PrimaryLanguage.Name
	}
	for _, e := range n.Languages.Edges {
		if e.Node.Name == "" {
			continue
		}
		d.Languages = append(d.Languages, models.Language{Name: e.Node.Name, Bytes: e.Size})
	}
	for _, t := range n.RepositoryTopics.Nodes {
		if t.Topic.Name != "" {
			d.Topics = append(d.Topics, t.Topic.Name)
		}
	}
	if n.DefaultBranchRef != nil && n.DefaultBranchRef.Name != "" {
		d.DefaultBranch = &n.DefaultBranchRef.Name
	}
	if n.Tree != nil {
		entries, err := mapEntries(op, n.Tree.Entries)
		if err != nil {
			return nil, err
		}
		d.RootTree = entries
	}
	for i := range readmeNames {
		if b := blob(fmt.Sprintf("readme%d", i)); b != nil && b.Text != nil && *b.Text != "" {
			text := *b.Text
			d.Readme = &text
			break
		}
	}
	for i, file := range ConfigFiles {
		if b := blob(fmt.Sprintf("config%d", i)); b != nil && b.Text != nil {
			d.ConfigFiles[file] = *b.Text
		}
	}
	return d, nil
}

func mapEntries(op string, in []models.TreeEntry) ([]models.TreeEntry, error) {
	out := make([]models.TreeEntry, 0, len(in))
	for i, e := range in {
		if e.Name == "" || e.Type == "" {
			return nil, apperr.Newf(apperr.KindMalformed, op, "tree entry %d missing name or type", i)
		}
		if e.Path == "" {
			e.Path = e.Name
		}
		out = append(out, e)
	}
	return out, nil
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
