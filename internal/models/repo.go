package models

type Language struct {
	Name  string `json:"name"`
	Bytes int    `json:"bytes"`
}

type TreeEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

// RepositoryDetails is the metadata and root file structure of a repository.
type RepositoryDetails struct {
	Owner           string            `json:"owner"`
	Name            string            `json:"name"`
	Description     *string           `json:"description"`
	URL             string            `json:"url"`
	Stars           int               `json:"stars"`
	PrimaryLanguage *string           `json:"primary_language"`
	Languages       []Language        `json:"languages"`
	Topics          []string          `json:"topics"`
	DefaultBranch   *string           `json:"default_branch"`
	RootTree        []TreeEntry       `json:"root_tree"`
	Readme          *string           `json:"readme"`
	ConfigFiles     map[string]string `json:"config_files"`
}

func (d *RepositoryDetails) FullName() string { return d.Owner + "/" + d.Name }

// IsEmpty reports whether the repository has no default branch or an empty
// root tree. Empty repositories are never sent to the model.
func (d *RepositoryDetails) IsEmpty() bool {
	return d.DefaultBranch == nil || len(d.RootTree) == 0
}

// UserProfile is the public profile of a GitHub user.
type UserProfile struct {
	ID        string  `json:"id"`
	Login     string  `json:"login"`
	Name      *string `json:"name"`
	Bio       *string `json:"bio"`
	AvatarURL string  `json:"avatar_url"`
	URL       string  `json:"url"`
	Company   *string `json:"company"`
	Location  *string `json:"location"`
	Followers int     `json:"followers"`
	Following int     `json:"following"`
	Repos     int     `json:"public_repos"`
}

type FileContent struct {
	Path     string `json:"path"`
	Text     string `json:"text"`
	ByteSize int    `json:"byte_size"`
	Binary   bool   `json:"binary"`
}

// RepositorySummary is one entry of a user's repository listing.
type RepositorySummary struct {
	Owner           string  `json:"owner"`
	Name            string  `json:"name"`
	Description     *string `json:"description"`
	URL             string  `json:"url"`
	Stars           int     `json:"stars"`
	Forks           int     `json:"forks"`
	PrimaryLanguage *string `json:"primary_language"`
	IsFork          bool    `json:"is_fork"`
	UpdatedAt       string  `json:"updated_at"`
}
