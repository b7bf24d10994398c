package models

const (
	DescriptionFromRepository = "repository"
	DescriptionGenerated      = "generated"
)

// BranchError marks one half of an analysis as unavailable.
type BranchError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// AnalysisResult is the merged response for a single analyze request.
type AnalysisResult struct {
	Repository          *RepositoryDetails   `json:"repository,omitempty"`
	Description         *string              `json:"description,omitempty"`
	DescriptionSource   string               `json:"description_source,omitempty"`
	ProjectAnalysis     *ProjectAnalysis     `json:"project_analysis"`
	Contributions       *UserContributionRaw `json:"contributions"`
	ContributionSummary *ContributionSummary `json:"contribution_summary"`

	IsEmpty          bool `json:"is_empty"`
	HasContributions bool `json:"has_contributions"`

	ProjectAnalysisError *BranchError `json:"project_analysis_error,omitempty"`
	ContributionError    *BranchError `json:"contribution_error,omitempty"`
	Cached               bool         `json:"cached"`
}

// Degraded reports whether either branch failed.
func (r *AnalysisResult) Degraded() bool {
	return r.ProjectAnalysisError != nil || r.ContributionError != nil
}
