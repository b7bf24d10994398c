package surrealdb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kevinmichaelchen/repo-analyzer/internal/cache"
	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
)

func TestRecordID(t *testing.T) {
	id := recordID(cache.Key{Owner: "my-org", Repo: "site.github.io", Fingerprint: "0a1b2c"})
	assert.Equal(t, "my_org__site_github_io__0a1b2c", id)

	assert.NotEqual(t,
		recordID(cache.Key{Owner: "o", Repo: "r", Fingerprint: "1"}),
		recordID(cache.Key{Owner: "o", Repo: "r", Fingerprint: "2"}))
}

func TestAnalysisDocOmitsMissingDescription(t *testing.T) {
	a := &models.ProjectAnalysis{
		ProjectType:     models.ProjectTypeAPI,
		Technologies:    []models.Technology{{Name: "Go", Confidence: 0.9}},
		ComplexityScore: 6,
	}
	doc := analysisDoc(a)
	assert.NotContains(t, doc, "generated_description")
	assert.Equal(t, "API", doc["project_type"])
	assert.Equal(t, []string{}, doc["key_features"])
	assert.Equal(t, []map[string]any{{"name": "Go", "confidence": 0.9}}, doc["technologies"])

	desc := "An API."
	a.GeneratedDescription = &desc
	assert.Equal(t, "An API.", analysisDoc(a)["generated_description"])
}

func TestToInt(t *testing.T) {
	assert.Equal(t, 3, toInt(float64(3)))
	assert.Equal(t, 4, toInt(int64(4)))
	assert.Equal(t, 5, toInt(uint64(5)))
	assert.Equal(t, 0, toInt("x"))
}
