package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

type ProjectType string

const (
	ProjectTypeWebApp    ProjectType = "WebApp"
	ProjectTypeAPI       ProjectType = "API"
	ProjectTypeLibrary   ProjectType = "Library"
	ProjectTypeCLI       ProjectType = "CLI"
	ProjectTypeMobileApp ProjectType = "MobileApp"
	ProjectTypeOther     ProjectType = "Other"
)

var ProjectTypes = []ProjectType{
	ProjectTypeWebApp, ProjectTypeAPI, ProjectTypeLibrary,
	ProjectTypeCLI, ProjectTypeMobileApp, ProjectTypeOther,
}

func (t ProjectType) Valid() bool {
	for _, v := range ProjectTypes {
		if t == v {
			return true
		}
	}
	return false
}

const (
	MinComplexity = 1
	MaxComplexity = 10
)

type Technology struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ProjectAnalysis is the model's classification of a repository.
type ProjectAnalysis struct {
	ProjectType          ProjectType  `json:"project_type"`
	Technologies         []Technology `json:"technologies"`
	GeneratedDescription *string      `json:"generated_description"`
	KeyFeatures          []string     `json:"key_features"`
	ComplexityScore      int          `json:"complexity_score"`
}

// Validate rejects values outside the allowed vocabulary or ranges.
// Nothing is clamped.
func (a *ProjectAnalysis) Validate() error {
	var errs []error
	if !a.ProjectType.Valid() {
		errs = append(errs, fmt.Errorf("project_type %q is not one of %v", a.ProjectType, ProjectTypes))
	}
	for i, t := range a.Technologies {
		if strings.TrimSpace(t.Name) == "" {
			errs = append(errs, fmt.Errorf("technologies[%d]: empty name", i))
		}
		if math.IsNaN(t.Confidence) || t.Confidence < 0 || t.Confidence > 1 {
			errs = append(errs, fmt.Errorf("technologies[%d]: confidence %v outside [0,1]", i, t.Confidence))
		}
	}
	for i, f := range a.KeyFeatures {
		if strings.TrimSpace(f) == "" {
			errs = append(errs, fmt.Errorf("key_features[%d]: empty", i))
		}
	}
	if a.ComplexityScore < MinComplexity || a.ComplexityScore > MaxComplexity {
		errs = append(errs, fmt.Errorf("complexity_score %d outside [%d,%d]", a.ComplexityScore, MinComplexity, MaxComplexity))
	}
	return errors.Join(errs...)
}
