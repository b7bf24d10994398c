// Package analysis drives the generation client for the two model-backed
// steps: project classification and contribution summaries.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/kevinmichaelchen/repo-analyzer/internal/apperr"
	"github.com/kevinmichaelchen/repo-analyzer/internal/llm"
	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
)

type ProjectAnalyzer struct {
	llm    llm.Completer
	logger *slog.Logger
}

func NewProjectAnalyzer(c llm.Completer, logger *slog.Logger) *ProjectAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectAnalyzer{llm: c, logger: logger}
}

// Analyze classifies a repository from its rendered context. Upstream
// failures surface as KindGeneration, bad output as KindParse.
func (a *ProjectAnalyzer) Analyze(ctx context.Context, repoContext string) (*models.ProjectAnalysis, error) {
	const op = "analyze project"
	a.logger.DebugContext(ctx, "requesting project analysis", "context_chars", len(repoContext))

	text, err := a.llm.Complete(ctx, projectSystemPrompt, repoContext)
	if err != nil {
		return nil, generationError(ctx, op, err)
	}
	return ParseProjectAnalysis(text)
}

type rawTechnology struct {
	Name       *string  `json:"name"`
	Confidence *float64 `json:"confidence"`
}

type rawProjectAnalysis struct {
	ProjectType          *string          `json:"project_type"`
	Technologies         *[]rawTechnology `json:"technologies"`
	GeneratedDescription *string          `json:"generated_description"`
	KeyFeatures          *[]string        `json:"key_features"`
	ComplexityScore      *json.Number     `json:"complexity_score"`
}

// ParseProjectAnalysis decodes and validates model output. Markdown code
// fences around the JSON are tolerated; anything else off-schema is a
// KindParse error.
func ParseProjectAnalysis(text string) (*models.ProjectAnalysis, error) {
	const op = "parse project analysis"

	var raw rawProjectAnalysis
	if err := json.Unmarshal([]byte(llm.StripCodeFences(text)), &raw); err != nil {
		return nil, apperr.New(apperr.KindParse, op, err)
	}

	var missing []string
	if raw.ProjectType == nil {
		missing = append(missing, "project_type")
	}
	if raw.Technologies == nil {
		missing = append(missing, "technologies")
	}
	if raw.KeyFeatures == nil {
		missing = append(missing, "key_features")
	}
	if raw.ComplexityScore == nil {
		missing = append(missing, "complexity_score")
	}
	if len(missing) > 0 {
		return nil, apperr.Newf(apperr.KindParse, op, "missing required keys: %s", strings.Join(missing, ", "))
	}

	score, err := integral(*raw.ComplexityScore)
	if err != nil {
		return nil, apperr.New(apperr.KindParse, op, fmt.Errorf("complexity_score: %w", err))
	}

	out := &models.ProjectAnalysis{
		ProjectType:     models.ProjectType(*raw.ProjectType),
		Technologies:    make([]models.Technology, 0, len(*raw.Technologies)),
		KeyFeatures:     append([]string{}, (*raw.KeyFeatures)...),
		ComplexityScore: score,
	}
	for i, t := range *raw.Technologies {
		if t.Name == nil || t.Confidence == nil {
			return nil, apperr.Newf(apperr.KindParse, op, "technologies[%d]: name and confidence are required", i)
		}
		out.Technologies = append(out.Technologies, models.Technology{Name: *t.Name, Confidence: *t.Confidence})
	}
	out.GeneratedDescription = raw.GeneratedDescription

	if err := out.Validate(); err != nil {
		return nil, apperr.New(apperr.KindParse, op, err)
	}
	return out, nil
}

func integral(n json.Number) (int, error) {
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s is not an integer", n)
	}
	if f < models.MinComplexity || f > models.MaxComplexity {
		return 0, fmt.Errorf("%s outside [%d,%d]", n, models.MinComplexity, models.MaxComplexity)
	}
	return int(f), nil
}

// generationError keeps caller cancellation visible and folds every other
// upstream failure into KindGeneration.
func generationError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.New(apperr.KindGeneration, op, err)
}
