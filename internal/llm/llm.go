package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kevinmichaelchen/repo-analyzer/internal/apperr"
	"github.com/kevinmichaelchen/repo-analyzer/internal/config"
	"github.com/kevinmichaelchen/repo-analyzer/internal/retry"
)

// Completer sends a system and user prompt to a text-generation endpoint
// and returns the raw text. Callers own all JSON schema enforcement.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// New builds the configured provider wrapped with per-call timeouts and
// retries.
func New(ctx context.Context, cfg *config.Config) (Completer, error) {
	var (
		c   Completer
		err error
	)
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		c = NewOpenAI(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	case config.ProviderAnthropic:
		c = NewAnthropic(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	case config.ProviderGemini:
		c, err = NewGemini(ctx, cfg.LLMAPIKey, cfg.LLMModel)
	case config.ProviderOllama:
		c, err = NewOllama(cfg.LLMBaseURL, cfg.LLMModel)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(c, cfg.LLMTimeout, retry.Policy{
		MaxAttempts: cfg.RetryAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}), nil
}

// Retrying bounds each attempt with its own timeout and retries rate limits
// and transport failures.
type Retrying struct {
	next    Completer
	timeout time.Duration
	policy  retry.Policy
}

func WithRetry(next Completer, timeout time.Duration, policy retry.Policy) *Retrying {
	return &Retrying{next: next, timeout: timeout, policy: policy}
}

func (r *Retrying) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return retry.Value(ctx, r.policy, func(ctx context.Context) (string, error) {
		attemptCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		out, err := r.next.Complete(attemptCtx, systemPrompt, userPrompt)
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return "", apperr.New(apperr.KindTransport, "complete", err)
		}
		return out, err
	})
}

// classifyStatus maps a provider HTTP status to an error kind.
func classifyStatus(status int) apperr.Kind {
	switch {
	case status == 429:
		return apperr.KindRateLimited
	case status == 401 || status == 403:
		return apperr.KindAccessDenied
	case status >= 500:
		return apperr.KindTransport
	default:
		return apperr.KindGeneration
	}
}

// classify wraps a provider error with a kind. status is zero when the
// error carried no HTTP response, which is treated as a network failure.
func classify(ctx context.Context, op string, status int, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if status == 0 {
		return apperr.New(apperr.KindTransport, op, err)
	}
	return apperr.New(classifyStatus(status), op, err)
}

// StripCodeFences removes markdown code fences that some models wrap around JSON.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		// Remove opening fence (```json or ```)
		if i := strings.Index(s, "\n"); i != -1 {
			s = s[i+1:]
		}
		// Remove closing fence
		if i := strings.LastIndex(s, "```"); i != -1 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
