package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kevinmichaelchen/repo-analyzer/internal/apperr"
	"github.com/kevinmichaelchen/repo-analyzer/internal/retry"
)

const DefaultEndpoint = "https://api.github.com/graphql"

// Client is a thin wrapper around the GitHub GraphQL API. Every request is
// bounded by its own timeout and retried on rate limits and transient
// transport failures.
type Client struct {
	token      string
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	retry      retry.Policy
}

type Option func(*Client)

func WithEndpoint(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.endpoint = url
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTimeout bounds each individual attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		endpoint:   DefaultEndpoint,
		httpClient: http.DefaultClient,
		timeout:    20 * time.Second,
		retry:      retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// query runs a GraphQL operation with retries and decodes data into out.
func (c *Client) query(ctx context.Context, op, query string, variables map[string]any, out any) error {
	data, err := retry.Value(ctx, c.retry, func(ctx context.Context) (json.RawMessage, error) {
		return c.doGraphQL(ctx, op, query, variables)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.New(apperr.KindMalformed, op, fmt.Errorf("parsing response: %w", err))
	}
	return nil
}

func (c *Client) doGraphQL(ctx context.Context, op, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.New(apperr.KindTransport, op, fmt.Errorf("executing request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.New(apperr.KindTransport, op, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp, respBody)
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, apperr.New(apperr.KindMalformed, op, fmt.Errorf("parsing GraphQL response: %w", err))
	}
	if len(gqlResp.Errors) > 0 {
		return nil, graphqlErr(op, gqlResp.Errors[0])
	}

	return gqlResp.Data, nil
}

func statusError(op string, resp *http.Response, body []byte) error {
	msg := fmt.Errorf("GitHub API returned %d: %s", resp.StatusCode, truncate(string(body), 300))
	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
	exhausted := resp.Header.Get("X-RateLimit-Remaining") == "0"
	if exhausted && retryAfter == 0 {
		retryAfter = untilReset(resp.Header.Get("X-RateLimit-Reset"), time.Now())
	}
	limited := exhausted || retryAfter > 0

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && limited:
		return &apperr.Error{Kind: apperr.KindRateLimited, Op: op, Err: msg, RetryAfter: retryAfter}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return apperr.New(apperr.KindAccessDenied, op, msg)
	case resp.StatusCode == http.StatusNotFound:
		return apperr.New(apperr.KindNotFound, op, msg)
	case resp.StatusCode >= 500:
		return apperr.New(apperr.KindTransport, op, msg)
	default:
		return apperr.New(apperr.KindMalformed, op, msg)
	}
}

func graphqlErr(op string, e graphqlError) error {
	msg := errors.New("GraphQL error: " + e.Message)
	switch strings.ToUpper(e.Type) {
	case "NOT_FOUND":
		return apperr.New(apperr.KindNotFound, op, msg)
	case "FORBIDDEN", "INSUFFICIENT_SCOPES":
		return apperr.New(apperr.KindAccessDenied, op, msg)
	case "RATE_LIMITED":
		return apperr.New(apperr.KindRateLimited, op, msg)
	case "SERVICE_UNAVAILABLE", "INTERNAL":
		return apperr.New(apperr.KindTransport, op, msg)
	default:
		return apperr.New(apperr.KindMalformed, op, msg)
	}
}

func parseRetryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// untilReset converts X-RateLimit-Reset, a unix timestamp in seconds, into
// the wait from now. A past or unparseable reset yields zero.
func untilReset(v string, now time.Time) time.Duration {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0
	}
	if d := time.Unix(secs, 0).Sub(now); d > 0 {
		return d
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
