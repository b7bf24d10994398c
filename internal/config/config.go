package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	SurrealURL  string
	SurrealNS   string
	SurrealDB   string
	SurrealUser string
	SurrealPass string

	GitHubToken      string
	GitHubGraphQLURL string
	GitHubTimeout    time.Duration

	LLMProvider string
	LLMBaseURL  string
	LLMAPIKey   string
	LLMModel    string
	LLMTimeout  time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	MaxContextChars int

	CacheTTL  time.Duration
	CacheSize int

	ListenAddr  string
	CORSOrigins []string
	LogLevel    slog.Level
}

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

func Load() *Config {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults for
// missing or unparsable values.
func FromEnv(getenv func(string) string) *Config {
	cfg := &Config{
		SurrealURL:  getenv("SURREAL_URL"),
		SurrealNS:   getenv("SURREAL_NS"),
		SurrealDB:   getenv("SURREAL_DB"),
		SurrealUser: getenv("SURREAL_USER"),
		SurrealPass: getenv("SURREAL_PASS"),

		GitHubToken:      getenv("GITHUB_TOKEN"),
		GitHubGraphQLURL: getenv("GITHUB_GRAPHQL_URL"),
		GitHubTimeout:    duration(getenv("GITHUB_TIMEOUT"), 20*time.Second),

		LLMProvider: strings.ToLower(strings.TrimSpace(getenv("LLM_PROVIDER"))),
		LLMBaseURL:  getenv("LLM_BASE_URL"),
		LLMAPIKey:   getenv("LLM_API_KEY"),
		LLMModel:    getenv("LLM_MODEL"),
		LLMTimeout:  duration(getenv("LLM_TIMEOUT"), 60*time.Second),

		RetryAttempts:  integer(getenv("RETRY_ATTEMPTS"), 3),
		RetryBaseDelay: duration(getenv("RETRY_BASE_DELAY"), 500*time.Millisecond),
		RetryMaxDelay:  duration(getenv("RETRY_MAX_DELAY"), 8*time.Second),

		MaxContextChars: integer(getenv("MAX_CONTEXT_CHARS"), 12000),

		CacheTTL:  duration(getenv("CACHE_TTL"), time.Hour),
		CacheSize: integer(getenv("CACHE_SIZE"), 512),

		ListenAddr:  getenv("LISTEN_ADDR"),
		CORSOrigins: list(getenv("CORS_ORIGINS")),
		LogLevel:    level(getenv("LOG_LEVEL")),
	}

	// The SDK appends /rpc automatically
	cfg.SurrealURL = strings.TrimSuffix(cfg.SurrealURL, "/rpc")
	cfg.SurrealURL = strings.TrimSuffix(cfg.SurrealURL, "/")

	if cfg.GitHubGraphQLURL == "" {
		cfg.GitHubGraphQLURL = "https://api.github.com/graphql"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderOpenAI
	}
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = getenv("OPENAI_API_KEY")
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = defaultModel(cfg.LLMProvider)
	}
	if cfg.LLMBaseURL == "" && cfg.LLMProvider == ProviderOpenAI {
		cfg.LLMBaseURL = "https://api.openai.com/v1"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8000"
	}

	return cfg
}

// CacheEnabled reports whether the SurrealDB cache tier is configured.
func (c *Config) CacheEnabled() bool { return c.SurrealURL != "" }

func defaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderGemini:
		return "gemini-2.0-flash"
	case ProviderOllama:
		return "llama3.2"
	default:
		return "gpt-4o-mini"
	}
}

func duration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil && d > 0 {
		return d
	}
	return def
}

func integer(s string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && n > 0 {
		return n
	}
	return def
}

func list(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func level(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
