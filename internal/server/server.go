// Package server exposes the GitHub lookups and the analysis pipeline over
// HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
)

// GitHub is the read-only lookup surface served directly.
type GitHub interface {
	FetchUserProfile(ctx context.Context, login string) (*models.UserProfile, error)
	FetchUserRepositories(ctx context.Context, login string) ([]models.RepositorySummary, error)
	FetchContributionCalendar(ctx context.Context, login string) (*models.ContributionCalendar, error)
	FetchRepositoryDetails(ctx context.Context, owner, name string) (*models.RepositoryDetails, error)
	FetchDirectoryTree(ctx context.Context, owner, name, path string) ([]models.TreeEntry, error)
	FetchFileContent(ctx context.Context, owner, name, path string) (*models.FileContent, error)
	FetchContributionStats(ctx context.Context, owner, name string) (*models.ContributionStats, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, owner, repo, username string) (*models.AnalysisResult, error)
	AnalyzeContributions(ctx context.Context, owner, repo, username string) (*models.AnalysisResult, error)
	Contributions(ctx context.Context, owner, repo, username string) (*models.UserContributionRaw, error)
}

// NewRouter creates a chi router with all routes configured.
func NewRouter(gh GitHub, svc Analyzer, corsOrigins []string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{gh: gh, svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(corsOrigins))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		SendSuccess(w, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/users/{username}", h.getUser)
		r.Get("/users/{username}/repositories", h.getUserRepositories)
		r.Get("/users/{username}/contribution-calendar", h.getContributionCalendar)

		r.Route("/repositories/{owner}/{name}", func(r chi.Router) {
			r.Get("/", h.getRepository)
			r.Get("/directory", h.getDirectory)
			r.Get("/file", h.getFile)
			r.Get("/contributors", h.getContributionStats)
			r.Get("/contributions/{username}", h.getContributions)
		})

		r.Get("/analyze/{owner}/{repo}", h.analyze)
		r.Get("/analyze/{owner}/{repo}/contributions/{username}", h.analyzeContributions)
	})

	return r
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func New(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
