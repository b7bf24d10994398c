package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kevinmichaelchen/repo-analyzer/internal/apperr"
)

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// SendJSON sends a JSON response with the given status code.
func SendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func SendSuccess(w http.ResponseWriter, data any) {
	SendJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func SendError(w http.ResponseWriter, message string, status int) {
	SendJSON(w, status, Response{Success: false, Message: message})
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAccessDenied:
		return http.StatusForbidden
	case apperr.KindUpstreamUnavailable, apperr.KindRateLimited, apperr.KindTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type handler struct {
	gh     GitHub
	svc    Analyzer
	logger *slog.Logger
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// Client went away; nothing to write to.
		return
	}
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	}
	SendJSON(w, status, Response{Success: false, Message: err.Error(), Kind: string(apperr.KindOf(err))})
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	profile, err := h.gh.FetchUserProfile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	SendSuccess(w, profile)
}

func (h *handler) getUserRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.gh.FetchUserRepositories(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	SendSuccess(w, repos)
}

func (h *handler) getContributionCalendar(w http.ResponseWriter, r *http.Request) {
	cal, err := h.gh.FetchContributionCalendar(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	SendSuccess(w, cal)
}

func (h *handler) getRepository(w http.ResponseWriter, r *http.Request) {
	details, err := h.gh.FetchRepositoryDetails(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	SendSuccess(w, details)
}

func (h *handler) getDirectory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.gh.FetchDirectoryTree(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "name"), r.URL.Query().Get("path"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	SendSuccess(w, entries)
}

func (h *handler) getFile(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		SendError(w, "path is required", http.StatusBadRequest)
		return
	}
	fc, err := h.gh.FetchFileContent(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "name"), path)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	SendSuccess(w, fc)
}

func (h *handler) getContributionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gh.FetchContributionStats(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	SendSuccess(w, stats)
}

// getContributions returns raw activity with no generated summary.
func (h *handler) getContributions(w http.ResponseWriter, r *http.Request) {
	raw, err := h.svc.Contributions(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "name"), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	SendSuccess(w, raw)
}

func (h *handler) analyze(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Analyze(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "repo"), r.URL.Query().Get("username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	SendSuccess(w, res)
}

func (h *handler) analyzeContributions(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.AnalyzeContributions(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "repo"), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	SendSuccess(w, res)
}
