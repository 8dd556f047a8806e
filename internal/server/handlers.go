// Package server exposes the import entry points. It is deliberately thin:
// dashboards, auth and change-feed fan-out live outside this service.
package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"chesswatch/internal/domain"
	"chesswatch/internal/repository"
	"chesswatch/internal/service"

	"github.com/rs/zerolog"
)

type ImportServer struct {
	importer *service.Importer
	jobs     *service.JobRegistry
	players  *repository.PlayerRepository
	games    *repository.GameRepository
	logger   zerolog.Logger
}

func NewImportServer(
	importer *service.Importer,
	jobs *service.JobRegistry,
	players *repository.PlayerRepository,
	games *repository.GameRepository,
	logger zerolog.Logger,
) *ImportServer {
	return &ImportServer{importer: importer, jobs: jobs, players: players, games: games, logger: logger}
}

func (s *ImportServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/import", s.handleImport)
	mux.HandleFunc("POST /api/v1/import/async", s.handleImportAsync)
	mux.HandleFunc("POST /api/v1/import/batch", s.handleImportBatch)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/v1/players/{platform}/{username}/games", s.handleListGames)
	mux.HandleFunc("GET /api/v1/healthz", s.handleHealthz)
}

type importRequest struct {
	Platform string `json:"platform"`
	Username string `json:"username"`
	Limit    int    `json:"limit"`
}

func (s *ImportServer) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := s.importer.ImportOne(r.Context(), domain.Platform(req.Platform), req.Username, req.Limit)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *ImportServer) handleImportAsync(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target := service.Target{
		Platform: domain.Platform(req.Platform),
		Username: req.Username,
		Limit:    req.Limit,
	}

	id, err := s.jobs.Enqueue(target)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

type batchRequest struct {
	Targets []importRequest `json:"targets"`
}

func (s *ImportServer) handleImportBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Targets) == 0 {
		writeError(w, http.StatusBadRequest, "targets must not be empty")
		return
	}

	targets := make([]service.Target, len(req.Targets))
	for i, t := range req.Targets {
		targets[i] = service.Target{
			Platform: domain.Platform(t.Platform),
			Username: t.Username,
			Limit:    t.Limit,
		}
	}

	reports := s.importer.ImportBatch(r.Context(), targets)
	writeJSON(w, http.StatusOK, map[string]any{"results": reports})
}

func (s *ImportServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	job, ok := s.jobs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *ImportServer) handleListGames(w http.ResponseWriter, r *http.Request) {
	platform := domain.Platform(r.PathValue("platform"))
	username := r.PathValue("username")
	if !platform.Valid() || username == "" {
		writeError(w, http.StatusBadRequest, "unknown platform or empty username")
		return
	}

	hash := domain.PlayerHash(platform, username)
	player, err := s.players.Get(r.Context(), hash)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "player not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("player_hash", hash).Msg("failed to load player")
		writeError(w, http.StatusInternalServerError, "failed to load player")
		return
	}

	games, err := s.games.ListByPlayer(r.Context(), hash, 100)
	if err != nil {
		s.logger.Error().Err(err).Str("player_hash", hash).Msg("failed to list games")
		writeError(w, http.StatusInternalServerError, "failed to list games")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"player": player,
		"games":  games,
	})
}

func (s *ImportServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrInvalidPlatform) ||
		errors.Is(err, domain.ErrInvalidLimit) ||
		errors.Is(err, domain.ErrEmptyUsername)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
