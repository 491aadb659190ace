// Package http is the ops API: inspect and change the live game server
// connections of this worker.
package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"

	"github.com/gettakaro/takaro-worker/internal/domain/connector"
	"github.com/gettakaro/takaro-worker/internal/domain/registry"
	"github.com/gettakaro/takaro-worker/internal/service"
	"github.com/gettakaro/takaro-worker/internal/service/dto"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	gameservers service.GameServers
	logger      *slog.Logger
}

func NewHandler(gameservers service.GameServers, logger *slog.Logger) *Handler {
	return &Handler{
		gameservers: gameservers,
		logger:      logger,
	}
}

// Routes builds the router. origins feeds CORS; token guards /v1.
func (h *Handler) Routes(origins []string, token string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(NewTokenAuth(token))

		r.Get("/gameservers", h.ListGameServers)
		r.Delete("/gameservers/{id}", h.RemoveGameServer)
		r.Route("/domains/{domainId}", func(r chi.Router) {
			r.Post("/gameservers", h.AddGameServer)
			r.Delete("/ratelimit-cache", h.ClearRateLimitCache)
		})
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) ListGameServers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dto.FromStatuses(h.gameservers.List()))
}

func (h *Handler) AddGameServer(w http.ResponseWriter, r *http.Request) {
	domainID := chi.URLParam(r, "domainId")

	var req dto.AddGameServerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.gameservers.Add(r.Context(), domainID, req.ToDomain()); err != nil {
		if errors.Is(err, connector.ErrUnknownGameType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, registry.ErrSuperseded) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		// the connection is registered but degraded
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) RemoveGameServer(w http.ResponseWriter, r *http.Request) {
	if err := h.gameservers.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearRateLimitCache(w http.ResponseWriter, r *http.Request) {
	h.gameservers.ClearRateLimitCache(chi.URLParam(r, "domainId"))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}
