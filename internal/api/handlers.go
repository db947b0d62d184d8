package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/triagestack/triage-engine/internal/cache"
	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/services"
	"github.com/triagestack/triage-engine/internal/store"
	"github.com/triagestack/triage-engine/internal/tiers"
	"github.com/triagestack/triage-engine/internal/utils"
)

const maxRequestBytes = 1 << 20

// Handler serves the triage HTTP API.
type Handler struct {
	logger      *slog.Logger
	service     *services.TriageService
	tierClients []tiers.Client
	healthCache *cache.TTL
	healthTTL   time.Duration
}

// NewHandler constructs the API handler. Tier clients are probed by the
// health endpoint, with results memoized for healthTTL.
func NewHandler(logger *slog.Logger, service *services.TriageService, tierClients []tiers.Client, healthTTL time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if healthTTL <= 0 {
		healthTTL = 10 * time.Second
	}
	return &Handler{
		logger:      logger,
		service:     service,
		tierClients: tierClients,
		healthCache: cache.NewTTL(),
		healthTTL:   healthTTL,
	}
}

// Router assembles the route tree.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Timeout(5 * time.Minute)).Post("/triage", h.handleTriage)
		// No middleware timeout on the stream; a session may legitimately
		// run for minutes while the client watches events arrive.
		r.Get("/triage/stream", h.handleTriageStream)
		r.Get("/sessions", h.handleListSessions)
		r.Get("/sessions/{id}", h.handleGetSession)
	})

	return r
}

// triageRequest is the submission payload: an incident plus an optional
// routing hint for the tool tier.
type triageRequest struct {
	Incident models.Incident     `json:"incident"`
	Tool     *models.ToolRequest `json:"tool,omitempty"`
}

func (req triageRequest) scenario() models.Scenario {
	return models.Scenario{Incident: req.Incident, Tool: req.Tool}
}

func (h *Handler) handleTriage(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Triage(r.Context(), req.scenario())
	if err != nil {
		if utils.IsKind(err, utils.KindValidation) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("triage failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "triage failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessions, err := h.service.Sessions(r.Context(), limit)
	if err != nil {
		h.logger.Error("list sessions failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []models.ProcessingResult{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.service.Session(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("get session failed", slog.String("session_id", id), slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type tierHealth struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	statuses := make(map[string]tierHealth, len(h.tierClients))
	allHealthy := true
	for _, client := range h.tierClients {
		health := h.probe(ctx, client)
		statuses[string(client.Name())] = tierHealth{Healthy: health.Healthy, Detail: health.Detail}
		if !health.Healthy {
			allHealthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !allHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"status": status,
		"tiers":  statuses,
		"time":   time.Now().UTC(),
	})
}

// probe memoizes tier health checks so the endpoint does not hammer backends.
func (h *Handler) probe(ctx context.Context, client tiers.Client) tiers.Health {
	key := "health:" + string(client.Name())
	if cached, ok := h.healthCache.Get(key); ok {
		return cached.(tiers.Health)
	}
	health := client.HealthCheck(ctx)
	h.healthCache.Set(key, health, h.healthTTL)
	return health
}

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBytes))
	if err := dec.Decode(out); err != nil {
		return errors.New("invalid json: " + err.Error())
	}
	return nil
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Warn("encode response", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}
