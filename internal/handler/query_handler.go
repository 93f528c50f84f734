package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"whozere-relay/internal/service"
)

const maxToolParams = 16 << 10

// Querier is implemented by service.QueryService.
type Querier interface {
	History(ctx context.Context, params service.HistoryParams) (string, error)
	Stats(ctx context.Context, params service.StatsParams) (string, error)
	Tools() []service.ToolDefinition
	Invoke(ctx context.Context, name string, rawParams []byte) (string, error)
}

// QueryHandler exposes login history and statistics reports.
type QueryHandler struct {
	querier Querier
	logger  *zap.Logger
}

func NewQueryHandler(querier Querier, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{querier: querier, logger: logger}
}

// ToolResult is the payload of a tool invocation.
type ToolResult struct {
	Name   string `json:"name"`
	Output string `json:"output"`
}

func (h *QueryHandler) RegisterRoutes(router chi.Router) {
	router.Route("/logins", func(r chi.Router) {
		r.Get("/history", h.History)
		r.Get("/stats", h.Stats)
	})
	router.Route("/tools", func(r chi.Router) {
		r.Get("/", h.ListTools)
		r.Post("/{name}", h.InvokeTool)
	})
}

// History handles GET /api/v1/logins/history?hostname=&username=&limit=
func (h *QueryHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := service.HistoryParams{
		Hostname: q.Get("hostname"),
		Username: q.Get("username"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: limit %q", service.ErrInvalidInput, raw), "Invalid limit")
			return
		}
		params.Limit = limit
	}

	out, err := h.querier.History(r.Context(), params)
	if err != nil {
		respondWithError(w, h.logger, getStatusCode(err), err, "Failed to query login history")
		return
	}
	respondWithText(w, http.StatusOK, out)
}

// Stats handles GET /api/v1/logins/stats?hostname=&period=
func (h *QueryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.querier.Stats(r.Context(), service.StatsParams{
		Hostname: q.Get("hostname"),
		Period:   q.Get("period"),
	})
	if err != nil {
		respondWithError(w, h.logger, getStatusCode(err), err, "Failed to compute login statistics")
		return
	}
	respondWithText(w, http.StatusOK, out)
}

func (h *QueryHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(h.querier.Tools(), ""))
}

// InvokeTool handles POST /api/v1/tools/{name} with a JSON parameter object as body.
func (h *QueryHandler) InvokeTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxToolParams))
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: %v", service.ErrInvalidInput, err), "Failed to read parameters")
		return
	}

	out, err := h.querier.Invoke(r.Context(), name, body)
	if err != nil {
		respondWithError(w, h.logger, getStatusCode(err), err, "Tool invocation failed")
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(ToolResult{Name: name, Output: out}, ""))
}
