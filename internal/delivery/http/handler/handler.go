package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/photo-resolver/internal/delivery/http/request"
	"github.com/user/photo-resolver/internal/delivery/http/response"
	"github.com/user/photo-resolver/internal/entity"
	"github.com/user/photo-resolver/internal/repository"
	"github.com/user/photo-resolver/internal/usecase"
	"github.com/user/photo-resolver/pkg/utils"
)

const maxBodyBytes = 1 << 20

// PoolStats reports the size of the current credential set.
type PoolStats interface {
	Size() int
}

type Handler struct {
	photoManager usecase.PhotoManager
	cache        repository.CacheRepository
	pool         PoolStats
	logger       *zap.Logger
}

func NewHandler(photoManager usecase.PhotoManager, cache repository.CacheRepository, pool PoolStats, logger *zap.Logger) *Handler {
	return &Handler{
		photoManager: photoManager,
		cache:        cache,
		pool:         pool,
		logger:       logger,
	}
}

func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req request.ResolveRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Store == nil || req.References == nil {
		h.writeJSONError(w, `"store" and a list of "references" are required`, http.StatusBadRequest)
		return
	}
	if !utils.ValidStore(*req.Store) {
		h.writeJSONError(w, "Invalid store", http.StatusBadRequest)
		return
	}

	results := h.photoManager.ResolveBatch(r.Context(), *req.Store, *req.References)
	if h.abandoned(r) {
		return
	}

	resp := response.ResolveResponse{
		Store:   *req.Store,
		Results: make([]response.ResolutionResult, len(results)),
	}
	for i, res := range results {
		resp.Results[i] = response.FromResult(res)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleLegacyPhotos serves the legacy {loja, referencias} -> {links} contract.
func (h *Handler) HandleLegacyPhotos(w http.ResponseWriter, r *http.Request) {
	var req request.LegacyPhotosRequest
	if err := h.decode(w, r, &req); err != nil || req.Loja == nil || *req.Loja == "" || req.Referencias == nil {
		h.writeJSONError(w, `Envie "loja" e um array de "referencias" no corpo da requisição`, http.StatusBadRequest)
		return
	}
	if !utils.ValidStore(*req.Loja) {
		h.writeJSONError(w, "Loja inválida", http.StatusBadRequest)
		return
	}

	results := h.photoManager.ResolveBatch(r.Context(), *req.Loja, *req.Referencias)
	if h.abandoned(r) {
		return
	}

	resp := response.LegacyPhotosResponse{Links: make([]*string, len(results))}
	for i, res := range results {
		if res.Status == entity.StatusSuccess && res.Link != "" {
			link := res.Link
			resp.Links[i] = &link
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	store := r.URL.Query().Get("store")
	reference := r.URL.Query().Get("reference")
	if store == "" || reference == "" {
		h.writeJSONError(w, "store and reference query parameters are required", http.StatusBadRequest)
		return
	}

	status, err := h.photoManager.GetStatus(r.Context(), store, reference)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			h.writeJSONError(w, "Invalid store or reference", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to get reference status",
			zap.String("store", store),
			zap.String("reference", reference),
			zap.Error(err),
		)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if status.CurrentStatus == entity.ReferenceUnknown {
		h.writeJSONError(w, "Nothing is known about this reference", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, response.FromStatus(status))
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]any{"status": "ok", "cache": "healthy"}
	code := http.StatusOK
	if err := h.cache.Ping(ctx); err != nil {
		h.logger.Error("health check failed for cache", zap.Error(err))
		resp["status"] = "degraded"
		resp["cache"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	if h.pool != nil {
		resp["proxies"] = h.pool.Size()
	}
	h.writeJSON(w, code, resp)
}

// abandoned reports whether the request context ended during resolution.
// The timeout middleware answers expired requests and a disconnected client
// reads nothing, so the handler must not write.
func (h *Handler) abandoned(r *http.Request) bool {
	err := r.Context().Err()
	if err == nil {
		return false
	}
	h.logger.Warn("dropping batch response",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	return true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
