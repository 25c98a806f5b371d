package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"json-store/internal/health"
	"json-store/internal/logs"
	"json-store/internal/metrics"
	"json-store/internal/store"
)

// Sweeper is the part of ttl.Sweeper the admin API needs.
type Sweeper interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	sweeper  Sweeper
	metrics  *metrics.Registry
	logger   *logs.Logger
	analyzer *health.Analyzer
}

// NewHandler creates a new API handler.
func NewHandler(
	store *store.Store,
	sweeper Sweeper,
	metrics *metrics.Registry,
	logger *logs.Logger,
) *Handler {
	return &Handler{
		store:    store,
		sweeper:  sweeper,
		metrics:  metrics,
		logger:   logger,
		analyzer: health.NewAnalyzer(metrics, logger),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

/* ---------------- PUT /kv/{key} ---------------- */

type setRequest struct {
	Value json.RawMessage `json:"value"`
	TTL   int64           `json:"ttl,omitempty"` // seconds, 0 = never expires
}

type entryResponse struct {
	Key       string     `json:"key"`
	Value     any        `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (h *Handler) SetKey(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	if key == "" {
		http.Error(w, "missing key in URL", http.StatusBadRequest)
		return
	}

	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if len(req.Value) == 0 {
		http.Error(w, "missing value", http.StatusBadRequest)
		return
	}
	if req.TTL < 0 {
		http.Error(w, "ttl must not be negative", http.StatusBadRequest)
		return
	}

	entry, err := h.store.Set(r.Context(), key, req.Value, store.SetOptions{
		TTL: time.Duration(req.TTL) * time.Second,
	})
	switch {
	case errors.Is(err, store.ErrSerialization),
		errors.Is(err, store.ErrEmptyKey),
		errors.Is(err, store.ErrInvalidTTL):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("set failed", "key", key, "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	resp := entryResponse{
		Key:       entry.Key,
		Value:     req.Value,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	}
	if entry.HasExpiry() {
		resp.ExpiresAt = &entry.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

/* ---------------- GET /kv/{key} ---------------- */

func (h *Handler) GetKey(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	value, ok, err := h.store.Get(r.Context(), key)
	if err != nil && !errors.Is(err, store.ErrExpiredCleanup) {
		h.logger.Error("get failed", "key", key, "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	// A failed cleanup of an expired entry is already logged by the store;
	// the read result is still "not found".
	if !ok {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"value": value,
	})
}

/* ---------------- DELETE /kv/{key} ---------------- */

func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	removed, err := h.store.Delete(r.Context(), key)
	if err != nil {
		h.logger.Error("delete failed", "key", key, "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/* ---------------- DELETE /kv ---------------- */

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.Clear(r.Context())
	if err != nil {
		h.logger.Error("clear failed", "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": removed})
}

/* ---------------- POST /admin/cleanup ---------------- */

func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.sweeper.Cleanup(r.Context())
	if err != nil {
		http.Error(w, "cleanup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": removed})
}

/* ---------------- GET /admin/logs ---------------- */

func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	n := 100
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "n must be a non-negative integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, h.logger.GetLast(n))
}

/* ---------------- GET /metrics ---------------- */

// GetMetrics serves the counter snapshot plus the current row count. The
// count is omitted when the repository cannot be read.
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	snap := h.metrics.Snapshot()

	rows, err := h.store.Count(r.Context())
	if err != nil {
		h.logger.Warn("row count unavailable", "error", err)
	} else {
		snap[string(metrics.StoreRows)] = rows
	}
	writeJSON(w, http.StatusOK, snap)
}

/* ---------------- GET /health ---------------- */

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analyzer.Analyze())
}
