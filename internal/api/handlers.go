package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"rategate/internal/models"
	"rategate/internal/ratelimit"
	"rategate/internal/version"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handlers contains HTTP handlers for the rategate admin API
type Handlers struct {
	limiter   ratelimit.Limiter[string]
	version   version.Info
	startTime time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(limiter ratelimit.Limiter[string], ver version.Info) *Handlers {
	return &Handlers{
		limiter:   limiter,
		version:   ver,
		startTime: time.Now(),
	}
}

// RegisterEntity registers or replaces the quota of an entity
// PUT /api/v1/entities/{key}
func (h *Handlers) RegisterEntity(w http.ResponseWriter, r *http.Request) {
	key, ok := h.entityKey(w, r)
	if !ok {
		return
	}

	var req models.RegisterEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	window, err := req.Validate()
	if err != nil {
		errorResp := models.NewErrorResponse(err.Error(), models.ErrorCodeValidation)
		var fieldErr *models.FieldError
		if errors.As(err, &fieldErr) {
			errorResp.WithDetails(fieldErr.Details())
		}
		h.writeJSONResponse(w, http.StatusBadRequest, errorResp)
		return
	}

	h.limiter.Register(key, *req.Capacity, window)
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("ratelimit.key", key),
		capacityAttribute(*req.Capacity),
		attribute.String("ratelimit.window", window.String()),
	)
	slog.Info("Entity registered", "key", key, "capacity", *req.Capacity, "window", window)

	w.WriteHeader(http.StatusNoContent)
}

// GetEntity returns the current quota of an entity without consuming it
// GET /api/v1/entities/{key}
func (h *Handlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	key, ok := h.entityKey(w, r)
	if !ok {
		return
	}

	bucket, found := h.limiter.Inspect(key)
	if !found {
		h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeEntityNotFound, "Entity not registered")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, newEntityResponse(key, bucket))
}

// ConsumeEntity takes one unit of quota from an entity
// POST /api/v1/entities/{key}/consume
func (h *Handlers) ConsumeEntity(w http.ResponseWriter, r *http.Request) {
	key, ok := h.entityKey(w, r)
	if !ok {
		return
	}

	decision := h.limiter.CheckAndConsume(key)
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.String("ratelimit.decision", decision.String()),
	)
	if decision == ratelimit.NotRegistered {
		h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeEntityNotFound, "Entity not registered")
		return
	}

	resp := &models.ConsumeResponse{
		Key:      key,
		Decision: decision.String(),
	}

	status := http.StatusOK
	if bucket, found := h.limiter.Inspect(key); found {
		resp.Remaining = bucket.Remaining
		if decision == ratelimit.Denied {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter(bucket)))
		}
	}
	if decision == ratelimit.Denied {
		status = http.StatusTooManyRequests
	}

	h.writeJSONResponse(w, status, resp)
}

// DeleteEntity unregisters an entity and returns its last state
// DELETE /api/v1/entities/{key}
func (h *Handlers) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	key, ok := h.entityKey(w, r)
	if !ok {
		return
	}

	bucket, found := h.limiter.Unregister(key)
	if !found {
		h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeEntityNotFound, "Entity not registered")
		return
	}

	slog.Info("Entity unregistered", "key", key)
	h.writeJSONResponse(w, http.StatusOK, newEntityResponse(key, bucket))
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	response := &models.HealthCheckResponse{
		Status:    models.StatusHealthy,
		Timestamp: now,
		Version:   h.version.Version,
		Uptime:    now.Sub(h.startTime).Truncate(time.Second).String(),
		Components: map[string]models.ComponentHealth{
			"limiter": {
				Status:    models.StatusHealthy,
				Message:   "Limiter is operational",
				Details:   map[string]interface{}{"entities": h.limiter.Len()},
				Timestamp: now,
			},
		},
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// Ping answers requests that made it through the rate limit gate
// GET /api/v1/ping
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"message": "pong"})
}

// entityKey returns the decoded {key} path variable. The router matches on the
// escaped path, so keys containing "/" arrive as %2F.
func (h *Handlers) entityKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := url.PathUnescape(mux.Vars(r)["key"])
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid entity key")
		return "", false
	}
	return key, true
}

// capacityAttribute clamps capacities that do not fit an int64 attribute.
func capacityAttribute(capacity uint) attribute.KeyValue {
	if uint64(capacity) > math.MaxInt64 {
		return attribute.Int64("ratelimit.capacity", math.MaxInt64)
	}
	return attribute.Int64("ratelimit.capacity", int64(capacity))
}

func newEntityResponse(key string, b ratelimit.Bucket) *models.EntityResponse {
	return &models.EntityResponse{
		Key:         key,
		Remaining:   b.Remaining,
		Capacity:    b.Capacity,
		Window:      b.Window.String(),
		WindowStart: b.WindowStart,
		ResetAt:     b.ResetAt(),
	}
}

func retryAfter(b ratelimit.Bucket) int {
	secs := int(math.Ceil(time.Until(b.ResetAt()).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written at this point.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	h.writeJSONResponse(w, statusCode, errorResp)
}
