// Package api exposes the daemon's services over local-only HTTP for
// clients that speak the OpenAI chat protocol instead of the bus.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cmdline-assistant/clad/internal/domain"
	"github.com/cmdline-assistant/clad/internal/metrics"
	"github.com/cmdline-assistant/clad/internal/service"
	"github.com/cmdline-assistant/clad/internal/stream"
	"github.com/cmdline-assistant/clad/internal/telemetry"
	"github.com/cmdline-assistant/clad/internal/translate"
	"github.com/cmdline-assistant/clad/internal/version"
)

const transportHTTP = "http"

// sessionHeader carries the caller's session identity; requests without it
// share the catch-all session.
const sessionHeader = "X-Session-ID"

type HandlerConfig struct {
	Service *service.Service

	// ModelID is the single model identifier advertised on /v1/models.
	ModelID string

	// OnActivity is invoked once per request; the daemon uses it to
	// arm its idle-exit timer. May be nil.
	OnActivity func()
}

type Handler struct {
	svc        *service.Service
	modelID    string
	onActivity func()
	mux        *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		svc:        cfg.Service,
		modelID:    cfg.ModelID,
		onActivity: cfg.OnActivity,
		mux:        http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/chat/completions", h.handleChatCompletions)
	h.mux.HandleFunc("GET /v1/models", h.handleListModels)
	h.mux.HandleFunc("GET /v1/history", h.handleListHistory)
	h.mux.HandleFunc("DELETE /v1/history", h.handlePurgeHistory)
	h.mux.HandleFunc("GET /v1/user", h.handleUser)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.onActivity != nil {
		h.onActivity()
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	ctx, span := telemetry.StartSpan(ctx, "api.chat")
	defer span.End()
	telemetry.AddRequestAttributes(span, "chat", transportHTTP, requestID)

	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordRequest("chat", transportHTTP, "protocol_error", time.Since(start).Seconds())
		writeError(w, http.StatusBadRequest, "protocol_error", "invalid request body")
		return
	}

	sessionID := sessionFrom(r)

	result, err := h.svc.Ask(ctx, sessionID, req, "")
	if err != nil {
		status, code, message := mapError(err)
		metrics.RecordRequest("chat", transportHTTP, code, time.Since(start).Seconds())
		slog.Error("chat request failed",
			"request_id", requestID,
			"session_id", sessionID,
			"code", code,
		)
		writeError(w, status, code, message)
		return
	}

	if req.Stream {
		h.streamResponse(w, r, req, result, requestID, start)
		return
	}

	resp := translate.FromBackendAnswer(result.Answer, result.Question, req.Model, result.ResponseID)
	resp.Gateway.RequestID = requestID
	resp.Gateway.LatencyMs = time.Since(start).Milliseconds()
	resp.Gateway.CacheHit = result.CacheHit
	resp.Gateway.TraceID = telemetry.GetTraceID(ctx)

	metrics.RecordRequest("chat", transportHTTP, "ok", time.Since(start).Seconds())
	slog.Info("chat request completed",
		"request_id", requestID,
		"session_id", sessionID,
		"cache_hit", result.CacheHit,
		"latency_ms", resp.Gateway.LatencyMs,
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	json.NewEncoder(w).Encode(resp)
}

// streamResponse drains the emulated chunk sequence frame by frame. Chunks
// are flushed in order as they arrive; a disconnected caller cancels the
// request context and emission stops after the chunk in flight.
func (h *Handler) streamResponse(w http.ResponseWriter, r *http.Request, req domain.ChatRequest, result *service.AskResult, requestID string, start time.Time) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-ID", requestID)

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	for chunk := range stream.Emulate(r.Context(), result.Answer, result.ResponseID, req.Model) {
		data, err := json.Marshal(chunk)
		if err != nil {
			slog.Error("failed to serialize chunk", "request_id", requestID, "error", err)
			return
		}
		w.Write([]byte("data: " + string(data) + "\n\n"))
		flusher.Flush()
	}

	if r.Context().Err() != nil {
		metrics.RecordRequest("chat", transportHTTP, "client_gone", time.Since(start).Seconds())
		return
	}

	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()

	metrics.RecordRequest("chat", transportHTTP, "ok", time.Since(start).Seconds())
	slog.Info("streaming request completed",
		"request_id", requestID,
		"latency_ms", time.Since(start).Milliseconds(),
	)
}

func (h *Handler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionFrom(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	start := time.Now()
	entries, err := h.svc.History(r.Context(), sessionID, limit, offset)
	if err != nil {
		status, code, message := mapError(err)
		metrics.RecordRequest("history", transportHTTP, code, time.Since(start).Seconds())
		writeError(w, status, code, message)
		return
	}

	type item struct {
		Question  string    `json:"question"`
		Answer    string    `json:"answer"`
		CreatedAt time.Time `json:"created_at"`
	}
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		items = append(items, item{Question: e.Question, Answer: e.Answer, CreatedAt: e.CreatedAt})
	}

	metrics.RecordRequest("history", transportHTTP, "ok", time.Since(start).Seconds())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"history": items})
}

func (h *Handler) handlePurgeHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionFrom(r)

	start := time.Now()
	if err := h.svc.PurgeHistory(r.Context(), sessionID); err != nil {
		status, code, message := mapError(err)
		metrics.RecordRequest("history", transportHTTP, code, time.Since(start).Seconds())
		writeError(w, status, code, message)
		return
	}

	metrics.RecordRequest("history", transportHTTP, "ok", time.Since(start).Seconds())
	slog.Info("history purged", "session_id", sessionID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "purged"})
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request) {
	uid, err := strconv.ParseUint(r.URL.Query().Get("uid"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "protocol_error", "uid query parameter required")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"user_id": h.svc.UserID(uint32(uid))})
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	resp := domain.ModelsResponse{
		Object: "list",
		Data: []domain.Model{
			{ID: h.modelID, Object: "model", OwnedBy: "clad"},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	historyStatus := "ok"
	if _, err := h.svc.History(r.Context(), "health-probe", 1, 0); err != nil {
		historyStatus = "unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": version.Version,
		"history": historyStatus,
	})
}

func sessionFrom(r *http.Request) string {
	if s := r.Header.Get(sessionHeader); s != "" {
		return s
	}
	return "default"
}

// mapError turns the error taxonomy into a caller-visible status and a
// stable machine-readable code. Transport internals never leak; the caller
// sees the code and a short summary only.
func mapError(err error) (status int, code, message string) {
	code = domain.ErrorCode(err)
	switch code {
	case "gateway_timeout":
		status = http.StatusGatewayTimeout
	case "bad_gateway", "upstream_error":
		status = http.StatusBadGateway
	case "no_user_message", "protocol_error":
		status = http.StatusBadRequest
	case "session_not_found":
		status = http.StatusNotFound
	case "storage_error":
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	return status, code, domain.ErrorSummary(code)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    code,
			"code":    status,
		},
	})
}
