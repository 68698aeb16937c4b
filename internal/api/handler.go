package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/parsepay/internal/domain"
	"github.com/opensource-finance/parsepay/internal/pipeline"
	"github.com/opensource-finance/parsepay/internal/repository"
	"github.com/opensource-finance/parsepay/internal/rules"
	"github.com/opensource-finance/parsepay/internal/worker"
)

// GlobalTenantID is used for gate rules that apply to all tenants.
const GlobalTenantID = "*"

// maxTextRunes bounds the SMS text accepted by the API.
const maxTextRunes = 2000

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	processor *pipeline.Processor
	version   string

	// dispatchTenant, when set, is the bus tenant async messages are
	// published under; otherwise the request tenant is used.
	dispatchTenant string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, processor *pipeline.Processor, version string, dispatchTenant string) *Handler {
	return &Handler{
		repo:           repo,
		cache:          cache,
		bus:            bus,
		engine:         engine,
		processor:      processor,
		version:        version,
		dispatchTenant: dispatchTenant,
	}
}

func decodeMessage(w http.ResponseWriter, r *http.Request) (*domain.MessageRequest, bool) {
	var req domain.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return nil, false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return nil, false
	}
	if len([]rune(req.Text)) > maxTextRunes {
		writeError(w, http.StatusBadRequest, "text is too long")
		return nil, false
	}
	return &req, true
}

// Extract handles POST /extract: the message is classified and extracted
// synchronously.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	req, ok := decodeMessage(w, r)
	if !ok {
		return
	}

	msg := req.ToMessage(tenantID, h.processor.Location())
	msg.ID = uuid.New().String()

	if h.repo != nil {
		if err := h.repo.SaveMessage(ctx, tenantID, msg); err != nil {
			slog.Error("failed to save message", "error", err)
		}
	}

	ext, err := h.processor.Process(ctx, &pipeline.Input{
		TenantID:   tenantID,
		MessageID:  msg.ID,
		Sender:     msg.Sender,
		Text:       msg.Text,
		ReceivedAt: msg.ReceivedAt,
		TraceID:    GetTraceID(ctx),
		StartTime:  start,
	})
	if err != nil {
		slog.Error("extraction failed", "message_id", msg.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "extraction failed")
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveExtraction(ctx, tenantID, ext); err != nil {
			slog.Error("failed to save extraction", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, ext.ToResponse())
}

// SubmitMessage handles POST /messages: the message is stored and queued
// for the worker.
func (h *Handler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	req, ok := decodeMessage(w, r)
	if !ok {
		return
	}

	msg := req.ToMessage(tenantID, h.processor.Location())
	msg.ID = uuid.New().String()

	stored := false
	if h.repo != nil {
		if err := h.repo.SaveMessage(ctx, tenantID, msg); err != nil {
			slog.Error("failed to save message", "error", err)
		} else {
			stored = true
		}
	}

	payload, _ := json.Marshal(worker.MessageEvent{
		MessageID:  msg.ID,
		TenantID:   tenantID,
		TraceID:    GetTraceID(ctx),
		Sender:     msg.Sender,
		Text:       msg.Text,
		ReceivedAt: msg.ReceivedAt,
		Stored:     stored,
	})

	busTenant := tenantID
	if h.dispatchTenant != "" {
		busTenant = h.dispatchTenant
	}
	if err := h.bus.Publish(ctx, busTenant, domain.TopicMessageReceived, payload); err != nil {
		slog.Error("failed to queue message", "message_id", msg.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue message")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"messageId": msg.ID,
		"status":    "QUEUED",
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether the gate has rules and storage answers.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "repository not reachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ready":     true,
		"gateRules": h.engine.RulesCount(),
	})
}

// GetExtraction retrieves an extraction by ID.
func (h *Handler) GetExtraction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	extID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	ext, err := h.repo.GetExtraction(ctx, tenantID, extID)
	if err != nil {
		writeRepoError(w, "extraction", extID, err)
		return
	}

	writeJSON(w, http.StatusOK, ext)
}

// GetMessage retrieves a message with its latest extraction, if any.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	msgID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	msg, err := h.repo.GetMessage(ctx, tenantID, msgID)
	if err != nil {
		writeRepoError(w, "message", msgID, err)
		return
	}

	resp := map[string]interface{}{"message": msg}
	ext, err := h.repo.GetExtractionByMessage(ctx, tenantID, msgID)
	switch {
	case err == nil:
		resp["extraction"] = ext.ToResponse()
	case errors.Is(err, repository.ErrNotFound):
		resp["extraction"] = nil
	default:
		slog.Error("failed to get extraction for message", "id", msgID, "error", err)
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListGateRules returns the rules loaded in the gate engine.
func (h *Handler) ListGateRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":     loaded,
		"count":     len(loaded),
		"threshold": h.gateThreshold(),
	})
}

func (h *Handler) gateThreshold() float64 {
	if h.processor == nil {
		return rules.DefaultThreshold
	}
	return h.processor.GateThreshold()
}

// GetGateRule retrieves a loaded gate rule by ID.
func (h *Handler) GetGateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeError(w, http.StatusNotFound, "gate rule not found")
}

// CreateGateRuleRequest is the request body for creating a gate rule.
type CreateGateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.GateBand `json:"bands"`
	Weight      float64           `json:"weight"`
	Enabled     bool              `json:"enabled"`
}

// CreateGateRule validates a gate rule and stores it for all tenants.
// It takes effect on POST /gate-rules/reload.
func (h *Handler) CreateGateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateGateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeError(w, http.StatusBadRequest, "id, name, and expression are required")
		return
	}
	if len(req.Bands) == 0 {
		writeError(w, http.StatusBadRequest, "at least one band is required")
		return
	}
	if req.Version == "" {
		req.Version = "1.0.0"
	}

	rule := &domain.GateRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Expression:  req.Expression,
		Bands:       req.Bands,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
		return
	}

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}
	if err := h.repo.SaveGateRule(ctx, GlobalTenantID, rule); err != nil {
		slog.Error("failed to save gate rule", "id", rule.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save gate rule")
		return
	}

	slog.Info("gate rule created", "id", rule.ID, "version", rule.Version)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Gate rule stored. Call POST /gate-rules/reload to apply changes.",
	})
}

// DeleteGateRule disables a stored gate rule and reloads the gate.
func (h *Handler) DeleteGateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}
	if err := h.repo.DeleteGateRule(ctx, GlobalTenantID, ruleID); err != nil {
		writeRepoError(w, "gate rule", ruleID, err)
		return
	}

	count, err := h.reloadGate(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "gate rule deleted but reload failed: "+err.Error())
		return
	}

	slog.Info("gate rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "gate rule deleted",
		"count":   count,
	})
}

// ReloadGateRules reloads stored gate rules, layered over the built-in
// defaults, into the engine without a restart.
func (h *Handler) ReloadGateRules(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	count, err := h.reloadGate(r)
	if err != nil {
		slog.Error("failed to reload gate rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload gate rules: "+err.Error())
		return
	}

	slog.Info("gate rules reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "gate rules reloaded successfully",
		"count":   count,
	})
}

func (h *Handler) reloadGate(r *http.Request) (int, error) {
	stored, err := h.repo.ListGateRules(r.Context(), GlobalTenantID)
	if err != nil {
		return 0, err
	}
	if err := h.engine.ReloadRules(rules.MergeGateRules(rules.DefaultGateRules(), stored)); err != nil {
		return 0, err
	}
	return h.engine.RulesCount(), nil
}

func writeRepoError(w http.ResponseWriter, kind, id string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, kind+" not found")
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("repository error", "kind", kind, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load "+kind)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
