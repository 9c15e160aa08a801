// Package httpapi exposes the core's only inbound surface (spec §6): a
// liveness probe, Prometheus metrics, and an AlertConfig upsert endpoint.
// Everything else — the dashboard, auth, UI, and analytics — is an
// external collaborator; the core does not implement a query API over its
// own StateStore.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/turphai/boomwatch/internal/alertconfigstore"
	"github.com/turphai/boomwatch/internal/domain"
)

// upsertAlertConfigRequest is the dashboard-facing DTO; it is validated
// before being translated into a domain.AlertConfig.
type upsertAlertConfigRequest struct {
	ID                   string   `json:"id"`
	UserID               string   `json:"user_id" validate:"required"`
	DataSource           string   `json:"data_source" validate:"required"`
	MetricName           string   `json:"metric_name" validate:"required"`
	ThresholdType        string   `json:"threshold_type" validate:"required,oneof=absolute percentage_change"`
	ThresholdValue       float64  `json:"threshold_value" validate:"required"`
	ComparisonPeriodDays int      `json:"comparison_period_days"`
	Enabled              bool     `json:"enabled"`
	Channels             []string `json:"channels" validate:"required,min=1"`
	DedupWindowSeconds   int64    `json:"dedup_window_seconds"`
}

// Handlers holds the core's inbound HTTP surface state.
type Handlers struct {
	configs  *alertconfigstore.Store
	validate *validator.Validate
}

func NewHandlers(configs *alertconfigstore.Store) *Handlers {
	return &Handlers{configs: configs, validate: validator.New()}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func httpStatusForErr(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, alertconfigstore.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, alertconfigstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func publicErrMessage(code int, err error) string {
	if code >= 500 {
		return "internal error"
	}
	return err.Error()
}

// UpsertAlertConfig handles POST /v1/alert-configs: the only write path
// the core exposes (spec §6: "must not perform write-through paths ...
// other than upserting AlertConfigs").
func (h *Handlers) UpsertAlertConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req upsertAlertConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	id := uuid.New()
	if req.ID != "" {
		parsed, err := uuid.Parse(req.ID)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid id")
			return
		}
		id = parsed
	}

	channels := make([]domain.Channel, len(req.Channels))
	for i, c := range req.Channels {
		channels[i] = domain.Channel(c)
	}

	cfg := domain.AlertConfig{
		ID:                   id,
		UserID:               req.UserID,
		DataSource:           domain.DataSource(req.DataSource),
		MetricName:           req.MetricName,
		ThresholdType:        domain.ThresholdType(req.ThresholdType),
		ThresholdValue:       req.ThresholdValue,
		ComparisonPeriodDays: req.ComparisonPeriodDays,
		Enabled:              req.Enabled,
		Channels:             channels,
		DedupWindow:          time.Duration(req.DedupWindowSeconds) * time.Second,
	}
	if err := cfg.Validate(); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.configs.Upsert(ctx, cfg); err != nil {
		code := httpStatusForErr(err)
		writeErr(w, code, publicErrMessage(code, err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": cfg.ID})
}
