package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/amberlink/voiceaudit/internal/detect"
	"github.com/amberlink/voiceaudit/internal/metrics"
)

// AuthenticityApplier applies resolved authenticity metrics to the record
// holding the given tracking token.
type AuthenticityApplier interface {
	ApplyAuthenticity(ctx context.Context, trackingToken string, m detect.Metrics) error
}

// CallbackHandler receives push notifications from the authenticity
// provider. The endpoint is unauthenticated because the provider cannot hold
// our credentials; a payload that matches no record is simply dropped.
type CallbackHandler struct {
	applier AuthenticityApplier
	log     zerolog.Logger
}

func NewCallbackHandler(applier AuthenticityApplier, log zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{
		applier: applier,
		log:     log.With().Str("handler", "callback").Logger(),
	}
}

// Routes registers the callback endpoint.
func (h *CallbackHandler) Routes(r chi.Router) {
	r.Post("/detect-callback", h.Callback)
}

type callbackPayload struct {
	Item *struct {
		UUID    string          `json:"uuid"`
		Metrics json.RawMessage `json:"metrics"`
	} `json:"item"`
}

// Callback handles POST /api/v1/detect-callback. Payloads without a tracking
// token or metrics are acknowledged and ignored so the provider does not
// retry them forever.
func (h *CallbackHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var payload callbackPayload
	if err := DecodeJSON(r, &payload); err != nil {
		metrics.CallbacksTotal.WithLabelValues("malformed").Inc()
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if payload.Item == nil || payload.Item.UUID == "" || len(payload.Item.Metrics) == 0 || string(payload.Item.Metrics) == "null" {
		metrics.CallbacksTotal.WithLabelValues("incomplete").Inc()
		h.log.Debug().Msg("callback without token or metrics, ignoring")
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	var m detect.Metrics
	if err := json.Unmarshal(payload.Item.Metrics, &m); err != nil {
		metrics.CallbacksTotal.WithLabelValues("malformed").Inc()
		WriteError(w, http.StatusBadRequest, "invalid metrics payload")
		return
	}

	if err := h.applier.ApplyAuthenticity(r.Context(), payload.Item.UUID, m); err != nil {
		metrics.CallbacksTotal.WithLabelValues("failed").Inc()
		h.log.Error().Err(err).Str("tracking_token", payload.Item.UUID).Msg("callback apply failed")
		WriteError(w, http.StatusInternalServerError, "failed to record analysis")
		return
	}

	metrics.CallbacksTotal.WithLabelValues("applied").Inc()
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
