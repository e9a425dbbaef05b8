package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"commodity-price-alerts/internal/alerts"
)

const maxRequestBytes = 64 << 10

// Alert is the wire form of an alert.
type Alert struct {
	ID              string           `json:"id"`
	InstrumentID    string           `json:"instrumentId"`
	InstrumentLabel string           `json:"instrumentLabel"`
	TargetPrice     decimal.Decimal  `json:"targetPrice"`
	Direction       alerts.Direction `json:"direction"`
	Enabled         bool             `json:"enabled"`
	State           string           `json:"state"`
	CreatedAt       time.Time        `json:"createdAt"`
	TriggeredAt     *time.Time       `json:"triggeredAt"`
}

// CreateRequest is the body of POST /alerts.
type CreateRequest struct {
	InstrumentID string `json:"instrumentId"`
	Label        string `json:"label"`
	TargetPrice  string `json:"targetPrice"`
	Direction    string `json:"direction"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func fromAlert(a alerts.Alert) Alert {
	return Alert{
		ID:              a.ID,
		InstrumentID:    a.InstrumentID,
		InstrumentLabel: a.InstrumentLabel,
		TargetPrice:     a.TargetPrice,
		Direction:       a.Direction,
		Enabled:         a.Enabled,
		State:           a.State(),
		CreatedAt:       a.CreatedAt,
		TriggeredAt:     a.TriggeredAt,
	}
}

// Alert converts the wire form back to the domain type.
func (a Alert) Alert() alerts.Alert {
	return alerts.Alert{
		ID:              a.ID,
		InstrumentID:    a.InstrumentID,
		InstrumentLabel: a.InstrumentLabel,
		TargetPrice:     a.TargetPrice,
		Direction:       a.Direction,
		Enabled:         a.Enabled,
		CreatedAt:       a.CreatedAt,
		TriggeredAt:     a.TriggeredAt,
	}
}

// Handler exposes the engine's lifecycle operations over HTTP so every
// mutation goes through the one process that owns the alert list.
type Handler struct {
	engine *alerts.Engine
	mux    *http.ServeMux
	logger zerolog.Logger
}

// NewHandler routes /alerts requests to engine.
func NewHandler(engine *alerts.Engine, logger zerolog.Logger) *Handler {
	h := &Handler{
		engine: engine,
		mux:    http.NewServeMux(),
		logger: logger.With().Str("component", "alerts_api").Logger(),
	}
	h.mux.HandleFunc("GET /alerts", h.list)
	h.mux.HandleFunc("POST /alerts", h.create)
	h.mux.HandleFunc("GET /alerts/{id}", h.get)
	h.mux.HandleFunc("DELETE /alerts/{id}", h.remove)
	h.mux.HandleFunc("POST /alerts/{id}/toggle", h.toggle)
	h.mux.HandleFunc("POST /alerts/{id}/reset", h.reset)
	return h
}

// Routes returns the patterns to mount on an outer mux.
func (h *Handler) Routes() map[string]http.Handler {
	return map[string]http.Handler{"/alerts": h, "/alerts/": h}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list := h.engine.Alerts()
	out := make([]Alert, len(list))
	for i, a := range list {
		out[i] = fromAlert(a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	a, ok := h.engine.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, fromAlert(a))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	target, err := alerts.ParseTarget(req.TargetPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	direction, err := alerts.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.engine.Create(r.Context(), req.InstrumentID, req.Label, target, direction)
	switch {
	case errors.Is(err, alerts.ErrMissingInstrument), errors.Is(err, alerts.ErrInvalidTarget), errors.Is(err, alerts.ErrInvalidDirection):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("create alert failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, fromAlert(a))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Remove(r.Context(), r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	h.respondMutation(w, h.engine.Toggle(r.Context(), r.PathValue("id")))
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	h.respondMutation(w, h.engine.Reset(r.Context(), r.PathValue("id")))
}

func (h *Handler) respondMutation(w http.ResponseWriter, a alerts.Alert, ok bool) {
	if !ok {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, fromAlert(a))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
