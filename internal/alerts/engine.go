package alerts

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"commodity-price-alerts/internal/metrics"
)

// Notifier is what the engine hands crossings to.
type Notifier interface {
	Dispatch(ctx context.Context, alert Alert, price decimal.Decimal)
	RequestPermission()
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for createdAt/triggeredAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides alert id allocation.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// Engine owns the alert list and the observation cache. Every operation runs
// under one lock so a tick and a user mutation never interleave.
type Engine struct {
	mu       sync.Mutex
	alerts   []Alert
	observed map[string]decimal.Decimal

	store    *Store
	notifier Notifier
	now      func() time.Time
	newID    func() string
	logger   zerolog.Logger
	obs      observers
}

// NewEngine loads the persisted alerts and returns a ready engine.
func NewEngine(ctx context.Context, store *Store, notifier Notifier, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		observed: make(map[string]decimal.Decimal),
		store:    store,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logger.With().Str("component", "alert_engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.alerts = store.LoadAll(ctx)
	e.updateGauge()
	e.logger.Info().Int("alerts", len(e.alerts)).Msg("alert engine ready")
	return e
}

// TargetFromFloat converts a float threshold, rejecting NaN, ±Inf and negatives.
func TargetFromFloat(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrInvalidTarget, v)
	}
	return decimal.NewFromFloat(v), nil
}

// ParseTarget parses a decimal threshold string.
func ParseTarget(v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrInvalidTarget, v)
	}
	return d, nil
}

// Subscribe registers a listener and returns its unsubscribe func.
func (e *Engine) Subscribe(fn Listener) func() {
	return e.obs.subscribe(fn)
}

// Alerts returns a copy of the alert list.
func (e *Engine) Alerts() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneAll(e.alerts)
}

// Get returns a copy of one alert.
func (e *Engine) Get(id string) (Alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := e.indexOf(id); i >= 0 {
		return e.alerts[i].clone(), true
	}
	return Alert{}, false
}

// LastPrice returns the most recently observed price for an instrument.
func (e *Engine) LastPrice(instrumentID string) (decimal.Decimal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.observed[instrumentID]
	return p, ok
}

// Create validates input, allocates an armed alert and persists the list.
func (e *Engine) Create(ctx context.Context, instrumentID, label string, target decimal.Decimal, direction Direction) (Alert, error) {
	if instrumentID == "" {
		return Alert{}, ErrMissingInstrument
	}
	if target.IsNegative() {
		return Alert{}, fmt.Errorf("%w: %s", ErrInvalidTarget, target)
	}
	if !direction.Valid() {
		return Alert{}, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	e.mu.Lock()
	alert := Alert{
		ID:              e.newID(),
		InstrumentID:    instrumentID,
		InstrumentLabel: label,
		TargetPrice:     target,
		Direction:       direction,
		Enabled:         true,
		CreatedAt:       e.now().UTC(),
	}
	e.alerts = append(e.alerts, alert)
	e.commit(ctx)
	e.mu.Unlock()

	e.logger.Info().Str("alert_id", alert.ID).
		Str("instrument", instrumentID).
		Str("target", target.String()).
		Str("direction", string(direction)).
		Msg("alert created")

	if e.notifier != nil {
		e.notifier.RequestPermission()
	}
	e.obs.publish([]Event{{Kind: EventCreated, Alert: alert.clone()}})
	return alert, nil
}

// Remove deletes an alert. Unknown ids are ignored.
func (e *Engine) Remove(ctx context.Context, id string) bool {
	e.mu.Lock()
	i := e.indexOf(id)
	if i < 0 {
		e.mu.Unlock()
		return false
	}
	removed := e.alerts[i]
	e.alerts = append(e.alerts[:i:i], e.alerts[i+1:]...)
	e.commit(ctx)
	e.mu.Unlock()

	e.logger.Info().Str("alert_id", id).Msg("alert removed")
	e.obs.publish([]Event{{Kind: EventRemoved, Alert: removed}})
	return true
}

// Toggle flips enabled and clears any trigger, so off-then-on re-arms.
func (e *Engine) Toggle(ctx context.Context, id string) (Alert, bool) {
	return e.mutate(ctx, id, EventToggled, func(a *Alert) {
		a.Enabled = !a.Enabled
		a.TriggeredAt = nil
	})
}

// Reset re-arms an alert. The observation cache is left as is, so an alert
// reset while price already sits past the target waits for a fresh crossing.
func (e *Engine) Reset(ctx context.Context, id string) (Alert, bool) {
	return e.mutate(ctx, id, EventReset, func(a *Alert) {
		a.Enabled = true
		a.TriggeredAt = nil
	})
}

func (e *Engine) mutate(ctx context.Context, id string, kind EventKind, fn func(*Alert)) (Alert, bool) {
	e.mu.Lock()
	i := e.indexOf(id)
	if i < 0 {
		e.mu.Unlock()
		return Alert{}, false
	}
	fn(&e.alerts[i])
	updated := e.alerts[i].clone()
	e.commit(ctx)
	e.mu.Unlock()

	e.logger.Info().Str("alert_id", id).Str("event", string(kind)).Str("state", updated.State()).Msg("alert updated")
	e.obs.publish([]Event{{Kind: kind, Alert: updated}})
	return updated, true
}

// EvaluateTick runs crossing detection for one snapshot and returns the alerts
// it triggered. Malformed quotes are skipped; nothing escapes as an error.
// Triggers are committed under the lock and dispatched after it is released,
// so slow channels never block user mutations.
func (e *Engine) EvaluateTick(ctx context.Context, snapshot Snapshot) []Alert {
	var fired []trigger

	e.mu.Lock()
	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().Interface("panic", r).Msg("tick evaluation aborted")
			}
		}()
		fired = e.evaluate(ctx, snapshot)
	}()
	e.mu.Unlock()

	triggered := make([]Alert, len(fired))
	events := make([]Event, len(fired))
	for i, t := range fired {
		if e.notifier != nil {
			e.notifier.Dispatch(ctx, t.alert.clone(), t.price)
		}
		triggered[i] = t.alert
		events[i] = Event{Kind: EventTriggered, Alert: t.alert.clone()}
	}
	e.obs.publish(events)
	return triggered
}

type trigger struct {
	alert Alert
	price decimal.Decimal
}

func (e *Engine) evaluate(ctx context.Context, snapshot Snapshot) []trigger {
	metrics.Ticks.Inc()

	latest := make(map[string]decimal.Decimal, len(snapshot))
	for _, q := range snapshot {
		if q.InstrumentID == "" || math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
			metrics.MalformedQuotes.Inc()
			e.logger.Warn().Str("instrument", q.InstrumentID).Float64("price", q.Price).Msg("skipping malformed quote")
			continue
		}
		latest[q.InstrumentID] = decimal.NewFromFloat(q.Price)
	}

	var fired []trigger
	for i := range e.alerts {
		alert := &e.alerts[i]
		if !alert.Armed() {
			continue
		}
		current, ok := latest[alert.InstrumentID]
		if !ok {
			continue
		}
		prev, seen := e.observed[alert.InstrumentID]
		if !Crossed(*alert, decimal.NullDecimal{Decimal: prev, Valid: seen}, current) {
			continue
		}

		ts := e.now().UTC()
		alert.TriggeredAt = &ts
		metrics.Triggers.WithLabelValues(string(alert.Direction)).Inc()

		e.logger.Info().Str("alert_id", alert.ID).
			Str("instrument", alert.InstrumentID).
			Str("price", current.String()).
			Str("target", alert.TargetPrice.String()).
			Msg("alert triggered")
		fired = append(fired, trigger{alert: alert.clone(), price: current})
	}

	if len(fired) > 0 {
		e.commit(ctx)
	}

	for id, price := range latest {
		e.observed[id] = price
	}
	return fired
}

// commit persists the full list; callers hold e.mu.
func (e *Engine) commit(ctx context.Context) {
	e.store.SaveAll(ctx, e.alerts)
	e.updateGauge()
}

func (e *Engine) updateGauge() {
	armed := 0
	for _, a := range e.alerts {
		if a.Armed() {
			armed++
		}
	}
	metrics.ArmedAlerts.Set(float64(armed))
}

func (e *Engine) indexOf(id string) int {
	for i := range e.alerts {
		if e.alerts[i].ID == id {
			return i
		}
	}
	return -1
}
