package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"commodity-price-alerts/internal/kv"
	"commodity-price-alerts/internal/metrics"
)

const defaultWriteTimeout = 3 * time.Second

// KeyValue is the durable blob store the alert list is persisted to.
type KeyValue interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store serialises the complete alert list as one blob under one key.
type Store struct {
	kv      KeyValue
	key     string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewStore binds a Store to a key in the given KeyValue.
func NewStore(backend KeyValue, key string, timeout time.Duration, logger zerolog.Logger) *Store {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Store{
		kv:      backend,
		key:     key,
		timeout: timeout,
		logger:  logger.With().Str("component", "alert_store").Logger(),
	}
}

type alertRecord struct {
	ID              string          `json:"id"`
	InstrumentID    string          `json:"instrumentId"`
	InstrumentLabel string          `json:"instrumentLabel"`
	TargetPrice     decimal.Decimal `json:"targetPrice"`
	Direction       Direction       `json:"direction"`
	Enabled         bool            `json:"enabled"`
	CreatedAt       time.Time       `json:"createdAt"`
	TriggeredAt     *time.Time      `json:"triggeredAt"`
}

// LoadAll returns the persisted alerts. Absent or unreadable data yields an
// empty list.
func (s *Store) LoadAll(ctx context.Context) []Alert {
	if s == nil || s.kv == nil {
		return []Alert{}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			s.logger.Debug().Str("key", s.key).Msg("no persisted alerts")
		} else {
			metrics.PersistFailures.WithLabelValues("load").Inc()
			s.logger.Warn().Err(err).Str("key", s.key).Msg("failed to read persisted alerts")
		}
		return []Alert{}
	}

	alerts, err := decodeAlerts(raw)
	if err != nil {
		metrics.PersistFailures.WithLabelValues("decode").Inc()
		s.logger.Warn().Err(err).Str("key", s.key).Msg("discarding unreadable alert blob")
		return []Alert{}
	}
	return s.sanitize(alerts)
}

// SaveAll writes the full list. Failures are logged and dropped; the caller's
// in-memory list stays authoritative.
func (s *Store) SaveAll(ctx context.Context, alerts []Alert) {
	if s == nil || s.kv == nil {
		return
	}

	raw, err := encodeAlerts(alerts)
	if err != nil {
		metrics.PersistFailures.WithLabelValues("encode").Inc()
		s.logger.Error().Err(err).Msg("failed to encode alerts")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		metrics.PersistFailures.WithLabelValues("save").Inc()
		s.logger.Warn().Err(err).Int("alerts", len(alerts)).Msg("failed to persist alerts")
	}
}

func (s *Store) sanitize(list []Alert) []Alert {
	seen := make(map[string]struct{}, len(list))
	out := make([]Alert, 0, len(list))
	for _, a := range list {
		if a.ID == "" || !a.Direction.Valid() || a.TargetPrice.IsNegative() {
			s.logger.Warn().Str("alert_id", a.ID).Msg("dropping malformed persisted alert")
			continue
		}
		if _, dup := seen[a.ID]; dup {
			s.logger.Warn().Str("alert_id", a.ID).Msg("dropping duplicate persisted alert")
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

func encodeAlerts(list []Alert) ([]byte, error) {
	records := make([]alertRecord, len(list))
	for i, a := range list {
		records[i] = alertRecord(a)
	}
	return json.Marshal(records)
}

func decodeAlerts(raw []byte) ([]Alert, error) {
	var records []alertRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	out := make([]Alert, len(records))
	for i, r := range records {
		out[i] = Alert(r)
	}
	return out, nil
}
