package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"commodity-price-alerts/internal/alerts"
)

// Poller returns the current snapshot on demand.
type Poller interface {
	Poll(ctx context.Context) (alerts.Snapshot, error)
}

// Streamer pushes snapshots as they arrive until ctx ends.
type Streamer interface {
	Stream(ctx context.Context, handle func(context.Context, alerts.Snapshot)) error
}

type snapshotPayload struct {
	Quotes []quotePayload `json:"quotes"`
}

type quotePayload struct {
	InstrumentID string   `json:"instrumentId"`
	Price        *float64 `json:"price"`
}

// Decode parses a snapshot document. A quote without a price is kept with a
// NaN price so the engine can skip that instrument alone.
func Decode(raw []byte) (alerts.Snapshot, error) {
	var payload snapshotPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	snap := make(alerts.Snapshot, 0, len(payload.Quotes))
	for _, q := range payload.Quotes {
		price := math.NaN()
		if q.Price != nil {
			price = *q.Price
		}
		snap = append(snap, alerts.Quote{InstrumentID: q.InstrumentID, Price: price})
	}
	return snap, nil
}
