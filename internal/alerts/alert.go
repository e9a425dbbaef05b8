package alerts

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidTarget indicates a target price that is not a finite non-negative number.
	ErrInvalidTarget = errors.New("alerts: target price must be finite and non-negative")
	// ErrInvalidDirection indicates an unknown crossing direction.
	ErrInvalidDirection = errors.New("alerts: direction must be below or above")
	// ErrMissingInstrument indicates an empty instrument id.
	ErrMissingInstrument = errors.New("alerts: instrument id is required")
)

// Direction is the crossing direction an alert watches for.
type Direction string

const (
	Below Direction = "below"
	Above Direction = "above"
)

// ParseDirection normalises user input into a Direction.
func ParseDirection(v string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(v))) {
	case Below:
		return Below, nil
	case Above:
		return Above, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, v)
	}
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Below || d == Above
}

func (d Direction) verb() string {
	if d == Above {
		return "rose above"
	}
	return "crossed below"
}

// Alert is a user-defined watch rule over one instrument.
type Alert struct {
	ID              string
	InstrumentID    string
	InstrumentLabel string
	TargetPrice     decimal.Decimal
	Direction       Direction
	Enabled         bool
	CreatedAt       time.Time
	TriggeredAt     *time.Time
}

// Armed reports whether the alert is eligible for crossing detection.
func (a Alert) Armed() bool {
	return a.Enabled && a.TriggeredAt == nil
}

// State names the lifecycle state for display.
func (a Alert) State() string {
	switch {
	case a.TriggeredAt != nil:
		return "triggered"
	case !a.Enabled:
		return "disabled"
	default:
		return "active"
	}
}

func (a Alert) clone() Alert {
	if a.TriggeredAt != nil {
		ts := *a.TriggeredAt
		a.TriggeredAt = &ts
	}
	return a
}

func cloneAll(list []Alert) []Alert {
	out := make([]Alert, len(list))
	for i := range list {
		out[i] = list[i].clone()
	}
	return out
}

// Quote is one (instrument, price) pair delivered by the price feed.
type Quote struct {
	InstrumentID string
	Price        float64
}

// Snapshot is one tick of current prices for the tracked instruments.
type Snapshot []Quote
