package alerts

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"commodity-price-alerts/internal/metrics"
)

const (
	defaultNotifyTimeout = 5 * time.Second
	notificationTitle    = "Price alert"
	tagPrefix            = "price-alert-"
)

// Permission is the host's answer to "may we post system notifications".
type Permission string

const (
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
	PermissionUndetermined Permission = "undetermined"
)

// Toaster is the in-app channel. Show is fire-and-forget.
type Toaster interface {
	Show(title, body string)
}

// Notification is one post on the system channel.
type Notification struct {
	Title string
	Body  string
	// Tag lets the host replace an earlier notification for the same alert.
	Tag string
	// Key identifies one trigger. It differs each time a re-armed alert fires.
	Key string
}

// SystemNotifier is the OS-level channel guarded by a permission.
type SystemNotifier interface {
	QueryPermission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Show(ctx context.Context, n Notification) error
}

// Dispatcher delivers a crossing through both channels independently.
type Dispatcher struct {
	toaster Toaster
	system  SystemNotifier
	timeout time.Duration
	logger  zerolog.Logger

	requesting atomic.Bool
	pending    sync.WaitGroup
}

// NewDispatcher wires the two channels; either may be nil.
func NewDispatcher(toaster Toaster, system SystemNotifier, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &Dispatcher{
		toaster: toaster,
		system:  system,
		timeout: timeout,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Message renders the notification body for a crossing.
func Message(alert Alert, price decimal.Decimal) string {
	return fmt.Sprintf("%s is now %s – %s %s",
		alert.InstrumentLabel,
		FormatPrice(price),
		alert.Direction.verb(),
		FormatPrice(alert.TargetPrice),
	)
}

// FormatPrice shows at least two decimals and never rounds away a
// significant sub-cent digit.
func FormatPrice(d decimal.Decimal) string {
	places := int32(2)
	if _, frac, ok := strings.Cut(d.String(), "."); ok && int32(len(frac)) > places {
		places = int32(len(frac))
	}
	return d.StringFixed(places)
}

// Tag is the dedupe tag handed to the system channel for an alert.
func Tag(alertID string) string {
	return tagPrefix + alertID
}

func triggerKey(alert Alert) string {
	if alert.TriggeredAt == nil {
		return Tag(alert.ID)
	}
	return Tag(alert.ID) + "@" + strconv.FormatInt(alert.TriggeredAt.UnixNano(), 10)
}

// Dispatch attempts both channels. Nothing is returned: delivery is best-effort.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert, price decimal.Decimal) {
	if d == nil {
		return
	}
	body := Message(alert, price)
	d.showToast(alert, body)
	d.showSystem(ctx, alert, body)
}

func (d *Dispatcher) showToast(alert Alert, body string) {
	if d.toaster == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.DispatchFailures.WithLabelValues("toast").Inc()
			d.logger.Error().Interface("panic", r).Str("alert_id", alert.ID).Msg("toast channel failed")
		}
	}()
	d.toaster.Show(notificationTitle, body)
	metrics.Dispatched.WithLabelValues("toast").Inc()
}

func (d *Dispatcher) showSystem(ctx context.Context, alert Alert, body string) {
	if d.system == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.DispatchFailures.WithLabelValues("system").Inc()
			d.logger.Error().Interface("panic", r).Str("alert_id", alert.ID).Msg("system channel failed")
		}
	}()

	if perm := d.system.QueryPermission(); perm != PermissionGranted {
		d.logger.Debug().Str("permission", string(perm)).Str("alert_id", alert.ID).Msg("system notification skipped")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	n := Notification{Title: notificationTitle, Body: body, Tag: Tag(alert.ID), Key: triggerKey(alert)}
	if err := d.system.Show(ctx, n); err != nil {
		metrics.DispatchFailures.WithLabelValues("system").Inc()
		d.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("system notification failed")
		return
	}
	metrics.Dispatched.WithLabelValues("system").Inc()
}

// RequestPermission asks the system channel for permission in the background
// when it is still undetermined. At most one request is in flight.
func (d *Dispatcher) RequestPermission() {
	if d == nil || d.system == nil {
		return
	}
	if d.system.QueryPermission() != PermissionUndetermined {
		return
	}
	if !d.requesting.CompareAndSwap(false, true) {
		return
	}

	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		defer d.requesting.Store(false)
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().Interface("panic", r).Msg("permission request failed")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		perm, err := d.system.RequestPermission(ctx)
		if err != nil {
			d.logger.Warn().Err(err).Msg("notification permission request failed")
			return
		}
		d.logger.Info().Str("permission", string(perm)).Msg("notification permission resolved")
	}()
}

// Wait blocks until background permission requests have finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.pending.Wait()
}
