package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"commodity-price-alerts/internal/alerts"
	"commodity-price-alerts/internal/feed"
	"commodity-price-alerts/internal/kv"
	"commodity-price-alerts/internal/service"
)

// SimulateOptions describe one alert and the price path replayed against it.
type SimulateOptions struct {
	InstrumentID string
	Label        string
	Target       string
	Direction    string
	Prices       []float64
}

// Simulate replays a price path against a fresh in-memory engine and
// notifies through the configured channels.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if len(opts.Prices) == 0 {
		return errors.New("at least one price is required")
	}
	target, err := alerts.ParseTarget(opts.Target)
	if err != nil {
		return err
	}
	direction, err := alerts.ParseDirection(opts.Direction)
	if err != nil {
		return err
	}
	label := opts.Label
	if strings.TrimSpace(label) == "" {
		label = opts.InstrumentID
	}

	board := a.newToastBoard()
	dispatcher := a.newDispatcher(board)
	defer dispatcher.Wait()
	// Resolve permission up front so a crossing on the first ticks is delivered.
	dispatcher.RequestPermission()
	dispatcher.Wait()

	store := alerts.NewStore(kv.NewMemory(), a.Config.Storage.Key, a.Config.Storage.WriteTimeout, a.Logger)
	engine := alerts.NewEngine(ctx, store, dispatcher, a.Logger)
	if _, err := engine.Create(ctx, opts.InstrumentID, label, target, direction); err != nil {
		return err
	}

	snapshots := make([]alerts.Snapshot, len(opts.Prices))
	for i, price := range opts.Prices {
		snapshots[i] = alerts.Snapshot{{InstrumentID: opts.InstrumentID, Price: price}}
	}
	source := feed.NewStatic(snapshots...)
	svc := service.New(nil, source, nil, engine, a.Logger)

	for n := 0; source.Remaining() > 0; n++ {
		if err := svc.ProcessTick(ctx, time.Now().UTC()); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "tick %d: %s %v\n", n+1, opts.InstrumentID, opts.Prices[n])
	}

	toasts := board.List()
	if len(toasts) == 0 {
		fmt.Fprintln(a.Out, "no alert fired")
		return nil
	}
	for i := len(toasts) - 1; i >= 0; i-- {
		fmt.Fprintf(a.Out, "[%s] %s: %s\n", humanize.Time(toasts[i].CreatedAt), toasts[i].Title, toasts[i].Body)
	}
	return nil
}
