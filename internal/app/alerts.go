package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"commodity-price-alerts/internal/alerts"
	"commodity-price-alerts/internal/api"
)

// AddOptions describe a new alert.
type AddOptions struct {
	InstrumentID string
	Label        string
	Target       string
	Direction    string
}

// AddAlert validates locally and submits the alert to the running service.
func (a *App) AddAlert(ctx context.Context, opts AddOptions) error {
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

	alert, err := a.client().Create(ctx, api.CreateRequest{
		InstrumentID: opts.InstrumentID,
		Label:        label,
		TargetPrice:  target.String(),
		Direction:    string(direction),
	})
	if err != nil {
		return a.clientError(err)
	}
	fmt.Fprintf(a.Out, "created %s: %s %s %s\n", alert.ID, alert.InstrumentLabel, alert.Direction, alerts.FormatPrice(alert.TargetPrice))
	return nil
}

// ListAlerts prints every alert with its state.
func (a *App) ListAlerts(ctx context.Context) error {
	list, err := a.client().List(ctx)
	if err != nil {
		return a.clientError(err)
	}
	if len(list) == 0 {
		fmt.Fprintln(a.Out, "no alerts configured")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tInstrument\tLabel\tDirection\tTarget\tState\tCreated\tTriggered")
	for _, alert := range list {
		triggered := "-"
		if alert.TriggeredAt != nil {
			triggered = humanize.Time(*alert.TriggeredAt)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.ID,
			alert.InstrumentID,
			sanitizeInline(alert.InstrumentLabel),
			alert.Direction,
			alerts.FormatPrice(alert.TargetPrice),
			alert.State(),
			humanize.Time(alert.CreatedAt),
			triggered,
		)
	}
	return writer.Flush()
}

// ToggleAlert flips an alert between enabled and disabled.
func (a *App) ToggleAlert(ctx context.Context, id string) error {
	return a.mutateAlert(ctx, id, "toggled", a.client().Toggle)
}

// ResetAlert re-arms a triggered alert.
func (a *App) ResetAlert(ctx context.Context, id string) error {
	return a.mutateAlert(ctx, id, "reset", a.client().Reset)
}

// RemoveAlert deletes an alert. Unknown ids are reported but not an error.
func (a *App) RemoveAlert(ctx context.Context, id string) error {
	found, err := a.client().Remove(ctx, id)
	if err != nil {
		return a.clientError(err)
	}
	if !found {
		fmt.Fprintf(a.Out, "alert %s not found\n", id)
		return nil
	}
	fmt.Fprintf(a.Out, "removed %s\n", id)
	return nil
}

func (a *App) mutateAlert(ctx context.Context, id, verb string, fn func(context.Context, string) (alerts.Alert, bool, error)) error {
	alert, ok, err := fn(ctx, id)
	if err != nil {
		return a.clientError(err)
	}
	if !ok {
		fmt.Fprintf(a.Out, "alert %s not found\n", id)
		return nil
	}
	fmt.Fprintf(a.Out, "%s %s: %s\n", verb, alert.ID, alert.State())
	return nil
}

// client reaches the engine owned by `pricealerts run`; the CLI never writes
// storage itself.
func (a *App) client() *api.Client {
	return api.NewClient(a.Config.Server.BaseURL(), a.Config.Server.ClientTimeout)
}

func (a *App) clientError(err error) error {
	if errors.Is(err, api.ErrUnavailable) {
		return fmt.Errorf("%w (is `pricealerts run` running?)", err)
	}
	return err
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
