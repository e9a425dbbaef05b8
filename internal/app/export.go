package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"commodity-price-alerts/internal/alerts"
)

// ExportOptions hold output paths for exporting the alert list.
type ExportOptions struct {
	PNGPath string
	CSVPath string
}

// Export renders the persisted alerts as CSV and/or a PNG chart of targets.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	backend, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	store := alerts.NewStore(backend, a.Config.Storage.Key, a.Config.Storage.WriteTimeout, a.Logger)
	list := store.LoadAll(ctx)
	if len(list) == 0 {
		a.Logger.Info().Msg("no alerts to export")
		return nil
	}
	a.Logger.Info().Int("alerts", len(list)).Msg("exporting alerts")

	if opts.CSVPath != "" {
		if err := writeAlertsCSV(opts.CSVPath, list); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeTargetsPNG(opts.PNGPath, list); err != nil {
			return err
		}
	}

	return nil
}

func writeAlertsCSV(path string, list []alerts.Alert) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"id", "instrument_id", "instrument_label", "direction", "target_price", "enabled", "state", "created_at", "triggered_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, alert := range list {
		triggered := ""
		if alert.TriggeredAt != nil {
			triggered = alert.TriggeredAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			alert.ID,
			alert.InstrumentID,
			alert.InstrumentLabel,
			string(alert.Direction),
			alert.TargetPrice.String(),
			strconv.FormatBool(alert.Enabled),
			alert.State(),
			alert.CreatedAt.UTC().Format(time.RFC3339),
			triggered,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

var stateColors = map[string]drawing.Color{
	"active":    chart.ColorBlue,
	"triggered": chart.ColorRed,
	"disabled":  chart.ColorAlternateGray,
}

func writeTargetsPNG(path string, list []alerts.Alert) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, 0, len(list))
	for _, alert := range list {
		bars = append(bars, chart.Value{
			Label: alert.InstrumentLabel + " (" + string(alert.Direction) + ")",
			Value: alert.TargetPrice.InexactFloat64(),
			Style: chart.Style{
				FillColor:   stateColors[alert.State()],
				StrokeColor: stateColors[alert.State()],
			},
		})
	}

	graph := chart.BarChart{
		Title:    "Alert targets",
		Width:    1280,
		Height:   720,
		BarWidth: 60,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
