package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commodity-price-alerts/internal/alerts"
	"commodity-price-alerts/internal/api"
	"commodity-price-alerts/internal/config"
	"commodity-price-alerts/internal/kv"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			Driver:       config.DriverSQLite,
			Key:          "price-alerts",
			WriteTimeout: time.Second,
			SQLitePath:   filepath.Join(t.TempDir(), "alerts.db"),
		},
		Feed:      config.FeedConfig{Source: config.SourceHTTP},
		Scheduler: config.SchedulerConfig{Interval: time.Minute},
		Notify: config.NotifyConfig{
			Toast:  config.ToastConfig{TTL: time.Minute},
			System: config.SystemConfig{Timeout: time.Second},
		},
		Server: config.ServerConfig{Listen: "127.0.0.1:0", ClientTimeout: time.Second},
	}
	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

// serveAlerts stands in for `pricealerts run`: an engine over the app's
// storage behind the alerts API.
func serveAlerts(t *testing.T, a *App) *alerts.Engine {
	t.Helper()
	ctx := context.Background()
	backend, err := kv.Open(ctx, a.Config.Storage)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	store := alerts.NewStore(backend, a.Config.Storage.Key, time.Second, zerolog.Nop())
	engine := alerts.NewEngine(ctx, store, nil, zerolog.Nop())

	mux := http.NewServeMux()
	for path, h := range api.NewHandler(engine, zerolog.Nop()).Routes() {
		mux.Handle(path, h)
	}
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	a.Config.Server.URL = ts.URL
	return engine
}

func seedAlerts(t *testing.T, cfg config.StorageConfig, list ...alerts.Alert) {
	t.Helper()
	ctx := context.Background()
	backend, err := kv.Open(ctx, cfg)
	require.NoError(t, err)
	defer backend.Close()
	alerts.NewStore(backend, cfg.Key, time.Second, zerolog.Nop()).SaveAll(ctx, list)
}

func firstAlertID(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "created "); ok {
			id, _, _ := strings.Cut(rest, ":")
			return id
		}
	}
	t.Fatalf("no created line in %q", out)
	return ""
}

func TestAlertCommandsDriveTheRunningEngine(t *testing.T) {
	a, out := newTestApp(t)
	engine := serveAlerts(t, a)
	ctx := context.Background()

	require.NoError(t, a.AddAlert(ctx, AddOptions{InstrumentID: "onion", Label: "Onion (Nashik Red)", Target: "18", Direction: "below"}))
	id := firstAlertID(t, out.String())

	out.Reset()
	require.NoError(t, a.ListAlerts(ctx))
	assert.Contains(t, out.String(), id)
	assert.Contains(t, out.String(), "Onion (Nashik Red)")
	assert.Contains(t, out.String(), "18.00")
	assert.Contains(t, out.String(), "active")

	live, ok := engine.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Onion (Nashik Red)", live.InstrumentLabel)

	engine.EvaluateTick(ctx, alerts.Snapshot{{InstrumentID: "onion", Price: 20}})
	require.Len(t, engine.EvaluateTick(ctx, alerts.Snapshot{{InstrumentID: "onion", Price: 17.5}}), 1)

	out.Reset()
	require.NoError(t, a.ListAlerts(ctx))
	assert.Contains(t, out.String(), "triggered")

	out.Reset()
	require.NoError(t, a.ToggleAlert(ctx, id))
	assert.Contains(t, out.String(), "disabled")

	out.Reset()
	require.NoError(t, a.ResetAlert(ctx, id))
	assert.Contains(t, out.String(), "active")

	out.Reset()
	require.NoError(t, a.RemoveAlert(ctx, id))
	assert.Contains(t, out.String(), "removed "+id)

	out.Reset()
	require.NoError(t, a.RemoveAlert(ctx, id))
	assert.Contains(t, out.String(), "not found")

	out.Reset()
	require.NoError(t, a.ListAlerts(ctx))
	assert.Contains(t, out.String(), "no alerts configured")
}

func TestAddAlertRejectsBadInput(t *testing.T) {
	a, _ := newTestApp(t)
	serveAlerts(t, a)
	ctx := context.Background()

	assert.Error(t, a.AddAlert(ctx, AddOptions{InstrumentID: "onion", Target: "-1", Direction: "below"}))
	assert.Error(t, a.AddAlert(ctx, AddOptions{InstrumentID: "onion", Target: "18", Direction: "sideways"}))
	assert.Error(t, a.AddAlert(ctx, AddOptions{InstrumentID: "", Target: "18", Direction: "below"}))
}

func TestSimulateFiresOnce(t *testing.T) {
	a, out := newTestApp(t)

	err := a.Simulate(context.Background(), SimulateOptions{
		InstrumentID: "onion",
		Label:        "Onion",
		Target:       "18",
		Direction:    "below",
		Prices:       []float64{20, 17.5, 16},
	})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "tick 3: onion 16")
	assert.Equal(t, 1, strings.Count(text, "Onion is now 17.50 – crossed below 18.00"))
}

func TestAlertCommandsNeedRunningService(t *testing.T) {
	a, _ := newTestApp(t)
	a.Config.Server.URL = "http://127.0.0.1:1"

	err := a.ListAlerts(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrUnavailable)
	assert.Contains(t, err.Error(), "pricealerts run")
}

func TestSimulateWithoutCrossing(t *testing.T) {
	a, out := newTestApp(t)

	err := a.Simulate(context.Background(), SimulateOptions{
		InstrumentID: "wheat",
		Target:       "100",
		Direction:    "above",
		Prices:       []float64{110, 120},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "no alert fired")

	err = a.Simulate(context.Background(), SimulateOptions{InstrumentID: "wheat", Target: "100", Direction: "above"})
	require.Error(t, err)
	assert.Equal(t, "at least one price is required", err.Error())
}

func TestExportWritesCSVAndPNG(t *testing.T) {
	a, _ := newTestApp(t)
	serveAlerts(t, a)
	ctx := context.Background()

	require.NoError(t, a.AddAlert(ctx, AddOptions{InstrumentID: "onion", Label: "Onion", Target: "18", Direction: "below"}))
	require.NoError(t, a.AddAlert(ctx, AddOptions{InstrumentID: "wheat", Label: "Wheat", Target: "2450.5", Direction: "above"}))

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "alerts.csv")
	pngPath := filepath.Join(dir, "out", "targets.png")
	require.NoError(t, a.Export(ctx, ExportOptions{CSVPath: csvPath, PNGPath: pngPath}))

	file, err := os.Open(csvPath)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "instrument_id", records[0][1])
	assert.Equal(t, "onion", records[1][1])
	assert.Equal(t, "2450.5", records[2][4])

	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestExportRequiresOutput(t *testing.T) {
	a, _ := newTestApp(t)
	assert.Error(t, a.Export(context.Background(), ExportOptions{}))
}

func TestRunRequiresFeed(t *testing.T) {
	a, _ := newTestApp(t)
	assert.Error(t, a.Run(context.Background()))
}

func TestRunRefusesSecondWriter(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sqlite writer lock is unix only")
	}
	a, _ := newTestApp(t)
	a.Config.Feed.HTTP.URL = "http://127.0.0.1:1/prices"

	backend, err := kv.Open(context.Background(), a.Config.Storage)
	require.NoError(t, err)
	defer backend.Close()
	release, err := kv.AcquireWriter(context.Background(), backend)
	require.NoError(t, err)
	defer release()

	err = a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, kv.ErrLocked)
}

func TestRunRequestsPermissionAndDeliversTelegram(t *testing.T) {
	var (
		mu        sync.Mutex
		polls     int
		grantedAt = -1
	)
	sent := make(chan string, 4)

	telegram := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			mu.Lock()
			if grantedAt < 0 {
				grantedAt = polls
			}
			mu.Unlock()
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			sent <- body["text"]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer telegram.Close()

	// 20 until a full poll has passed since getMe, then 17.
	prices := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		polls++
		price := 20.0
		if grantedAt >= 0 && polls > grantedAt+1 {
			price = 17
		}
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"quotes": []map[string]any{{"instrumentId": "onion", "price": price}},
		})
	}))
	defer prices.Close()

	a, _ := newTestApp(t)
	a.Config.Feed.HTTP = config.HTTPFeedConfig{URL: prices.URL, Timeout: time.Second}
	a.Config.Scheduler.Interval = 20 * time.Millisecond
	a.Config.Notify.Telegram = config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "chat", APIBase: telegram.URL}
	seedAlerts(t, a.Config.Storage, alerts.Alert{
		ID:              "seeded",
		InstrumentID:    "onion",
		InstrumentLabel: "Onion",
		TargetPrice:     decimal.RequireFromString("18"),
		Direction:       alerts.Below,
		Enabled:         true,
		CreatedAt:       time.Now().UTC(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case text := <-sent:
		assert.Contains(t, text, "Onion is now 17.00 – crossed below 18.00")
	case <-time.After(5 * time.Second):
		t.Error("telegram message was never sent")
	}
	cancel()
	require.NoError(t, <-done)
}
