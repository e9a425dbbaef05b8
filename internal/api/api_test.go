package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commodity-price-alerts/internal/alerts"
	"commodity-price-alerts/internal/kv"
)

type harness struct {
	engine  *alerts.Engine
	backend *kv.Memory
	client  *Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := kv.NewMemory()
	store := alerts.NewStore(backend, "price-alerts", time.Second, zerolog.Nop())
	engine := alerts.NewEngine(context.Background(), store, nil, zerolog.Nop())

	mux := http.NewServeMux()
	for path, h := range NewHandler(engine, zerolog.Nop()).Routes() {
		mux.Handle(path, h)
	}
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &harness{engine: engine, backend: backend, client: NewClient(ts.URL, time.Second)}
}

func (h *harness) persisted(t *testing.T) []alerts.Alert {
	t.Helper()
	return alerts.NewStore(h.backend, "price-alerts", time.Second, zerolog.Nop()).LoadAll(context.Background())
}

func TestMutationsReachTheRunningEngine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Create(ctx, "wheat", "Wheat", decimal.RequireFromString("2500"), alerts.Above)
	require.NoError(t, err)

	onion, err := h.client.Create(ctx, CreateRequest{InstrumentID: "onion", Label: "Onion", TargetPrice: "18", Direction: "below"})
	require.NoError(t, err)
	assert.True(t, onion.Armed())

	h.engine.EvaluateTick(ctx, alerts.Snapshot{{InstrumentID: "wheat", Price: 2400}})
	fired := h.engine.EvaluateTick(ctx, alerts.Snapshot{{InstrumentID: "wheat", Price: 2510}})
	require.Len(t, fired, 1)

	persisted := h.persisted(t)
	require.Len(t, persisted, 2, "a trigger save must not drop alerts created through the API")
	assert.Equal(t, onion.ID, persisted[1].ID)
	assert.NotNil(t, persisted[0].TriggeredAt)
}

func TestClientLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.client.Create(ctx, CreateRequest{InstrumentID: "onion", Label: "Onion (Nashik Red)", TargetPrice: "18.5", Direction: "below"})
	require.NoError(t, err)
	assert.True(t, created.TargetPrice.Equal(decimal.RequireFromString("18.5")))
	assert.Equal(t, alerts.Below, created.Direction)

	list, err := h.client.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Onion (Nashik Red)", list[0].InstrumentLabel)

	toggled, ok, err := h.client.Toggle(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "disabled", toggled.State())

	reset, ok, err := h.client.Reset(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, reset.Armed())

	removed, err := h.client.Remove(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, h.engine.Alerts())
}

func TestUnknownIDIsNotAnError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, ok, err := h.client.Toggle(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = h.client.Reset(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := h.client.Remove(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bad := []CreateRequest{
		{InstrumentID: "onion", TargetPrice: "-1", Direction: "below"},
		{InstrumentID: "onion", TargetPrice: "18", Direction: "sideways"},
		{InstrumentID: "", TargetPrice: "18", Direction: "below"},
		{InstrumentID: "onion", TargetPrice: "abc", Direction: "below"},
	}
	for _, req := range bad {
		_, err := h.client.Create(ctx, req)
		assert.ErrorContains(t, err, "server returned 400", req)
	}
	assert.Empty(t, h.engine.Alerts())
}

func TestClientReportsUnavailableServer(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClient(url, time.Second).List(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClientRejectsForeignNotFound(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := NewClient(ts.URL, time.Second).Remove(context.Background(), "a")
	assert.ErrorContains(t, err, "server returned 404")
}
