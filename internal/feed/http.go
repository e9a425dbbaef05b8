package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"commodity-price-alerts/internal/alerts"
	"commodity-price-alerts/internal/metrics"
)

const maxSnapshotBytes = 4 << 20

// HTTPOptions parameterise the polled snapshot source.
type HTTPOptions struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// HTTP polls a JSON snapshot endpoint.
type HTTP struct {
	opts   HTTPOptions
	logger zerolog.Logger
	client *http.Client
}

// NewHTTP constructs an HTTP poller.
func NewHTTP(opts HTTPOptions, logger zerolog.Logger) *HTTP {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		opts:   opts,
		logger: logger.With().Str("component", "http_feed").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Poll fetches the current snapshot.
func (h *HTTP) Poll(ctx context.Context) (alerts.Snapshot, error) {
	if h.opts.URL == "" {
		return nil, errors.New("feed url not configured")
	}

	start := time.Now()
	defer func() {
		metrics.FeedLatency.WithLabelValues("http").Observe(time.Since(start).Seconds())
	}()

	snap, err := h.fetch(ctx)
	if err != nil {
		metrics.FeedErrors.WithLabelValues("http").Inc()
		return nil, err
	}
	h.logger.Debug().Int("quotes", len(snap)).Msg("snapshot fetched")
	return snap, nil
}

func (h *HTTP) fetch(ctx context.Context) (alerts.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.opts.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "pricealerts/1.0")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}
	return Decode(payload)
}

func parseHTTPError(status int, payload []byte) error {
	if body := strings.TrimSpace(string(payload)); body != "" {
		if len(body) > 256 {
			body = body[:256]
		}
		return fmt.Errorf("price feed error (%d): %s", status, body)
	}
	return fmt.Errorf("price feed error (%d)", status)
}

var _ Poller = (*HTTP)(nil)
