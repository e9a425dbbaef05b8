package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/rs/zerolog"

	"commodity-price-alerts/internal/alerts"
)

// Push delivers system notifications through shoutrrr service URLs
// (ntfy, gotify, pushover, slack, ...).
type Push struct {
	sender *router.ServiceRouter
	logger zerolog.Logger
}

// NewPush validates the URLs up front. An unusable configuration yields a
// notifier whose permission is denied.
func NewPush(urls []string, timeout time.Duration, logger zerolog.Logger) (*Push, error) {
	p := &Push{logger: logger.With().Str("component", "notify_push").Logger()}
	if len(urls) == 0 {
		return p, nil
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return p, fmt.Errorf("create push sender: %w", err)
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	p.sender = sender
	return p, nil
}

// QueryPermission is granted once a sender exists.
func (p *Push) QueryPermission() alerts.Permission {
	if p.sender == nil {
		return alerts.PermissionDenied
	}
	return alerts.PermissionGranted
}

// RequestPermission cannot change anything for push URLs.
func (p *Push) RequestPermission(context.Context) (alerts.Permission, error) {
	return p.QueryPermission(), nil
}

// Show sends to every configured URL. The router does not take a context;
// each send is bounded by the router timeout set in NewPush.
func (p *Push) Show(_ context.Context, n alerts.Notification) error {
	if p.sender == nil {
		return errors.New("push sender not configured")
	}
	params := types.Params{"title": n.Title}
	var errs []error
	for _, err := range p.sender.Send(n.Body, &params) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("push delivery: %w", errors.Join(errs...))
	}
	p.logger.Info().Str("tag", n.Tag).Msg("push notification sent")
	return nil
}

var _ alerts.SystemNotifier = (*Push)(nil)
