package notify

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"commodity-price-alerts/internal/alerts"
)

// Coalescer drops a repeat post of the same trigger within the window. It
// keys on Notification.Key, so an alert that is re-armed and fires again is
// always delivered.
type Coalescer struct {
	next alerts.SystemNotifier
	seen *cache.Cache
}

// NewCoalescer wraps next. A non-positive window disables coalescing.
func NewCoalescer(next alerts.SystemNotifier, window time.Duration) alerts.SystemNotifier {
	if window <= 0 {
		return next
	}
	return &Coalescer{next: next, seen: cache.New(window, 2*window)}
}

func (c *Coalescer) QueryPermission() alerts.Permission {
	return c.next.QueryPermission()
}

func (c *Coalescer) RequestPermission(ctx context.Context) (alerts.Permission, error) {
	return c.next.RequestPermission(ctx)
}

// Show forwards the first post per trigger key within the window.
func (c *Coalescer) Show(ctx context.Context, n alerts.Notification) error {
	key := n.Key
	if key == "" {
		key = n.Tag
	}
	if key != "" {
		if err := c.seen.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
			return nil
		}
	}
	if err := c.next.Show(ctx, n); err != nil {
		c.seen.Delete(key)
		return err
	}
	return nil
}
