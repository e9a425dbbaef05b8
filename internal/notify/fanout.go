package notify

import (
	"context"
	"errors"

	"commodity-price-alerts/internal/alerts"
)

// Fanout treats several system notifiers as one channel.
type Fanout []alerts.SystemNotifier

// QueryPermission is granted if any member is granted, undetermined if any is
// still undetermined, denied otherwise.
func (f Fanout) QueryPermission() alerts.Permission {
	result := alerts.PermissionDenied
	for _, n := range f {
		switch n.QueryPermission() {
		case alerts.PermissionGranted:
			return alerts.PermissionGranted
		case alerts.PermissionUndetermined:
			result = alerts.PermissionUndetermined
		}
	}
	return result
}

// RequestPermission asks every undetermined member.
func (f Fanout) RequestPermission(ctx context.Context) (alerts.Permission, error) {
	var errs []error
	for _, n := range f {
		if n.QueryPermission() != alerts.PermissionUndetermined {
			continue
		}
		if _, err := n.RequestPermission(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return f.QueryPermission(), errors.Join(errs...)
}

// Show posts through every granted member; one failing does not stop the rest.
func (f Fanout) Show(ctx context.Context, msg alerts.Notification) error {
	var errs []error
	for _, n := range f {
		if n.QueryPermission() != alerts.PermissionGranted {
			continue
		}
		if err := n.Show(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ alerts.SystemNotifier = Fanout(nil)
