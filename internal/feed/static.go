package feed

import (
	"context"
	"errors"
	"sync"

	"commodity-price-alerts/internal/alerts"
)

// ErrExhausted is returned once a Static source has replayed every snapshot.
var ErrExhausted = errors.New("feed: no more snapshots")

// Static replays a fixed sequence of snapshots, one per Poll.
type Static struct {
	mu        sync.Mutex
	snapshots []alerts.Snapshot
	next      int
}

// NewStatic builds a replaying source.
func NewStatic(snapshots ...alerts.Snapshot) *Static {
	return &Static{snapshots: snapshots}
}

// Poll returns the next snapshot or ErrExhausted.
func (s *Static) Poll(context.Context) (alerts.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.snapshots) {
		return nil, ErrExhausted
	}
	snap := s.snapshots[s.next]
	s.next++
	return snap, nil
}

// Remaining reports how many snapshots are left.
func (s *Static) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots) - s.next
}

var _ Poller = (*Static)(nil)
