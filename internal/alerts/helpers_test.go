package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"commodity-price-alerts/internal/kv"
)

type recordingToaster struct {
	mu     sync.Mutex
	bodies []string
}

func (r *recordingToaster) Show(_, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, body)
}

func (r *recordingToaster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

type scriptedSystem struct {
	mu        sync.Mutex
	perm      Permission
	grantTo   Permission
	requested int
	tags      []string
	keys      []string
	showErr   error
	panicShow bool
	block     chan struct{}
	showing   chan struct{}
	release   chan struct{}
}

func (s *scriptedSystem) QueryPermission() Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perm
}

func (s *scriptedSystem) RequestPermission(context.Context) (Permission, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested++
	s.perm = s.grantTo
	return s.perm, nil
}

func (s *scriptedSystem) Show(_ context.Context, n Notification) error {
	if s.panicShow {
		panic("system channel exploded")
	}
	if s.showing != nil {
		s.showing <- struct{}{}
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.showErr != nil {
		return s.showErr
	}
	s.tags = append(s.tags, n.Tag)
	s.keys = append(s.keys, n.Key)
	return nil
}

func (s *scriptedSystem) shown() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tags...)
}

type failingKV struct {
	getErr error
	setErr error
	sets   int
}

func (f *failingKV) Get(context.Context, string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return nil, kv.ErrNotFound
}

func (f *failingKV) Set(context.Context, string, []byte) error {
	f.sets++
	return f.setErr
}

var errQuota = errors.New("quota exceeded")

type fixture struct {
	engine  *Engine
	store   *Store
	backend KeyValue
	toaster *recordingToaster
	system  *scriptedSystem
	clock   *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("alert-%d", n)
	}
}

func newFixture(t *testing.T, backend KeyValue) *fixture {
	t.Helper()
	if backend == nil {
		backend = kv.NewMemory()
	}
	logger := zerolog.Nop()
	f := &fixture{
		backend: backend,
		toaster: &recordingToaster{},
		system:  &scriptedSystem{perm: PermissionGranted, grantTo: PermissionGranted},
		clock:   &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.store = NewStore(backend, "price-alerts", time.Second, logger)
	dispatcher := NewDispatcher(f.toaster, f.system, time.Second, logger)
	f.engine = NewEngine(context.Background(), f.store, dispatcher, logger,
		WithClock(f.clock.Now), WithIDGenerator(sequentialIDs()))
	t.Cleanup(dispatcher.Wait)
	return f
}

func (f *fixture) tick(t *testing.T, instrument string, price float64) []Alert {
	t.Helper()
	return f.engine.EvaluateTick(context.Background(), Snapshot{{InstrumentID: instrument, Price: price}})
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
