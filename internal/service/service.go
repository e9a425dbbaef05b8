package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"commodity-price-alerts/internal/alerts"
	"commodity-price-alerts/internal/feed"
	"commodity-price-alerts/internal/scheduler"
)

// Service feeds price snapshots into the alert engine.
type Service struct {
	scheduler *scheduler.Scheduler
	poller    feed.Poller
	streamer  feed.Streamer
	engine    *alerts.Engine
	logger    zerolog.Logger
}

// New constructs the monitoring service. Either a poller (driven by sched) or
// a streamer must be supplied; the streamer wins when both are.
func New(sched *scheduler.Scheduler, poller feed.Poller, streamer feed.Streamer, engine *alerts.Engine, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		poller:    poller,
		streamer:  streamer,
		engine:    engine,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run blocks until ctx is cancelled or the feed fails permanently.
func (s *Service) Run(ctx context.Context) error {
	if s.engine == nil {
		return fmt.Errorf("alert engine not configured")
	}
	if s.streamer != nil {
		s.logger.Info().Msg("consuming streamed snapshots")
		return s.streamer.Stream(ctx, s.handleSnapshot)
	}
	if s.scheduler == nil || s.poller == nil {
		return fmt.Errorf("scheduler and poller must be configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick polls one snapshot and evaluates it. A failed poll is a missed
// tick; detection resumes against the last received price on the next one.
func (s *Service) ProcessTick(ctx context.Context, at time.Time) error {
	snap, err := s.poller.Poll(ctx)
	if err != nil {
		return fmt.Errorf("poll price feed: %w", err)
	}
	s.evaluate(ctx, snap, at)
	return nil
}

func (s *Service) handleSnapshot(ctx context.Context, snap alerts.Snapshot) {
	s.evaluate(ctx, snap, time.Now().UTC())
}

func (s *Service) evaluate(ctx context.Context, snap alerts.Snapshot, at time.Time) {
	triggered := s.engine.EvaluateTick(ctx, snap)
	s.logger.Debug().Time("tick", at).
		Int("quotes", len(snap)).
		Int("triggered", len(triggered)).
		Msg("snapshot evaluated")
}
