package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"commodity-price-alerts/internal/alerts"
	"commodity-price-alerts/internal/api"
	"commodity-price-alerts/internal/config"
	"commodity-price-alerts/internal/feed"
	"commodity-price-alerts/internal/kv"
	"commodity-price-alerts/internal/metrics"
	"commodity-price-alerts/internal/notify"
	"commodity-price-alerts/internal/scheduler"
	"commodity-price-alerts/internal/service"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives human-readable command output.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// session bundles an engine with the resources it holds open.
type session struct {
	engine     *alerts.Engine
	dispatcher *alerts.Dispatcher
	board      *notify.ToastBoard
	close      func()
}

func (a *App) openStore(ctx context.Context) (kv.Store, func(), error) {
	backend, err := kv.Open(ctx, a.Config.Storage)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := backend.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close storage")
		}
	}
	return backend, closer, nil
}

func (a *App) newToastBoard() *notify.ToastBoard {
	return notify.NewToastBoard(a.Config.Notify.Toast.TTL, a.Logger)
}

// newSystemNotifier assembles Channel B from every configured backend.
func (a *App) newSystemNotifier() alerts.SystemNotifier {
	var members notify.Fanout

	if a.Config.Notify.Telegram.Enabled {
		cfg := a.Config.Notify.Telegram
		members = append(members, notify.NewTelegram(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Notify.System.Timeout, a.Logger))
	}

	if len(a.Config.Notify.Push.URLs) > 0 {
		push, err := notify.NewPush(a.Config.Notify.Push.URLs, a.Config.Notify.System.Timeout, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("push notifications disabled")
		}
		members = append(members, push)
	}

	if len(members) == 0 {
		return nil
	}
	return notify.NewCoalescer(members, a.Config.Notify.System.CoalesceWindow)
}

func (a *App) newDispatcher(toaster alerts.Toaster) *alerts.Dispatcher {
	return alerts.NewDispatcher(toaster, a.newSystemNotifier(), a.Config.Notify.System.Timeout, a.Logger)
}

// openSession opens storage, takes the writer lock and builds an engine over
// it. Only one session per backend may exist at a time.
func (a *App) openSession(ctx context.Context) (*session, error) {
	backend, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	unlock, err := kv.AcquireWriter(ctx, backend)
	if err != nil {
		closeStore()
		if errors.Is(err, kv.ErrLocked) {
			return nil, fmt.Errorf("another pricealerts run owns this storage: %w", err)
		}
		return nil, err
	}

	board := a.newToastBoard()
	dispatcher := a.newDispatcher(board)
	store := alerts.NewStore(backend, a.Config.Storage.Key, a.Config.Storage.WriteTimeout, a.Logger)
	engine := alerts.NewEngine(ctx, store, dispatcher, a.Logger)

	return &session{
		engine:     engine,
		dispatcher: dispatcher,
		board:      board,
		close: func() {
			dispatcher.Wait()
			unlock()
			closeStore()
		},
	}, nil
}

func (a *App) newFeed() (feed.Poller, feed.Streamer, func(), error) {
	switch a.Config.Feed.Source {
	case config.SourceKafka:
		cfg := a.Config.Feed.Kafka
		k, err := feed.NewKafka(feed.KafkaOptions{Brokers: cfg.Brokers, Topic: cfg.Topic, GroupID: cfg.GroupID}, a.Logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return nil, k, func() {
			if err := k.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("failed to close kafka reader")
			}
		}, nil
	default:
		cfg := a.Config.Feed.HTTP
		poller := feed.NewHTTP(feed.HTTPOptions{URL: cfg.URL, Timeout: cfg.Timeout, UserAgent: cfg.UserAgent}, a.Logger)
		return poller, nil, func() {}, nil
	}
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	if err := a.Config.ValidateFeed(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	// Telegram stays undetermined until asked; do it before the first tick.
	sess.dispatcher.RequestPermission()

	unsubscribe := sess.engine.Subscribe(func(ev alerts.Event) {
		a.Logger.Debug().Str("event", string(ev.Kind)).Str("alert_id", ev.Alert.ID).Msg("alert event")
	})
	defer unsubscribe()

	poller, streamer, closeFeed, err := a.newFeed()
	if err != nil {
		return err
	}
	defer closeFeed()

	var sched *scheduler.Scheduler
	if poller != nil {
		sched = scheduler.New(scheduler.Options{
			Interval:     a.Config.Scheduler.Interval,
			AlignToStart: a.Config.Scheduler.AlignToBucket,
			StartupDelay: a.Config.Scheduler.StartupDelay,
			Immediate:    true,
		}, a.Logger)
	}

	svc := service.New(sched, poller, streamer, sess.engine, a.Logger)

	routes := api.NewHandler(sess.engine, a.Logger).Routes()
	routes["/toasts"] = sess.board
	srv := metrics.NewServer(a.Config.Server.Listen, a.Config.Metrics.Enabled, routes, a.Logger)
	opsErr := make(chan error, 1)
	go func() {
		err := srv.Run(ctx)
		if err != nil {
			cancel()
		}
		opsErr <- err
	}()

	a.Logger.Info().Str("feed", a.Config.Feed.Source).Int("alerts", len(sess.engine.Alerts())).Msg("starting monitoring service")
	err = svc.Run(ctx)
	cancel()
	if serr := <-opsErr; serr != nil {
		a.Logger.Error().Err(serr).Msg("ops server terminated with error")
		return fmt.Errorf("serve %s: %w", a.Config.Server.Listen, serr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}
