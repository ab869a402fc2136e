// Package runner drives the full pipeline in a single process: scheduled
// discovery, fetch, and sweep tickers, a notification consumer chaining the
// stages together, and the read API server.
package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/revloop/revloop/internal/api"
	"github.com/revloop/revloop/internal/config"
	"github.com/revloop/revloop/internal/discovery"
	"github.com/revloop/revloop/internal/fetch"
	"github.com/revloop/revloop/internal/notify"
	notifymem "github.com/revloop/revloop/internal/notify/memory"
	"github.com/revloop/revloop/internal/parser"
	"github.com/revloop/revloop/internal/sweeper"
)

// Runner owns the long-running loops of the engine.
type Runner struct {
	cfg        config.Config
	discovery  *discovery.Engine
	pool       *fetch.Pool
	dispatcher *parser.Dispatcher
	sweeper    *sweeper.Sweeper
	server     *api.Server
	bus        *notifymem.Bus
	logger     *zap.Logger
}

// New constructs a Runner. The bus may be nil when notifications flow
// through an external transport; the reactive consumer loop is then skipped
// and the scheduled tickers carry the pipeline alone.
func New(
	cfg config.Config,
	disc *discovery.Engine,
	pool *fetch.Pool,
	dispatcher *parser.Dispatcher,
	sw *sweeper.Sweeper,
	server *api.Server,
	bus *notifymem.Bus,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		discovery:  disc,
		pool:       pool,
		dispatcher: dispatcher,
		sweeper:    sw,
		server:     server,
		bus:        bus,
		logger:     logger,
	}
}

// Run blocks until the context is canceled, then drains the HTTP server and
// returns. Each loop failure is logged and retried on the next tick; an
// individual pass never takes the process down.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := r.server.ListenAndServe(); err != nil {
			errCh <- err
			cancel()
		}
	}()

	if r.bus != nil {
		go r.consumeLoop(ctx)
	} else {
		r.logger.Warn("no in-process bus; reactive pipeline disabled, relying on scheduled passes")
	}

	go r.tickLoop(ctx, "discover", r.cfg.Schedule.DiscoverSeconds, func(ctx context.Context) error {
		return r.discovery.SweepAll(ctx)
	})
	go r.tickLoop(ctx, "fetch", r.cfg.Schedule.FetchSeconds, func(ctx context.Context) error {
		return r.pool.Run(ctx)
	})
	go r.tickLoop(ctx, "sweep", r.cfg.Schedule.SweepSeconds, func(ctx context.Context) error {
		_, err := r.sweeper.SweepAll(ctx)
		return err
	})

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := r.server.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("api server shutdown failed", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// tickLoop runs fn immediately and then on every interval tick.
func (r *Runner) tickLoop(ctx context.Context, name string, seconds int, fn func(context.Context) error) {
	if seconds <= 0 {
		r.logger.Info("scheduled pass disabled", zap.String("pass", name))
		return
	}
	interval := time.Duration(seconds) * time.Second

	run := func() {
		start := time.Now()
		if err := fn(ctx); err != nil {
			r.logger.Error("scheduled pass failed",
				zap.String("pass", name), zap.Error(err))
			return
		}
		r.logger.Info("scheduled pass complete",
			zap.String("pass", name),
			zap.Duration("duration", time.Since(start)))
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// consumeLoop drains the in-process bus, chaining stored pages into parsing
// and changed facts back into discovery.
func (r *Runner) consumeLoop(ctx context.Context) {
	for {
		env, err := r.bus.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("bus receive failed", zap.Error(err))
			return
		}
		r.handleEnvelope(ctx, env)
	}
}

func (r *Runner) handleEnvelope(ctx context.Context, env notifymem.Envelope) {
	switch payload := env.Payload.(type) {
	case notify.PageStored:
		if err := r.dispatcher.ProcessPage(ctx, payload.URL); err != nil {
			r.logger.Error("page parse failed",
				zap.String("url", payload.URL), zap.Error(err))
		}
	case notify.FactChanged:
		if err := r.discovery.HandleFactChange(ctx, payload); err != nil {
			r.logger.Error("fact-change handling failed",
				zap.String("user_id", payload.UserID), zap.Error(err))
		}
	default:
		r.logger.Warn("unrecognized bus payload", zap.String("topic", env.Topic))
	}
}
