// Package app provides the top-level lifecycle of a backtest run. It wires
// the configured backends, builds the arena and its collaborators, and serves
// the optional monitoring endpoints while the run executes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/anthias-labs/arena/internal/arena"
	"github.com/anthias-labs/arena/internal/config"
	"github.com/anthias-labs/arena/internal/inspector"
	"github.com/anthias-labs/arena/internal/metrics"
	"github.com/anthias-labs/arena/internal/server"
	"github.com/anthias-labs/arena/internal/server/handler"
	"github.com/anthias-labs/arena/internal/server/ws"
)

const shutdownTimeout = 5 * time.Second

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()

	// Populated by Run for inspection after it returns.
	recorder *inspector.Recorder
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, executes one backtest and returns its result.
// The monitoring server, when enabled, runs alongside and is shut down once
// the run ends and the configured linger elapses.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting backtest",
		slog.Int("steps", a.cfg.Run.Steps),
		slog.String("strategy", a.cfg.Strategy.Name),
		slog.String("node", a.cfg.Node.Kind),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	runID := uuid.New()
	if a.cfg.Run.RunID != "" {
		if runID, err = uuid.Parse(a.cfg.Run.RunID); err != nil {
			return fmt.Errorf("app: run id: %w", err)
		}
	}

	var hub *ws.Hub
	if a.cfg.Stream.Enabled {
		hub = ws.NewHub(a.logger, ws.Config{
			StrategyName: a.cfg.Strategy.Name,
			StartedAt:    time.Now().UTC(),
		})
	}

	a.recorder = newRecorder(runID.String(), deps, hub, a.cfg.Inspector.Publish, a.logger)
	run, err := a.buildArena(runID, a.recorder)
	if err != nil {
		return fmt.Errorf("app: build arena: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	if srv := a.newServer(run, hub); srv != nil {
		g.Go(srv.Start)
		g.Go(func() error {
			<-serveCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if hub != nil {
		g.Go(func() error {
			if err := hub.Run(serveCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		defer stopServing()
		err := run.Run(gctx, arena.NewConfig(a.cfg.Run.Steps))
		a.logger.InfoContext(ctx, "backtest finished",
			slog.String("run_id", runID.String()),
			slog.String("state", run.State().String()),
			slog.Int("steps_logged", len(a.recorder.Records())),
		)
		if hub != nil {
			if perr := hub.PublishStatus(serveCtx, runID.String(), run.State().String()); perr != nil {
				a.logger.Debug("final status not published", slog.String("error", perr.Error()))
			}
		}
		if err == nil {
			a.linger(gctx)
		}
		return err
	})

	return g.Wait()
}

// linger keeps the monitoring server up after a successful run.
func (a *App) linger(ctx context.Context) {
	d := a.cfg.Stream.Linger.Duration
	if !a.cfg.Stream.Enabled || d <= 0 {
		return
	}
	a.logger.Info("keeping server up", slog.Duration("linger", d))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// newServer returns nil when neither the stream nor the metrics endpoint
// is enabled.
func (a *App) newServer(run *arena.Arena[float64], hub *ws.Hub) *server.Server {
	if !a.cfg.Stream.Enabled && !a.cfg.Metrics.Enabled {
		return nil
	}
	var (
		runHandler *handler.RunHandler
		metricsH   http.Handler
	)
	if a.cfg.Stream.Enabled {
		runHandler = handler.NewRunHandler(runStatus{run: run, rec: a.recorder}, a.cfg.Strategy.Name)
	}
	if a.cfg.Metrics.Enabled {
		metricsH = metrics.Handler()
	}
	return server.NewServer(server.Config{
		Addr:        a.cfg.Stream.Addr,
		CORSOrigins: a.cfg.Stream.CORSOrigins,
	}, runHandler, hub, metricsH, a.logger)
}

// Recorder returns the inspector of the last Run, or nil before Run.
func (a *App) Recorder() *inspector.Recorder {
	return a.recorder
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
