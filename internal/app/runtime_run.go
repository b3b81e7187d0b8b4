package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dwizi/edge-console/internal/heartbeat"
)

// Run keeps the console data fresh until ctx is done: the pollers, the
// token watcher, the heartbeat monitor and, when enabled, the status API.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("edge-console runtime starting",
		"backend", r.cfg.BaseURL,
		"diagnostics_feed", r.client.HasDiagnosticsFeed(),
		"poll_interval", r.cfg.PollInterval.String(),
		"client_session", r.session,
	)
	r.heartbeat.Beat("runtime", "runtime loop started")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return r.snapshotPoller.Run(groupCtx)
	})
	if r.diagPoller != nil {
		group.Go(func() error {
			return r.diagPoller.Run(groupCtx)
		})
	}
	if r.watcher != nil {
		group.Go(func() error {
			return runMonitored(groupCtx, r.heartbeat, "token-watcher", 0, func(runCtx context.Context) error {
				return r.watcher.Start(runCtx)
			})
		})
	}
	if r.heartbeatMonitor != nil {
		group.Go(func() error {
			return r.heartbeatMonitor.Start(groupCtx)
		})
	}
	if r.httpServer != nil {
		group.Go(func() error {
			r.logger.Info("status api listening", "addr", r.httpServer.Addr)
			return runMonitored(groupCtx, r.heartbeat, "api", 20*time.Second, func(runCtx context.Context) error {
				err := r.httpServer.ListenAndServe()
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return r.httpServer.Shutdown(shutdownCtx)
		})
	}

	err := group.Wait()
	r.heartbeat.Stopped("runtime", "runtime loop stopped")
	r.logger.Info("edge-console runtime stopped")
	return err
}

func (r *Runtime) Close() error {
	if r.bus != nil {
		r.bus.Close()
	}
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

func runMonitored(
	ctx context.Context,
	reporter heartbeat.Reporter,
	component string,
	beatInterval time.Duration,
	run func(context.Context) error,
) error {
	if run == nil {
		return nil
	}
	if reporter != nil {
		reporter.Starting(component, "starting")
		reporter.Beat(component, "running")
	}

	var stopHeartbeat func()
	if reporter != nil && beatInterval > 0 {
		heartbeatCtx, cancel := context.WithCancel(ctx)
		stopHeartbeat = cancel
		go func() {
			ticker := time.NewTicker(beatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-heartbeatCtx.Done():
					return
				case <-ticker.C:
					reporter.Beat(component, "running")
				}
			}
		}()
	}

	err := run(ctx)
	if stopHeartbeat != nil {
		stopHeartbeat()
	}
	if reporter == nil {
		return err
	}
	if err != nil && ctx.Err() == nil {
		reporter.Degrade(component, "component failed", err)
		return err
	}
	reporter.Stopped(component, "stopped")
	return err
}
