// Package app assembles the console runtime: backend client, token
// sources, pollers, the bus they publish on, the local store and the
// optional status API.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dwizi/edge-console/internal/adminclient"
	"github.com/dwizi/edge-console/internal/auth"
	"github.com/dwizi/edge-console/internal/bus"
	"github.com/dwizi/edge-console/internal/config"
	"github.com/dwizi/edge-console/internal/heartbeat"
	"github.com/dwizi/edge-console/internal/httpapi"
	"github.com/dwizi/edge-console/internal/poller"
	"github.com/dwizi/edge-console/internal/snapshot"
	"github.com/dwizi/edge-console/internal/store"
	"github.com/dwizi/edge-console/internal/watcher"
)

func New(cfg config.Config, logger *slog.Logger, opts Options) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}

	tokens, tokenFile, err := ResolveTokenSource(cfg, opts.Token)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}
	client, err := adminclient.New(cfg, tokens)
	if err != nil {
		sqlStore.Close()
		return nil, fmt.Errorf("create admin client: %w", err)
	}

	rt := &Runtime{
		cfg:       cfg,
		logger:    logger,
		version:   opts.Version,
		session:   uuid.NewString(),
		client:    client,
		tokens:    tokens,
		tokenFile: tokenFile,
		store:     sqlStore,
		bus:       bus.New(),
		heartbeat: heartbeat.NewRegistry(),
		metrics:   prometheus.NewRegistry(),
	}
	rt.activity = NewActivityReporter(client, 30*time.Second, logger.With("component", "activity"))
	rt.mutator = NewAuditedClient(client, sqlStore, logger.With("component", "audit"))

	staleAfter := rt.staleAfter()
	rt.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		heartbeat.NewCollector(rt.heartbeat, staleAfter),
	)
	rt.pollMetrics = poller.NewMetrics(rt.metrics)

	_, rt.setSnapshot = bus.Register[*snapshot.Snapshot](rt.bus, snapshot.BusKey, nil)
	_, rt.setDiag = bus.Register[*snapshot.Diagnostics](rt.bus, snapshot.DiagnosticsBusKey, nil)
	_, rt.setHealth = bus.Register[*heartbeat.Snapshot](rt.bus, heartbeat.BusKey, nil)

	rt.snapshotPoller = poller.New(rt.pollerConfig("snapshot"),
		func(ctx context.Context) (*snapshot.Snapshot, error) {
			return client.Snapshot(ctx, rt.session)
		},
		rt.publishSnapshot,
	)
	if client.HasDiagnosticsFeed() {
		rt.diagPoller = poller.New(rt.pollerConfig("diagnostics"),
			client.Diagnostics,
			rt.setDiag,
		)
	} else {
		rt.heartbeat.Disabled("poller:diagnostics", "diagnostics come from the snapshot")
	}

	if tokenFile != nil {
		watchService, err := watcher.New(
			[]string{tokenFile.Path()},
			logger.With("component", "token-watcher"),
			func(ctx context.Context, path string) { rt.reloadToken(path) },
		)
		if err != nil {
			sqlStore.Close()
			return nil, fmt.Errorf("watch token file: %w", err)
		}
		rt.watcher = watchService
	}

	rt.heartbeatMonitor = heartbeat.NewMonitor(rt.heartbeat, heartbeat.MonitorConfig{
		Interval:   5 * time.Second,
		StaleAfter: staleAfter,
		Logger:     logger.With("component", "heartbeat"),
		OnTransition: func(ctx context.Context, transition heartbeat.Transition, snap heartbeat.Snapshot) {
			rt.setHealth(&snap)
		},
	})

	if opts.Serve {
		rt.httpServer = &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: httpapi.NewRouter(httpapi.Dependencies{
				Config:              cfg,
				Version:             opts.Version,
				Store:               sqlStore,
				Bus:                 rt.bus,
				Logger:              logger.With("component", "httpapi"),
				Heartbeat:           rt.heartbeat,
				HeartbeatStaleAfter: staleAfter,
				Metrics:             promhttp.HandlerFor(rt.metrics, promhttp.HandlerOpts{}),
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return rt, nil
}

// ResolveTokenSource picks the bearer token source. An explicit token wins,
// then EDGE_CONSOLE_TOKEN, then the token file. The file source is returned
// separately so it can be watched.
func ResolveTokenSource(cfg config.Config, override string) (adminclient.TokenSource, *auth.FileTokenSource, error) {
	if token := auth.ExtractToken(override); token != "" {
		return adminclient.StaticToken(token), nil, nil
	}
	if token := auth.ExtractToken(cfg.Token); token != "" {
		return adminclient.StaticToken(token), nil, nil
	}
	if path := strings.TrimSpace(cfg.TokenFile); path != "" {
		source, err := auth.NewFileTokenSource(path)
		if err != nil {
			return nil, nil, fmt.Errorf("load token file: %w", err)
		}
		return source, source, nil
	}
	return adminclient.StaticToken(""), nil, nil
}

func (r *Runtime) pollerConfig(name string) poller.Config {
	return poller.Config{
		Name:             name,
		Interval:         r.cfg.PollInterval,
		BackoffMax:       r.cfg.PollBackoffMax,
		BreakerThreshold: r.cfg.BreakerThreshold,
		BreakerOpen:      r.cfg.BreakerOpen,
		Logger:           r.logger.With("component", "poller"),
		Reporter:         r.heartbeat,
		Metrics:          r.pollMetrics,
	}
}

func (r *Runtime) staleAfter() time.Duration {
	if r.cfg.HeartbeatStaleSec < 1 {
		return 0
	}
	return time.Duration(r.cfg.HeartbeatStaleSec) * time.Second
}

func (r *Runtime) publishSnapshot(snap *snapshot.Snapshot) {
	r.setSnapshot(snap)
	if r.diagPoller == nil && snap != nil && snap.Diag != nil {
		r.setDiag(snap.Diag)
	}
	r.recordHistory(snap)
}

func (r *Runtime) recordHistory(snap *snapshot.Snapshot) {
	if r.store == nil || snap == nil {
		return
	}
	body, err := json.Marshal(snap.Kubernetes)
	if err != nil {
		r.logger.Warn("encode snapshot for history failed", "error", err)
		return
	}
	kinds := map[string]int{}
	for kind, items := range snap.Kubernetes {
		kinds[string(kind)] = len(items)
	}
	input := store.RecordSnapshotInput{
		Body:          body,
		ResourceCount: snap.Count(),
		Kinds:         kinds,
		FetchedAt:     snap.FetchedAt,
	}
	if snap.Diag != nil {
		input.DiagVersion = snap.Diag.System.Version
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	wrote, err := r.store.RecordSnapshot(ctx, input)
	if err != nil {
		r.logger.Error("record snapshot history failed", "error", err)
		return
	}
	if !wrote {
		return
	}
	r.logger.Debug("configuration changed", "resources", input.ResourceCount)
	if _, err := r.store.PruneSnapshots(ctx, r.cfg.HistoryLimit); err != nil {
		r.logger.Warn("prune snapshot history failed", "error", err)
	}
}

func (r *Runtime) reloadToken(path string) {
	if r.tokenFile == nil {
		return
	}
	if err := r.tokenFile.Reload(); err != nil {
		r.logger.Warn("token file reload failed, keeping previous token", "path", path, "error", err)
		r.heartbeat.Degrade("token-watcher", "token reload failed", err)
		return
	}
	r.logger.Info("token file reloaded", "path", path)
	r.heartbeat.Beat("token-watcher", "token reloaded")
}

func (r *Runtime) Config() config.Config                { return r.cfg }
func (r *Runtime) Logger() *slog.Logger                 { return r.logger }
func (r *Runtime) Client() *adminclient.Client          { return r.client }
func (r *Runtime) Bus() *bus.Bus                        { return r.bus }
func (r *Runtime) Store() *store.Store                  { return r.store }
func (r *Runtime) Heartbeat() *heartbeat.Registry       { return r.heartbeat }
func (r *Runtime) Activity() *ActivityReporter          { return r.activity }
func (r *Runtime) Mutator() *AuditedClient              { return r.mutator }
func (r *Runtime) Metrics() *prometheus.Registry        { return r.metrics }
func (r *Runtime) TokenSource() adminclient.TokenSource { return r.tokens }
