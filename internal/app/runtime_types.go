package app

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dwizi/edge-console/internal/adminclient"
	"github.com/dwizi/edge-console/internal/auth"
	"github.com/dwizi/edge-console/internal/bus"
	"github.com/dwizi/edge-console/internal/config"
	"github.com/dwizi/edge-console/internal/heartbeat"
	"github.com/dwizi/edge-console/internal/poller"
	"github.com/dwizi/edge-console/internal/snapshot"
	"github.com/dwizi/edge-console/internal/store"
	"github.com/dwizi/edge-console/internal/watcher"
)

type Options struct {
	Version string
	// Token overrides the configured token sources when set.
	Token string
	// Serve starts the local status API on cfg.HTTPAddr.
	Serve bool
}

type Runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	version string
	session string

	client    *adminclient.Client
	tokens    adminclient.TokenSource
	tokenFile *auth.FileTokenSource
	store     *store.Store
	bus       *bus.Bus
	activity  *ActivityReporter
	mutator   *AuditedClient

	metrics        *prometheus.Registry
	pollMetrics    *poller.Metrics
	snapshotPoller *poller.Poller[*snapshot.Snapshot]
	diagPoller     *poller.Poller[*snapshot.Diagnostics]
	setSnapshot    func(*snapshot.Snapshot)
	setDiag        func(*snapshot.Diagnostics)
	setHealth      func(*heartbeat.Snapshot)

	watcher          *watcher.Service
	httpServer       *http.Server
	heartbeat        *heartbeat.Registry
	heartbeatMonitor *heartbeat.Monitor
}
