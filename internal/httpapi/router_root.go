// Package httpapi is the local status surface served by the headless
// console: liveness, component heartbeat, a summary of the latest backend
// snapshot, the local audit trail and Prometheus metrics.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dwizi/edge-console/internal/bus"
	"github.com/dwizi/edge-console/internal/config"
	"github.com/dwizi/edge-console/internal/heartbeat"
	"github.com/dwizi/edge-console/internal/store"
)

type Dependencies struct {
	Config              config.Config
	Version             string
	Store               *store.Store
	Bus                 *bus.Bus
	Logger              *slog.Logger
	Heartbeat           *heartbeat.Registry
	HeartbeatStaleAfter time.Duration
	Metrics             http.Handler
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	rt := &router{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/readyz", rt.handleReady)
	mux.HandleFunc("/v1/heartbeat", rt.handleHeartbeat)
	mux.HandleFunc("/v1/info", rt.handleInfo)
	mux.HandleFunc("/v1/snapshot/summary", rt.handleSnapshotSummary)
	mux.HandleFunc("/v1/snapshot/history", rt.handleSnapshotHistory)
	mux.HandleFunc("/v1/activity", rt.handleActivity)
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func methodGet(w http.ResponseWriter, req *http.Request) bool {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return false
	}
	return true
}
