package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dwizi/edge-console/internal/bus"
	"github.com/dwizi/edge-console/internal/snapshot"
	"github.com/dwizi/edge-console/internal/store"
)

func latestSnapshot(b *bus.Bus) (*snapshot.Snapshot, bool) {
	if b == nil {
		return nil, false
	}
	snap, ok := bus.Get[*snapshot.Snapshot](b, snapshot.BusKey)
	if !ok || snap == nil {
		return nil, false
	}
	return snap, true
}

func (r *router) handleSnapshotSummary(w http.ResponseWriter, req *http.Request) {
	if !methodGet(w, req) {
		return
	}
	snap, ok := latestSnapshot(r.deps.Bus)
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "pending", "error": "no snapshot received yet"})
		return
	}
	kinds := map[string]int{}
	for _, kind := range snap.Kinds() {
		kinds[string(kind)] = len(snap.Kubernetes[kind])
	}
	payload := map[string]any{
		"fetched_at_unix": snap.FetchedAt.Unix(),
		"resources":       snap.Count(),
		"kinds":           kinds,
		"redis_in_use":    snap.RedisInUse,
		"license": map[string]any{
			"hard_limit":          snap.License.HardLimit,
			"features_over_limit": snap.License.FeaturesOverLimit,
		},
	}
	if diag := snap.Diag; diag != nil {
		payload["diagnostics"] = map[string]any{
			"version":   diag.System.Version,
			"env_good":  diag.System.EnvGood,
			"log_level": diag.LogLevel,
			"errors":    len(diag.Errors),
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *router) handleSnapshotHistory(w http.ResponseWriter, req *http.Request) {
	if !methodGet(w, req) {
		return
	}
	if r.deps.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "history is disabled"})
		return
	}
	records, err := r.deps.Store.ListSnapshots(req.Context(), queryLimit(req, 50))
	if err != nil {
		r.deps.Logger.Error("list snapshot history failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, map[string]any{
			"id":              record.ID,
			"fingerprint":     record.Fingerprint,
			"resources":       record.ResourceCount,
			"kinds":           record.Kinds,
			"diag_version":    record.DiagVersion,
			"fetched_at_unix": record.FetchedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (r *router) handleActivity(w http.ResponseWriter, req *http.Request) {
	if !methodGet(w, req) {
		return
	}
	if r.deps.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "activity log is disabled"})
		return
	}
	query := req.URL.Query()
	errorsOnly := false
	if raw := strings.TrimSpace(strings.ToLower(query.Get("errors_only"))); raw == "true" || raw == "1" || raw == "yes" {
		errorsOnly = true
	}
	events, err := r.deps.Store.ListActivity(req.Context(), store.ListActivityInput{
		Action:     query.Get("action"),
		ErrorsOnly: errorsOnly,
		Limit:      queryLimit(req, 100),
	})
	if err != nil {
		r.deps.Logger.Error("list activity failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	items := make([]map[string]any, 0, len(events))
	for _, event := range events {
		items = append(items, map[string]any{
			"id":              event.ID,
			"action":          event.Action,
			"kind":            event.ResourceKind,
			"namespace":       event.Namespace,
			"name":            event.Name,
			"outcome":         event.Outcome,
			"detail":          event.Detail,
			"duration_ms":     event.Duration.Milliseconds(),
			"created_at_unix": event.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func queryLimit(req *http.Request, fallback int) int {
	raw := strings.TrimSpace(req.URL.Query().Get("limit"))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}
