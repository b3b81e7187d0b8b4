package heartbeat

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// BusKey carries the latest *Snapshot after a component changes state.
const BusKey = "health"

const (
	StateStarting = "starting"
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateDisabled = "disabled"
	StateStopped  = "stopped"
	StateStale    = "stale"

	OverallUnknown = "unknown"
	OverallIdle    = "idle"
)

var knownStates = map[string]struct{}{
	StateStarting: {},
	StateHealthy:  {},
	StateDegraded: {},
	StateDisabled: {},
	StateStopped:  {},
	StateStale:    {},
}

// Reporter is what long running console components use to publish their
// health: the pollers, the token watcher and the local API server.
type Reporter interface {
	Starting(component, message string)
	Beat(component, message string)
	Degrade(component, message string, err error)
	Disabled(component, message string)
	Stopped(component, message string)
}

type ComponentStatus struct {
	Name           string `json:"name"`
	State          string `json:"state"`
	BaseState      string `json:"base_state"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
	Failures       int    `json:"consecutive_failures,omitempty"`
	LastBeatAtUnix int64  `json:"last_beat_at_unix,omitempty"`
	UpdatedAtUnix  int64  `json:"updated_at_unix"`
	Stale          bool   `json:"stale,omitempty"`
}

type Snapshot struct {
	GeneratedAtUnix int64             `json:"generated_at_unix"`
	Overall         string            `json:"overall"`
	Components      []ComponentStatus `json:"components"`
}

type componentRecord struct {
	name       string
	state      string
	message    string
	lastError  string
	failures   int
	lastBeatAt time.Time
	updatedAt  time.Time
}

type Registry struct {
	mu         sync.RWMutex
	components map[string]componentRecord
	now        func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		components: map[string]componentRecord{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) Starting(component, message string) {
	r.update(component, func(record *componentRecord, _ time.Time) {
		record.state = StateStarting
		record.message = strings.TrimSpace(message)
		record.lastError = ""
	})
}

func (r *Registry) Beat(component, message string) {
	r.update(component, func(record *componentRecord, now time.Time) {
		record.state = StateHealthy
		record.message = strings.TrimSpace(message)
		record.lastError = ""
		record.failures = 0
		record.lastBeatAt = now
	})
}

// Degrade marks a component unhealthy. Repeated calls without a Beat in
// between count consecutive failures.
func (r *Registry) Degrade(component, message string, err error) {
	r.update(component, func(record *componentRecord, _ time.Time) {
		record.state = StateDegraded
		record.message = strings.TrimSpace(message)
		record.lastError = ""
		if err != nil {
			record.lastError = strings.TrimSpace(err.Error())
		}
		record.failures++
	})
}

func (r *Registry) Disabled(component, message string) {
	r.update(component, func(record *componentRecord, _ time.Time) {
		record.state = StateDisabled
		record.message = strings.TrimSpace(message)
		record.lastError = ""
	})
}

func (r *Registry) Stopped(component, message string) {
	r.update(component, func(record *componentRecord, _ time.Time) {
		record.state = StateStopped
		record.message = strings.TrimSpace(message)
	})
}

func (r *Registry) update(component string, apply func(*componentRecord, time.Time)) {
	name := normalizeComponent(component)
	if name == "" {
		return
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	record := r.components[name]
	record.name = name
	apply(&record, now)
	record.updatedAt = now
	if record.lastBeatAt.IsZero() {
		record.lastBeatAt = now
	}
	r.components[name] = record
}

// Component returns one component's status without staleness applied.
func (r *Registry) Component(name string) (ComponentStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.components[normalizeComponent(name)]
	if !ok {
		return ComponentStatus{}, false
	}
	return record.status(), true
}

func (r *Registry) Snapshot(staleAfter time.Duration) Snapshot {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]ComponentStatus, 0, len(r.components))
	for _, record := range r.components {
		status := record.status()
		if staleAfter > 0 && canBecomeStale(status.BaseState) {
			reference := record.lastBeatAt
			if reference.IsZero() {
				reference = record.updatedAt
			}
			if !reference.IsZero() && now.Sub(reference) > staleAfter {
				status.State = StateStale
				status.Stale = true
			}
		}
		results = append(results, status)
	}

	sort.Slice(results, func(left, right int) bool {
		return results[left].Name < results[right].Name
	})

	return Snapshot{
		GeneratedAtUnix: now.Unix(),
		Overall:         computeOverall(results),
		Components:      results,
	}
}

func (record componentRecord) status() ComponentStatus {
	status := ComponentStatus{
		Name:      record.name,
		BaseState: normalizeState(record.state),
		Message:   record.message,
		Error:     record.lastError,
		Failures:  record.failures,
	}
	status.State = status.BaseState
	if !record.lastBeatAt.IsZero() {
		status.LastBeatAtUnix = record.lastBeatAt.Unix()
	}
	if !record.updatedAt.IsZero() {
		status.UpdatedAtUnix = record.updatedAt.Unix()
	}
	return status
}

func IsDegradedState(state string) bool {
	switch normalizeState(state) {
	case StateDegraded, StateStale:
		return true
	default:
		return false
	}
}

func normalizeComponent(component string) string {
	return strings.ToLower(strings.TrimSpace(component))
}

func normalizeState(state string) string {
	state = strings.ToLower(strings.TrimSpace(state))
	if _, ok := knownStates[state]; ok {
		return state
	}
	return StateHealthy
}

func canBecomeStale(state string) bool {
	switch normalizeState(state) {
	case StateHealthy, StateStarting:
		return true
	default:
		return false
	}
}

func computeOverall(items []ComponentStatus) string {
	if len(items) == 0 {
		return OverallUnknown
	}
	hasStarting := false
	active := false
	for _, item := range items {
		switch normalizeState(item.State) {
		case StateDegraded, StateStale:
			return StateDegraded
		case StateStarting:
			hasStarting = true
			active = true
		case StateDisabled, StateStopped:
		default:
			active = true
		}
	}
	switch {
	case hasStarting:
		return StateStarting
	case active:
		return StateHealthy
	default:
		return OverallIdle
	}
}
