package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ActionApply     = "apply"
	ActionDelete    = "delete"
	ActionLogLevel  = "log_level"
	ActionBootstrap = "host_bootstrap"

	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type ActivityEvent struct {
	ID           string
	Action       string
	ResourceKind string
	Namespace    string
	Name         string
	Outcome      string
	Detail       string
	Duration     time.Duration
	CreatedAt    time.Time
}

type RecordActivityInput struct {
	Action       string
	ResourceKind string
	Namespace    string
	Name         string
	Err          error
	Detail       string
	Duration     time.Duration
}

type ListActivityInput struct {
	Action     string
	ErrorsOnly bool
	Limit      int
}

// RecordActivity stores one submitted change. A non-nil Err marks the event
// failed and becomes its detail.
func (s *Store) RecordActivity(ctx context.Context, input RecordActivityInput) (ActivityEvent, error) {
	record := ActivityEvent{
		ID:           "act_" + uuid.NewString(),
		Action:       strings.ToLower(strings.TrimSpace(input.Action)),
		ResourceKind: strings.TrimSpace(input.ResourceKind),
		Namespace:    strings.TrimSpace(input.Namespace),
		Name:         strings.TrimSpace(input.Name),
		Outcome:      OutcomeOK,
		Detail:       strings.TrimSpace(input.Detail),
		Duration:     input.Duration,
		CreatedAt:    time.Now().UTC(),
	}
	if input.Err != nil {
		record.Outcome = OutcomeError
		record.Detail = strings.TrimSpace(input.Err.Error())
	}
	if record.Action == "" {
		return ActivityEvent{}, fmt.Errorf("activity action is required")
	}

	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO activity_events (
			id, action, resource_kind, namespace, name, outcome, detail, duration_ms, created_at_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Action,
		nullIfEmpty(record.ResourceKind),
		nullIfEmpty(record.Namespace),
		nullIfEmpty(record.Name),
		record.Outcome,
		nullIfEmpty(record.Detail),
		nullIfZeroInt64(record.Duration.Milliseconds()),
		record.CreatedAt.Unix(),
	); err != nil {
		return ActivityEvent{}, fmt.Errorf("insert activity event: %w", err)
	}
	return record, nil
}

func (s *Store) ListActivity(ctx context.Context, input ListActivityInput) ([]ActivityEvent, error) {
	limit := clampLimit(input.Limit, 100, 1000)
	whereParts := []string{"1=1"}
	args := make([]any, 0, 3)
	if action := strings.ToLower(strings.TrimSpace(input.Action)); action != "" {
		whereParts = append(whereParts, "action = ?")
		args = append(args, action)
	}
	if input.ErrorsOnly {
		whereParts = append(whereParts, "outcome = ?")
		args = append(args, OutcomeError)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, action, COALESCE(resource_kind, ''), COALESCE(namespace, ''), COALESCE(name, ''), outcome, COALESCE(detail, ''), COALESCE(duration_ms, 0), created_at_unix
		 FROM activity_events
		 WHERE `+strings.Join(whereParts, " AND ")+`
		 ORDER BY created_at_unix DESC, rowid DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query activity events: %w", err)
	}
	defer rows.Close()

	events := make([]ActivityEvent, 0, limit)
	for rows.Next() {
		var event ActivityEvent
		var durationMS, createdAtUnix int64
		if err := rows.Scan(
			&event.ID,
			&event.Action,
			&event.ResourceKind,
			&event.Namespace,
			&event.Name,
			&event.Outcome,
			&event.Detail,
			&durationMS,
			&createdAtUnix,
		); err != nil {
			return nil, err
		}
		event.Duration = time.Duration(durationMS) * time.Millisecond
		event.CreatedAt = unixOrZero(createdAtUnix)
		events = append(events, event)
	}
	return events, rows.Err()
}
