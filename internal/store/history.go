package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SnapshotRecord struct {
	ID            string
	Fingerprint   string
	ResourceCount int
	Kinds         map[string]int
	DiagVersion   string
	FetchedAt     time.Time
	CreatedAt     time.Time
}

type RecordSnapshotInput struct {
	// Body is the snapshot as served; only its fingerprint is kept.
	Body          []byte
	ResourceCount int
	Kinds         map[string]int
	DiagVersion   string
	FetchedAt     time.Time
}

func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// RecordSnapshot appends a history row when the snapshot differs from the
// latest recorded one. It reports whether a row was written.
func (s *Store) RecordSnapshot(ctx context.Context, input RecordSnapshotInput) (bool, error) {
	fingerprint := Fingerprint(input.Body)
	var latest string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM snapshot_history ORDER BY created_at_unix DESC, rowid DESC LIMIT 1`,
	).Scan(&latest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("query latest snapshot: %w", err)
	}
	if latest == fingerprint {
		return false, nil
	}

	kinds := input.Kinds
	if kinds == nil {
		kinds = map[string]int{}
	}
	kindsJSON, err := json.Marshal(kinds)
	if err != nil {
		return false, fmt.Errorf("encode snapshot kinds: %w", err)
	}
	fetchedAt := input.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshot_history (
			id, fingerprint, resource_count, kinds_json, diag_version, fetched_at_unix, created_at_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"snap_"+uuid.NewString(),
		fingerprint,
		input.ResourceCount,
		string(kindsJSON),
		nullIfEmpty(input.DiagVersion),
		fetchedAt.UTC().Unix(),
		time.Now().UTC().Unix(),
	); err != nil {
		return false, fmt.Errorf("insert snapshot history: %w", err)
	}
	return true, nil
}

func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]SnapshotRecord, error) {
	limit = clampLimit(limit, 50, 1000)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fingerprint, resource_count, kinds_json, COALESCE(diag_version, ''), fetched_at_unix, created_at_unix
		 FROM snapshot_history
		 ORDER BY created_at_unix DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshot history: %w", err)
	}
	defer rows.Close()

	records := make([]SnapshotRecord, 0, limit)
	for rows.Next() {
		var record SnapshotRecord
		var kindsJSON string
		var fetchedAtUnix, createdAtUnix int64
		if err := rows.Scan(
			&record.ID,
			&record.Fingerprint,
			&record.ResourceCount,
			&kindsJSON,
			&record.DiagVersion,
			&fetchedAtUnix,
			&createdAtUnix,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(kindsJSON), &record.Kinds); err != nil {
			return nil, fmt.Errorf("decode snapshot kinds: %w", err)
		}
		record.FetchedAt = unixOrZero(fetchedAtUnix)
		record.CreatedAt = unixOrZero(createdAtUnix)
		records = append(records, record)
	}
	return records, rows.Err()
}

// PruneSnapshots keeps the newest keep rows and deletes the rest.
func (s *Store) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshot_history WHERE rowid NOT IN (
			SELECT rowid FROM snapshot_history ORDER BY created_at_unix DESC, rowid DESC LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune snapshot history: %w", err)
	}
	return result.RowsAffected()
}
