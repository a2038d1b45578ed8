package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openvitals/vitalsync/internal/domain/model"
	"github.com/openvitals/vitalsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LabResultStore = (*LabRepo)(nil)

// LabRepo is the SQLite implementation of the LabResultStore port interface.
type LabRepo struct {
	db *DB
}

// NewLabRepo creates a new LabRepo backed by the given DB.
func NewLabRepo(db *DB) *LabRepo {
	return &LabRepo{db: db}
}

// SaveRange inserts or updates the batch in a single transaction, keyed by
// public_id. Re-running an unchanged batch leaves row count and field values
// identical. Returns driven.ErrOwnerRequired when ownerID is empty.
func (r *LabRepo) SaveRange(ctx context.Context, ownerID string, results []model.LabResult) error {
	if ownerID == "" {
		return driven.ErrOwnerRequired
	}
	if len(results) == 0 {
		return nil
	}

	const query = `
		INSERT INTO lab_results (public_id, owner_id, taken_at, value, note, flagged, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(public_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			taken_at = excluded.taken_at,
			value = excluded.value,
			note = excluded.note,
			flagged = excluded.flagged,
			deleted = excluded.deleted
	`

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save range: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, result := range results {
		if result.PublicID == "" {
			return fmt.Errorf("lab result missing public id")
		}
		_, err := stmt.ExecContext(ctx,
			result.PublicID, ownerID, result.TakenAt.UTC().Format(time.RFC3339),
			result.Value, result.Note, boolToInt(result.Flagged), boolToInt(result.Deleted),
		)
		if err != nil {
			return fmt.Errorf("upsert lab result %s: %w", result.PublicID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save range: %w", err)
	}
	return nil
}

// ListRecent returns up to limit non-deleted results for the owner, most
// recent taken_at first.
func (r *LabRepo) ListRecent(ctx context.Context, ownerID string, limit int) ([]model.LabResult, error) {
	const query = `
		SELECT id, public_id, owner_id, taken_at, value, note, flagged, deleted
		FROM lab_results
		WHERE owner_id = ? AND deleted = 0
		ORDER BY taken_at DESC
		LIMIT ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query lab results: %w", err)
	}
	defer rows.Close()

	var results []model.LabResult
	for rows.Next() {
		result, err := scanLabResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lab result: %w", err)
		}
		results = append(results, *result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lab results: %w", err)
	}

	return results, nil
}

// GetByPublicID retrieves a single result by its public identifier.
// Returns nil, nil if no such row exists.
func (r *LabRepo) GetByPublicID(ctx context.Context, publicID string) (*model.LabResult, error) {
	const query = `
		SELECT id, public_id, owner_id, taken_at, value, note, flagged, deleted
		FROM lab_results
		WHERE public_id = ?
	`

	result, err := scanLabResult(r.db.Reader.QueryRowContext(ctx, query, publicID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lab result %s: %w", publicID, err)
	}

	return result, nil
}

// CountAll returns the number of rows for the owner, including soft-deleted
// ones.
func (r *LabRepo) CountAll(ctx context.Context, ownerID string) (int, error) {
	const query = `SELECT COUNT(*) FROM lab_results WHERE owner_id = ?`

	var count int
	if err := r.db.Reader.QueryRowContext(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count lab results: %w", err)
	}
	return count, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanLabResult(s scanner) (*model.LabResult, error) {
	var result model.LabResult
	var flagged, deleted int
	var takenAt string

	err := s.Scan(
		&result.ID, &result.PublicID, &result.OwnerID,
		&takenAt, &result.Value, &result.Note, &flagged, &deleted,
	)
	if err != nil {
		return nil, err
	}

	result.Flagged = flagged != 0
	result.Deleted = deleted != 0

	result.TakenAt, err = parseTime(takenAt)
	if err != nil {
		return nil, fmt.Errorf("parse taken_at: %w", err)
	}

	return &result, nil
}

// parseTime parses timestamps in the formats SQLite hands back: RFC3339 or
// the bare "2006-01-02 15:04:05" layout produced by CURRENT_TIMESTAMP.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
