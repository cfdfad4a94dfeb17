package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/bcfeed/internal/model"
)

type syncStateRow struct {
	Phase          string    `db:"phase"`
	ProcessedCount int       `db:"processed_count"`
	TotalEstimate  int       `db:"total_estimate"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// LoadCheckpoint returns the stored checkpoint, or an idle checkpoint
// with no folder cursors when none was ever saved.
func (s *SQLiteStore) LoadCheckpoint(ctx context.Context) (*model.SyncCheckpoint, error) {
	cp := model.NewSyncCheckpoint()

	var row syncStateRow
	err := s.db.GetContext(ctx, &row,
		"SELECT phase, processed_count, total_estimate, updated_at FROM sync_state WHERE id = 1",
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("loading sync state: %w", err)
	default:
		cp.Phase = model.Phase(row.Phase)
		cp.ProcessedCount = row.ProcessedCount
		cp.TotalEstimate = row.TotalEstimate
		cp.UpdatedAt = row.UpdatedAt
	}

	var cursors []model.FolderCursor
	if err := s.db.SelectContext(ctx, &cursors,
		"SELECT folder, uid_validity, before_uid, exhausted, updated_at FROM folder_cursors",
	); err != nil {
		return nil, fmt.Errorf("loading folder cursors: %w", err)
	}
	for _, c := range cursors {
		cp.Folders[c.Folder] = c
	}

	return cp, nil
}

// SaveCheckpoint replaces the stored checkpoint in one transaction, so
// a crash leaves either the old or the new checkpoint.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *model.SyncCheckpoint) error {
	now := s.now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_state (id, phase, processed_count, total_estimate, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			processed_count = excluded.processed_count,
			total_estimate = excluded.total_estimate,
			updated_at = excluded.updated_at`,
		string(cp.Phase), cp.ProcessedCount, cp.TotalEstimate, now,
	)
	if err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM folder_cursors"); err != nil {
		return fmt.Errorf("clearing folder cursors: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO folder_cursors (folder, uid_validity, before_uid, exhausted, updated_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing cursor statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range cp.Folders {
		updated := c.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		if _, err := stmt.ExecContext(ctx,
			c.Folder, int64(c.UIDValidity), int64(c.Before), boolToInt(c.Exhausted), updated.UTC(),
		); err != nil {
			return fmt.Errorf("saving cursor for %s: %w", c.Folder, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing checkpoint: %w", err)
	}
	cp.UpdatedAt = now
	return nil
}

// ResetCheckpoint discards every folder cursor and returns the sync
// state to idle. Stored releases are kept.
func (s *SQLiteStore) ResetCheckpoint(ctx context.Context) error {
	return s.SaveCheckpoint(ctx, model.NewSyncCheckpoint())
}
