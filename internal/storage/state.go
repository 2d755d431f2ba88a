package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (r *SQLiteRepository) MarkDirty(ctx context.Context, ownerID string) error {
	now := toNanos(r.now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metrics_state (owner_id, version, cleared_version, dirty_since)
		VALUES (?, 1, 0, ?)
		ON CONFLICT (owner_id) DO UPDATE SET
			version = version + 1,
			dirty_since = CASE WHEN version > cleared_version THEN dirty_since ELSE excluded.dirty_since END`,
		ownerID, now)
	if err != nil {
		return fmt.Errorf("mark dirty: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DirtyVersion(ctx context.Context, ownerID string) (int64, error) {
	var version, cleared int64
	err := r.db.QueryRowContext(ctx,
		`SELECT version, cleared_version FROM metrics_state WHERE owner_id = ?`, ownerID).
		Scan(&version, &cleared)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read metrics state: %w", err)
	}
	if version > cleared {
		return version, nil
	}
	return 0, nil
}

// DirtyOwners returns up to limit dirty owners, longest waiting first.
func (r *SQLiteRepository) DirtyOwners(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT owner_id FROM metrics_state
		WHERE version > cleared_version
		ORDER BY dirty_since, owner_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dirty owners: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan dirty owner: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ClearDirty(ctx context.Context, ownerID string, version int64) error {
	now := toNanos(r.now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metrics_state (owner_id, version, cleared_version, last_reload_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner_id) DO UPDATE SET
			cleared_version = MAX(cleared_version, MIN(excluded.cleared_version, version)),
			last_reload_at = excluded.last_reload_at`,
		ownerID, version, version, now)
	if err != nil {
		return fmt.Errorf("clear dirty: %w", err)
	}
	return nil
}
