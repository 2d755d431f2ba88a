package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"aetherflow/internal/widget"
)

func (r *SQLiteRepository) SaveWidgetSnapshot(ctx context.Context, ownerID string, s widget.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode widget snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO widget_snapshots (owner_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (owner_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		ownerID, string(payload), toNanos(r.now()))
	if err != nil {
		return fmt.Errorf("save widget snapshot: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetWidgetSnapshot(ctx context.Context, ownerID string) (widget.Snapshot, bool, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM widget_snapshots WHERE owner_id = ?`, ownerID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return widget.Snapshot{}, false, nil
	}
	if err != nil {
		return widget.Snapshot{}, false, fmt.Errorf("read widget snapshot: %w", err)
	}

	var s widget.Snapshot
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return widget.Snapshot{}, false, fmt.Errorf("decode widget snapshot: %w", err)
	}
	return s, true, nil
}

// ResetWidget stores the fallback snapshot for the owner.
func (r *SQLiteRepository) ResetWidget(ctx context.Context, ownerID string) error {
	return r.SaveWidgetSnapshot(ctx, ownerID, widget.Fallback())
}
