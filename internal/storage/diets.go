package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"aetherflow/internal/core"
)

func (r *SQLiteRepository) SaveDiet(ctx context.Context, d core.Diet) error {
	if strings.TrimSpace(d.OwnerID) == "" {
		return core.ErrEmptyOwner
	}
	if strings.TrimSpace(d.Challenge) == "" {
		return core.ErrEmptyChallenge
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO diets (id, owner_id, challenge, started_at, is_complete) VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, d.Challenge, toNanos(d.Timestamp), boolToInt(d.IsComplete))
	if err != nil {
		return fmt.Errorf("insert diet: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListDiets(ctx context.Context, ownerID string) ([]core.Diet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, challenge, started_at, is_complete
		FROM diets WHERE owner_id = ?
		ORDER BY started_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query diets: %w", err)
	}
	defer rows.Close()

	var out []core.Diet
	for rows.Next() {
		d, err := scanDiet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diets: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) CompleteDiet(ctx context.Context, ownerID, id string) (core.Diet, error) {
	var d core.Diet
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE diets SET is_complete = 1 WHERE owner_id = ? AND id = ?`, ownerID, id)
		if err != nil {
			return fmt.Errorf("complete diet: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.ErrNotFound
		}
		row := tx.QueryRowContext(ctx, `
			SELECT id, owner_id, challenge, started_at, is_complete FROM diets WHERE id = ?`, id)
		d, err = scanDiet(row)
		return err
	})
	return d, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDiet(s scanner) (core.Diet, error) {
	var (
		d        core.Diet
		ts       int64
		complete int
	)
	if err := s.Scan(&d.ID, &d.OwnerID, &d.Challenge, &ts, &complete); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Diet{}, core.ErrNotFound
		}
		return core.Diet{}, fmt.Errorf("scan diet: %w", err)
	}
	d.Timestamp = fromNanos(ts)
	d.IsComplete = complete != 0
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
