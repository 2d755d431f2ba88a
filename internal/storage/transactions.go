package storage

import (
	"context"
	"fmt"

	"aetherflow/internal/core"
	"aetherflow/internal/emissions"
	"aetherflow/internal/log"
)

func (r *SQLiteRepository) SaveTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	eq, err := encodeStrings(t.Equivalents)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, owner_id, name, category, price_cents, kg_co2e, mt_co2e, equivalents, occurred_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Name, string(t.Category), t.Price.Cents, t.KgCO2e, t.MtCO2e, eq,
		toNanos(t.Timestamp), toNanos(r.now()))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	r.logger.DebugContext(ctx, "Transaction saved",
		log.FieldOwnerID, t.OwnerID,
		log.FieldTransactionID, t.ID,
		log.FieldCategory, string(t.Category))
	return nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, category, price_cents, kg_co2e, mt_co2e, equivalents, occurred_at
		FROM transactions
		WHERE owner_id = ?
		ORDER BY occurred_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t        core.Transaction
			category string
			eq       string
			ts       int64
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name, &category, &t.Price.Cents, &t.KgCO2e, &t.MtCO2e, &eq, &ts); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Category = emissions.FineCategory(category)
		t.Timestamp = fromNanos(ts)
		if t.Equivalents, err = decodeStrings(eq); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
