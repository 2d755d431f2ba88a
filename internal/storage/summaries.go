package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aetherflow/internal/core"
	"aetherflow/internal/emissions"
	"aetherflow/internal/log"
)

func (r *SQLiteRepository) ReplaceSummaries(ctx context.Context, ownerID string, summaries []core.MonthlySummary) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		// groups go with their parent via ON DELETE CASCADE
		if _, err := tx.ExecContext(ctx, `DELETE FROM profile_metrics WHERE owner_id = ?`, ownerID); err != nil {
			return fmt.Errorf("delete summaries: %w", err)
		}
		for _, s := range summaries {
			if s.OwnerID != ownerID {
				return fmt.Errorf("summary %s belongs to %q, not %q", s.ID, s.OwnerID, ownerID)
			}
			if err := insertSummary(ctx, tx, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Summaries replaced",
		log.FieldOwnerID, ownerID,
		log.FieldMonths, len(summaries))
	return nil
}

func insertSummary(ctx context.Context, q queryable, s core.MonthlySummary) error {
	eq, err := encodeStrings(s.Equivalents)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO profile_metrics (id, owner_id, year, month, label, emissions_total, transaction_count, equivalents, start_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.OwnerID, s.Year, int(s.Month), s.Label, s.EmissionsTotal, s.TransactionCount, eq, toNanos(s.Start))
	if err != nil {
		return fmt.Errorf("insert summary %d-%02d: %w", s.Year, s.Month, err)
	}

	for _, g := range s.Groups {
		_, err := q.ExecContext(ctx, `
			INSERT INTO profile_metric_groups (metric_id, grp, emissions, count, fraction_of_total)
			VALUES (?, ?, ?, ?, ?)`,
			s.ID, int(g.Group), g.Emissions, g.Count, g.FractionOfTotal)
		if err != nil {
			return fmt.Errorf("insert summary group %s: %w", g.Group, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) ListSummaries(ctx context.Context, ownerID string) ([]core.MonthlySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, year, month, label, emissions_total, transaction_count, equivalents, start_at
		FROM profile_metrics
		WHERE owner_id = ?
		ORDER BY year DESC, month DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}

	var (
		out   []core.MonthlySummary
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			s     core.MonthlySummary
			month int
			eq    string
			start int64
		)
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Year, &month, &s.Label, &s.EmissionsTotal, &s.TransactionCount, &eq, &start); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Month = time.Month(month)
		s.Start = fromNanos(start)
		if s.Equivalents, err = decodeStrings(eq); err != nil {
			rows.Close()
			return nil, err
		}
		index[s.ID] = len(out)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	rows.Close()

	if len(out) == 0 {
		return nil, nil
	}

	groups, err := r.db.QueryContext(ctx, `
		SELECT g.metric_id, g.grp, g.emissions, g.count, g.fraction_of_total
		FROM profile_metric_groups g
		JOIN profile_metrics m ON m.id = g.metric_id
		WHERE m.owner_id = ?
		ORDER BY g.metric_id, g.grp`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query summary groups: %w", err)
	}
	defer groups.Close()

	for groups.Next() {
		var (
			id  string
			grp int
			b   core.GroupBreakdown
		)
		if err := groups.Scan(&id, &grp, &b.Emissions, &b.Count, &b.FractionOfTotal); err != nil {
			return nil, fmt.Errorf("scan summary group: %w", err)
		}
		b.Group = emissions.Group(grp)
		if i, ok := index[id]; ok {
			out[i].Groups = append(out[i].Groups, b)
		}
	}
	if err := groups.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary groups: %w", err)
	}
	return out, nil
}
