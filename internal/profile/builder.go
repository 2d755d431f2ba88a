// Package profile rebuilds an owner's monthly footprint summaries from their
// transaction history.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aetherflow/internal/core"
	"aetherflow/internal/emissions"
	"aetherflow/internal/log"
)

// DefaultMonthsBack is the size of the trailing window rebuilt by default.
const DefaultMonthsBack = 12

// ErrEmptyResult is returned when the calculator yields nothing for a non-empty month.
var ErrEmptyResult = errors.New("calculator returned no result")

// summaryNamespace seeds deterministic summary IDs.
var summaryNamespace = uuid.MustParse("6f1c1c2e-5a4b-4f0e-9a51-3f8f0b3e2d10")

// Calculator returns the emissions breakdown for a batch of transactions.
type Calculator interface {
	CalculateMetrics(ctx context.Context, txns []core.Transaction) (*core.MetricsResult, error)
}

// Options controls a rebuild.
type Options struct {
	// MonthsBack is the number of calendar months considered, current month included.
	MonthsBack int
	// Now anchors the window; zero means time.Now().
	Now time.Time
}

func (o Options) withDefaults() Options {
	if o.MonthsBack <= 0 {
		o.MonthsBack = DefaultMonthsBack
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// Builder turns transactions into monthly summaries.
type Builder struct {
	calc   Calculator
	logger *log.Logger
}

func NewBuilder(calc Calculator, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Default(log.ComponentProfile)
	}
	return &Builder{calc: calc, logger: logger.WithComponent(log.ComponentProfile)}
}

// Rebuild produces one summary per non-empty month in the window, most recent
// first. Calculator calls are made one month at a time; the first failure
// aborts the rebuild and no summaries are returned. Rebuild never deletes
// previously stored summaries.
func (b *Builder) Rebuild(ctx context.Context, ownerID string, txns []core.Transaction, opts Options) ([]core.MonthlySummary, error) {
	if ownerID == "" {
		return nil, core.ErrEmptyOwner
	}
	opts = opts.withDefaults()

	var summaries []core.MonthlySummary
	for offset := 0; offset < opts.MonthsBack; offset++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bucket := MonthBucket(opts.Now, offset)
		batch := filter(txns, ownerID, bucket)
		if len(batch) == 0 {
			continue
		}

		res, err := b.calc.CalculateMetrics(ctx, batch)
		if err != nil {
			b.logger.WarnContext(ctx, "Metrics calculation failed, aborting rebuild",
				log.FieldOwnerID, ownerID,
				log.FieldYear, bucket.Start.Year(),
				log.FieldMonth, bucket.Label(),
				log.FieldError, err)
			return nil, fmt.Errorf("calculate metrics for %s %d: %w", bucket.Label(), bucket.Start.Year(), err)
		}
		if res == nil {
			return nil, fmt.Errorf("calculate metrics for %s %d: %w", bucket.Label(), bucket.Start.Year(), ErrEmptyResult)
		}

		summaries = append(summaries, newSummary(ownerID, bucket, res))
	}

	b.logger.DebugContext(ctx, "Rebuilt monthly summaries",
		log.FieldOwnerID, ownerID,
		log.FieldMonths, len(summaries))

	return summaries, nil
}

func filter(txns []core.Transaction, ownerID string, bucket Bucket) []core.Transaction {
	var out []core.Transaction
	for _, t := range txns {
		if t.OwnerID == ownerID && bucket.Contains(t.Timestamp) {
			out = append(out, t)
		}
	}
	return out
}

func newSummary(ownerID string, bucket Bucket, res *core.MetricsResult) core.MonthlySummary {
	totals := emissions.Aggregate(res.Groups)
	groups := make([]core.GroupBreakdown, 0, len(totals))
	for _, t := range totals {
		groups = append(groups, core.GroupBreakdown{
			Group:           t.Group,
			Emissions:       t.Emissions,
			Count:           t.Count,
			FractionOfTotal: t.FractionOfTotal,
		})
	}

	return core.MonthlySummary{
		ID:               SummaryID(ownerID, bucket.Start.Year(), bucket.Start.Month()),
		OwnerID:          ownerID,
		EmissionsTotal:   res.EmissionsTotal,
		TransactionCount: res.TransactionCount,
		Equivalents:      append([]string(nil), res.Equivalents...),
		Label:            bucket.Label(),
		Year:             bucket.Start.Year(),
		Month:            bucket.Start.Month(),
		Start:            bucket.Start,
		Groups:           groups,
	}
}

// SummaryID is stable for a given owner and month.
func SummaryID(ownerID string, year int, month time.Month) string {
	return uuid.NewSHA1(summaryNamespace, []byte(fmt.Sprintf("%s/%04d-%02d", ownerID, year, int(month)))).String()
}

// Latest returns the most recent summary, or nil when there is none.
func Latest(summaries []core.MonthlySummary) *core.MonthlySummary {
	var latest *core.MonthlySummary
	for i := range summaries {
		if latest == nil || summaries[i].Start.After(latest.Start) {
			latest = &summaries[i]
		}
	}
	return latest
}

// Trend returns up to n of the most recent summaries in chronological order.
// summaries must be ordered most recent first.
func Trend(summaries []core.MonthlySummary, n int) []core.MonthlySummary {
	if n <= 0 || n > len(summaries) {
		n = len(summaries)
	}
	out := make([]core.MonthlySummary, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = summaries[i]
	}
	return out
}
