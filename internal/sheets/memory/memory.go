// Package memory is an in-process summary exporter used when Google Sheets
// is not configured.
package memory

import (
	"context"
	"sync"

	"aetherflow/internal/core"
	ports "aetherflow/internal/sheets"
)

type Exporter struct {
	mu      sync.Mutex
	byOwner map[string][]core.MonthlySummary
	exports int
}

var _ ports.SummaryExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{byOwner: make(map[string][]core.MonthlySummary)}
}

// ExportSummaries replaces the owner's mirrored summaries.
func (e *Exporter) ExportSummaries(_ context.Context, ownerID string, summaries []core.MonthlySummary) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byOwner[ownerID] = append([]core.MonthlySummary(nil), summaries...)
	e.exports++
	return nil
}

// Summaries returns what was last exported for ownerID.
func (e *Exporter) Summaries(ownerID string) []core.MonthlySummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]core.MonthlySummary(nil), e.byOwner[ownerID]...)
}

// Exports counts ExportSummaries calls.
func (e *Exporter) Exports() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exports
}
