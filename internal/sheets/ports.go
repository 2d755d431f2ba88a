// Package sheets defines the spreadsheet mirror of monthly summaries.
package sheets

import (
	"context"

	"aetherflow/internal/core"
)

// SummaryExporter mirrors an owner's monthly summaries to an external sheet.
type SummaryExporter interface {
	ExportSummaries(ctx context.Context, ownerID string, summaries []core.MonthlySummary) error
}

// Header is the column layout written by exporters.
var Header = []string{"Owner", "Year", "Month", "Total kgCO2e", "Food", "Clothing", "Energy", "Transport", "Transactions"}
