package backend

import (
	"context"

	"aetherflow/internal/sheets"
	"aetherflow/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the store, the optional summary exporter and a cleanup
// function that releases both.
type BackendResult struct {
	Store storage.Store
	// Exporter is nil when summaries are not mirrored anywhere.
	Exporter sheets.SummaryExporter
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Summary export
	Export              ExportType
	GoogleSpreadsheetID string
	GoogleSheetName     string
}

// BackendType selects where transactions and summaries live.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// ExportType selects the summary mirror.
type ExportType string

const (
	NoExport     ExportType = "none"
	GoogleExport ExportType = "google"
	MemoryExport ExportType = "memory"
)

// IsValid returns true if the export type is valid
func (et ExportType) IsValid() bool {
	switch et {
	case NoExport, GoogleExport, MemoryExport:
		return true
	default:
		return false
	}
}
