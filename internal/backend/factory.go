// Package backend assembles the persistence and export layers from configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"aetherflow/internal/log"
	"aetherflow/internal/sheets"
	gsheet "aetherflow/internal/sheets/google"
	sheetsmem "aetherflow/internal/sheets/memory"
	"aetherflow/internal/storage"
	"aetherflow/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var store storage.Store
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		store = repo
	case MemoryBackend:
		f.logger.Warn("Using in-memory backend, data is lost on restart")
		store = memory.New()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	exporter, err := f.createExporter(ctx, config)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	return &BackendResult{
		Store:    store,
		Exporter: exporter,
		Cleanup:  store.Close,
	}, nil
}

func (f *DefaultFactory) createExporter(ctx context.Context, config Config) (sheets.SummaryExporter, error) {
	switch config.exportType() {
	case GoogleExport:
		exp, err := gsheet.Open(ctx, config.GoogleSpreadsheetID, config.GoogleSheetName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets exporter: %w", err)
		}
		f.logger.Info("Initialized Google Sheets export", "spreadsheet_id", config.GoogleSpreadsheetID)
		return exp, nil
	case MemoryExport:
		return sheetsmem.New(), nil
	default:
		return nil, nil
	}
}
