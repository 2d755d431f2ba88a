package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"aetherflow/internal/cache"
	"aetherflow/internal/core"
	"aetherflow/internal/log"
	"aetherflow/internal/profile"
	"aetherflow/internal/sheets"
	"aetherflow/internal/storage"
	"aetherflow/internal/widget"
)

// DefaultTrendMonths is the number of months shown on the trend chart.
const DefaultTrendMonths = 4

type metricsStore interface {
	storage.TransactionStore
	storage.SummaryStore
	storage.ReloadState
	storage.WidgetStore
}

// MetricsConfig tunes MetricsService.
type MetricsConfig struct {
	MonthsBack int
	CacheSize  int
	CacheTTL   time.Duration
}

func (c MetricsConfig) withDefaults() MetricsConfig {
	if c.MonthsBack <= 0 {
		c.MonthsBack = profile.DefaultMonthsBack
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 1000
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	return c
}

// ReloadResult describes one Reload call.
type ReloadResult struct {
	OwnerID  string        `json:"owner_id"`
	Rebuilt  bool          `json:"rebuilt"`
	Months   int           `json:"months"`
	Duration time.Duration `json:"duration_ns"`
	Shared   bool          `json:"shared"`
}

// MetricsService owns the monthly summary lifecycle: rebuild, persist,
// project the widget, mirror to sheets and serve cached reads.
type MetricsService struct {
	store     metricsStore
	builder   *profile.Builder
	exporter  sheets.SummaryExporter
	cfg       MetricsConfig
	summaries *cache.LRUCache[[]core.MonthlySummary]
	widgets   *cache.LRUCache[widget.Snapshot]
	group     singleflight.Group
	guard     ownerGuard
	metrics   Recorder
	logger    *log.Logger
	events    *log.StructuredLogger
	now       func() time.Time
}

// NewMetricsService wires the service. exporter, observer and metrics may be nil.
func NewMetricsService(store metricsStore, calc profile.Calculator, exporter sheets.SummaryExporter, cfg MetricsConfig, observer cache.Observer, metrics Recorder, logger *log.Logger) *MetricsService {
	if logger == nil {
		logger = log.Default(log.ComponentReload)
	}
	cfg = cfg.withDefaults()
	s := &MetricsService{
		store:     store,
		builder:   profile.NewBuilder(calc, logger),
		exporter:  exporter,
		cfg:       cfg,
		summaries: cache.NewLRUCache[[]core.MonthlySummary]("summaries", cfg.CacheSize, cfg.CacheTTL),
		widgets:   cache.NewLRUCache[widget.Snapshot]("widget", cfg.CacheSize, cfg.CacheTTL),
		metrics:   recorderOrNoop(metrics),
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
		now:       time.Now,
	}
	if observer != nil {
		s.summaries.WithObserver(observer)
		s.widgets.WithObserver(observer)
	}
	return s
}

// Caches returns the service caches for registration with a cache.Manager.
func (s *MetricsService) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.summaries, s.widgets}
}

// Reload rebuilds the owner's summaries when they are dirty or force is set.
// Concurrent calls with the same force flag share one rebuild, and rebuilds
// for one owner never overlap: a call that arrives mid-rebuild runs after it
// against the then current transactions. On failure the previously stored
// summaries stay in place and the owner stays dirty.
func (s *MetricsService) Reload(ctx context.Context, ownerID string, force bool) (ReloadResult, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ReloadResult{}, core.ErrEmptyOwner
	}

	key := ownerID + "|" + strconv.FormatBool(force)
	ch := s.group.DoChan(key, func() (any, error) {
		// detached so one caller giving up does not fail the others
		return s.reload(context.WithoutCancel(ctx), ownerID, force)
	})

	select {
	case <-ctx.Done():
		return ReloadResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return ReloadResult{}, r.Err
		}
		res := r.Val.(ReloadResult)
		res.Shared = r.Shared
		return res, nil
	}
}

func (s *MetricsService) reload(ctx context.Context, ownerID string, force bool) (ReloadResult, error) {
	unlock := s.guard.lock(ownerID)
	defer unlock()

	start := time.Now()
	result := ReloadResult{OwnerID: ownerID}

	version, err := s.store.DirtyVersion(ctx, ownerID)
	if err != nil {
		return result, fmt.Errorf("read reload state: %w", err)
	}
	if version == 0 && !force {
		s.metrics.RebuildFinished(ResultSkipped, 0, time.Since(start))
		s.logger.DebugContext(ctx, "Summaries up to date, skipping reload", log.FieldOwnerID, ownerID)
		return result, nil
	}

	txns, err := s.store.ListTransactions(ctx, ownerID)
	if err != nil {
		s.metrics.RebuildFinished(ResultFailed, 0, time.Since(start))
		return result, fmt.Errorf("list transactions: %w", err)
	}

	summaries, err := s.builder.Rebuild(ctx, ownerID, txns, profile.Options{
		MonthsBack: s.cfg.MonthsBack,
		Now:        s.now(),
	})
	if err != nil {
		s.metrics.RebuildFinished(ResultFailed, 0, time.Since(start))
		s.events.LogError(ctx, "Profile rebuild failed", err, log.OpRebuild, log.NewFields().WithOwner(ownerID))
		return result, fmt.Errorf("rebuild summaries: %w", err)
	}

	if err := s.store.ReplaceSummaries(ctx, ownerID, summaries); err != nil {
		s.metrics.RebuildFinished(ResultFailed, 0, time.Since(start))
		return result, fmt.Errorf("replace summaries: %w", err)
	}

	if snap, ok := widget.Project(profile.Latest(summaries)); ok {
		if err := s.store.SaveWidgetSnapshot(ctx, ownerID, snap); err != nil {
			s.logger.ErrorContext(ctx, "Failed to save widget snapshot",
				log.FieldOwnerID, ownerID, log.FieldError, err.Error())
		}
	}

	if err := s.store.ClearDirty(ctx, ownerID, version); err != nil {
		s.logger.ErrorContext(ctx, "Failed to clear dirty flag",
			log.FieldOwnerID, ownerID, log.FieldError, err.Error())
	}
	s.invalidate(ownerID)

	if s.exporter != nil {
		if err := s.exporter.ExportSummaries(ctx, ownerID, summaries); err != nil {
			s.logger.WarnContext(ctx, "Failed to export summaries",
				log.FieldOwnerID, ownerID, log.FieldError, err.Error())
		}
	}

	result.Rebuilt = true
	result.Months = len(summaries)
	result.Duration = time.Since(start)
	s.metrics.RebuildFinished(ResultRebuilt, result.Months, result.Duration)
	s.events.LogReload(ctx, ownerID, result.Months, force, result.Duration.Milliseconds())
	return result, nil
}

func (s *MetricsService) invalidate(ownerID string) {
	s.guard.invalidate(ownerID, func() {
		s.summaries.Delete(ownerID)
		s.widgets.Delete(ownerID)
	})
}

// Summaries returns the stored summaries, newest month first. The result is
// the caller's to modify.
func (s *MetricsService) Summaries(ctx context.Context, ownerID string) ([]core.MonthlySummary, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, core.ErrEmptyOwner
	}
	if cached, ok := s.summaries.Get(ownerID); ok {
		return core.CloneSummaries(cached), nil
	}
	gen := s.guard.generation(ownerID)
	out, err := s.store.ListSummaries(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	s.guard.fill(ownerID, gen, func() { s.summaries.Set(ownerID, out) })
	return core.CloneSummaries(out), nil
}

// Trend returns the n most recent summaries oldest first. n <= 0 means
// DefaultTrendMonths.
func (s *MetricsService) Trend(ctx context.Context, ownerID string, n int) ([]core.MonthlySummary, error) {
	if n <= 0 {
		n = DefaultTrendMonths
	}
	all, err := s.Summaries(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return profile.Trend(all, n), nil
}

// Latest returns the newest summary, or nil.
func (s *MetricsService) Latest(ctx context.Context, ownerID string) (*core.MonthlySummary, error) {
	all, err := s.Summaries(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return profile.Latest(all), nil
}

// Widget returns the stored snapshot, or the fallback before the first reload.
func (s *MetricsService) Widget(ctx context.Context, ownerID string) (widget.Snapshot, error) {
	if strings.TrimSpace(ownerID) == "" {
		return widget.Snapshot{}, core.ErrEmptyOwner
	}
	if cached, ok := s.widgets.Get(ownerID); ok {
		return cached, nil
	}
	gen := s.guard.generation(ownerID)
	snap, ok, err := s.store.GetWidgetSnapshot(ctx, ownerID)
	if err != nil {
		return widget.Snapshot{}, fmt.Errorf("read widget snapshot: %w", err)
	}
	if !ok {
		snap = widget.Fallback()
	}
	s.guard.fill(ownerID, gen, func() { s.widgets.Set(ownerID, snap) })
	return snap, nil
}

// ResetWidget restores the fallback snapshot, e.g. on logout.
func (s *MetricsService) ResetWidget(ctx context.Context, ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.ErrEmptyOwner
	}
	if err := s.store.ResetWidget(ctx, ownerID); err != nil {
		return fmt.Errorf("reset widget: %w", err)
	}
	s.guard.invalidate(ownerID, func() { s.widgets.Delete(ownerID) })
	s.logger.InfoContext(ctx, "Widget reset", log.FieldOwnerID, ownerID)
	return nil
}
