package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"aetherflow/internal/log"
)

// ReloadProcessorConfig holds configuration for the reload processor
type ReloadProcessorConfig struct {
	// PollInterval is how often to look for dirty owners (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of owners rebuilt per poll cycle (default: 20)
	BatchSize int

	// Concurrency bounds parallel rebuilds within a batch (default: 4)
	Concurrency int
}

// DefaultReloadProcessorConfig returns sensible defaults
func DefaultReloadProcessorConfig() ReloadProcessorConfig {
	return ReloadProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    20,
		Concurrency:  4,
	}
}

type dirtyLister interface {
	DirtyOwners(ctx context.Context, limit int) ([]string, error)
}

type reloader interface {
	Reload(ctx context.Context, ownerID string, force bool) (ReloadResult, error)
}

// ReloadProcessor periodically rebuilds owners whose summaries are dirty.
// It backs up AMQP delivery: a lost reload message is picked up on the
// next poll.
type ReloadProcessor struct {
	state    dirtyLister
	reloader reloader
	config   ReloadProcessorConfig
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReloadProcessor(state dirtyLister, r reloader, config ReloadProcessorConfig, logger *log.Logger) *ReloadProcessor {
	def := DefaultReloadProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if logger == nil {
		logger = log.Default(log.ComponentReload)
	}
	return &ReloadProcessor{
		state:    state,
		reloader: r,
		config:   config,
		logger:   logger,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ReloadProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reload processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Reload processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"concurrency", p.config.Concurrency)
	return nil
}

// Stop gracefully stops the processor and waits for the current batch.
func (p *ReloadProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Reload processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Reload processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *ReloadProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReloadProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// process immediately on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch rebuilds one batch of dirty owners and returns how many
// were rebuilt. Failures are logged; the owner stays dirty for the next poll.
func (p *ReloadProcessor) ProcessBatch(ctx context.Context) int {
	owners, err := p.state.DirtyOwners(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list dirty owners", log.FieldError, err.Error())
		return 0
	}
	if len(owners) == 0 {
		return 0
	}

	p.logger.DebugContext(ctx, "Processing reload batch", "count", len(owners))

	var (
		mu      sync.Mutex
		rebuilt int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)
	for _, owner := range owners {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := p.reloader.Reload(gctx, owner, false)
			if err != nil {
				p.logger.WarnContext(gctx, "Reload failed",
					log.FieldOwnerID, owner, log.FieldError, err.Error())
				return nil
			}
			if res.Rebuilt {
				mu.Lock()
				rebuilt++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.InfoContext(ctx, "Reload batch completed",
		"owners", len(owners),
		"rebuilt", rebuilt)
	return rebuilt
}
