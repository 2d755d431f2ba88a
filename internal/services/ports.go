package services

import (
	"context"
	"time"

	"aetherflow/internal/connectearth"
	"aetherflow/internal/profile"
)

// EmissionsCalculator prices single transactions and monthly batches.
// *connectearth.Client implements it.
type EmissionsCalculator interface {
	profile.Calculator
	CalculateTransaction(ctx context.Context, req connectearth.TransactionRequest) (*connectearth.TransactionResult, error)
}

// ReloadPublisher asks workers to rebuild an owner's summaries.
// *amqp.Client implements it.
type ReloadPublisher interface {
	PublishReload(ctx context.Context, ownerID, reason string, force bool) error
}

// Recorder receives service-level measurements. *telemetry.Metrics implements it.
type Recorder interface {
	RebuildFinished(result string, months int, d time.Duration)
	TransactionRecorded(operation, category string)
	ReloadPublished(success bool)
}

type noopRecorder struct{}

func (noopRecorder) RebuildFinished(string, int, time.Duration) {}
func (noopRecorder) TransactionRecorded(string, string)         {}
func (noopRecorder) ReloadPublished(bool)                       {}

func recorderOrNoop(r Recorder) Recorder {
	if r == nil {
		return noopRecorder{}
	}
	return r
}

// Rebuild outcomes reported to Recorder.
const (
	ResultRebuilt = "rebuilt"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)
