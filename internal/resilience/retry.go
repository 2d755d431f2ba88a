package resilience

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

const (
	baseDelay = time.Second
	maxDelay  = 30 * time.Second
)

// ExponentialBackoff returns the delay before retry attempt (0-based):
// 1s doubling, capped at 30s.
func ExponentialBackoff(attempt int) time.Duration {
	return Backoff(attempt, baseDelay, maxDelay)
}

// Backoff doubles base per attempt and caps the result at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

var connectionErrors = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"EOF",
	"broken pipe",
	"use of closed network connection",
	"no such host",
	"i/o timeout",
}

// IsConnectionError reports whether err looks like a transport failure worth retrying.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	for _, s := range connectionErrors {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// RetryConfig controls Retry.
type RetryConfig struct {
	Attempts  int
	Delay     func(attempt int) time.Duration
	Retryable func(error) bool
}

// Retry runs op until it succeeds, returns a non-retryable error, or the
// attempts are used up. It waits Delay(attempt) between tries and stops early
// when ctx is done.
func Retry(ctx context.Context, cfg RetryConfig, op func(context.Context) error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.Delay == nil {
		cfg.Delay = ExponentialBackoff
	}
	if cfg.Retryable == nil {
		cfg.Retryable = IsConnectionError
	}

	var err error
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		if err = op(ctx); err == nil || !cfg.Retryable(err) {
			return err
		}
		if attempt == cfg.Attempts-1 {
			break
		}
		timer := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
