package tle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Scheduler calls Refresh on a fixed period. Each attempt that fails is
// retried with exponential backoff before waiting for the next period.
type Scheduler struct {
	refresher  *Refresher
	period     time.Duration
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// NewScheduler creates a Scheduler. maxRetries bounds the retries per period.
func NewScheduler(refresher *Refresher, period time.Duration, maxRetries int, logger *slog.Logger) *Scheduler {
	if period <= 0 {
		period = 6 * time.Hour
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Scheduler{
		refresher:  refresher,
		period:     period,
		maxRetries: uint64(maxRetries),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 5 * time.Second
			b.MaxInterval = 5 * time.Minute
			b.MaxElapsedTime = 0
			return b
		},
		logger: logger,
	}
}

// Run refreshes immediately, then every period, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("catalog refresh scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one refresh with retries and returns the final error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	attempt := 0
	op := func() error {
		attempt++
		res, err := s.refresher.Refresh(ctx)
		if err != nil {
			// Empty documents are an upstream data problem; retrying won't help.
			if errors.Is(err, ErrEmptyCatalog) {
				return backoff.Permanent(err)
			}
			s.logger.Warn("catalog refresh attempt failed", "attempt", attempt, "error", err)
			return err
		}
		s.logger.Debug("catalog refresh attempt succeeded",
			"attempt", attempt,
			"published", res.Published,
			"fetched", res.Fetched,
			"stale", res.Stale,
		)
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.maxRetries), ctx)
	err := backoff.Retry(op, b)
	if err != nil {
		s.logger.Error("catalog refresh failed", "attempts", attempt, "error", err)
	}
	return err
}
