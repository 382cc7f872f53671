// Package decay ages out vendor aliases that have not matched anything for
// a long time. Confidence is multiplied by a constant factor per run, gated
// by a staleness check, so repeated or overlapping runs are safe.
package decay

import (
	"context"
	"log/slog"
	"time"

	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/config"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/storage"
)

// Job periodically decays the confidence of stale vendor aliases.
type Job struct {
	repo   storage.Repository
	logger *slog.Logger
	cfg    config.DecayConfig

	stop chan struct{}
	done chan struct{}
}

// NewJob creates a decay job
func NewJob(repo storage.Repository, cfg config.DecayConfig, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		repo:   repo,
		logger: logger,
		cfg:    cfg,
	}
}

// Start launches the recurring decay loop in a goroutine. Call Stop to
// shut it down.
func (j *Job) Start() {
	j.stop = make(chan struct{})
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(j.cfg.Interval)
		defer ticker.Stop()

		j.logger.Info("alias decay job started", "interval", j.cfg.Interval)
		for {
			select {
			case <-ticker.C:
				if _, err := j.RunOnce(context.Background()); err != nil {
					j.logger.Error("decay run failed", "error", err)
				}
			case <-j.stop:
				return
			}
		}
	}()
}

// Stop shuts down the decay loop and waits for it to exit
func (j *Job) Stop() {
	if j.stop == nil {
		return
	}
	close(j.stop)
	<-j.done
	j.logger.Info("alias decay job stopped")
}

// RunOnce decays every stale alias once and returns the number decayed.
// A failure on one alias is logged and the run continues.
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-j.cfg.StaleAfter)

	stale, err := j.repo.ListStaleAliases(cutoff, j.cfg.ConfidenceMin)
	if err != nil {
		return 0, err
	}

	decayed := 0
	for _, alias := range stale {
		if err := ctx.Err(); err != nil {
			return decayed, err
		}

		next := alias.Confidence * j.cfg.Factor
		if err := j.repo.UpdateAliasConfidence(alias.ID, next); err != nil {
			j.logger.Warn("alias decay update failed",
				"alias_id", alias.ID,
				"pattern", alias.Pattern,
				"error", err,
			)
			continue
		}
		decayed++
	}

	if decayed > 0 {
		j.logger.Info("alias decay run finished", "stale", len(stale), "decayed", decayed)
	}
	return decayed, nil
}
