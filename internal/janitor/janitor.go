// Package janitor runs the periodic maintenance jobs of the server, today
// only pruning of aged build log entries.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/arc-components/arcci/internal/buildlog"
	"github.com/arc-components/arcci/internal/logfields"
)

// Janitor wraps a gocron scheduler for periodic maintenance tasks.
type Janitor struct {
	scheduler gocron.Scheduler
	log       *buildlog.Store
	retention time.Duration
}

func New(log *buildlog.Store, retention, interval time.Duration) (*Janitor, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	j := &Janitor{scheduler: s, log: log, retention: retention}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(j.prune),
		gocron.WithName("buildlog-prune"),
	)
	if err != nil {
		return nil, fmt.Errorf("create prune job: %w", err)
	}

	return j, nil
}

// Start begins the scheduler.
func (j *Janitor) Start() {
	slog.Info("Starting janitor", slog.Duration("retention", j.retention))
	j.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (j *Janitor) Stop() error {
	slog.Info("Stopping janitor")
	return j.scheduler.Shutdown()
}

func (j *Janitor) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-j.retention)
	removed, err := j.log.PruneBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Build log prune failed", logfields.Error(err))
		return
	}
	if removed > 0 {
		slog.Info("Pruned build log entries", slog.Int64("removed", removed))
	}
}
