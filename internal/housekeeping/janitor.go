package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const clearTimeout = 10 * time.Second

// Clearer removes finished tasks.
type Clearer interface {
	ClearCompleted(ctx context.Context) (int, error)
}

// Janitor clears finished tasks on a cron schedule.
type Janitor struct {
	clearer  Clearer
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewJanitor parses schedule (standard five-field cron or a descriptor such
// as @hourly). An empty schedule yields a Janitor that never runs.
func NewJanitor(clearer Clearer, schedule string, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		clearer:  clearer,
		schedule: strings.TrimSpace(schedule),
		logger:   logger,
	}
	if j.schedule == "" {
		return j, nil
	}

	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.schedule, j.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid clear schedule %q: %w", j.schedule, err)
	}
	return j, nil
}

// Enabled reports whether a schedule was configured.
func (j *Janitor) Enabled() bool {
	return j.cron != nil
}

func (j *Janitor) Start() {
	if j.cron == nil {
		return
	}
	j.cron.Start()
	j.logger.Info("Janitor started", "schedule", j.schedule)
}

// Stop prevents further runs and waits for a running one to finish or ctx
// to expire.
func (j *Janitor) Stop(ctx context.Context) {
	if j.cron == nil {
		return
	}
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce clears finished tasks now.
func (j *Janitor) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), clearTimeout)
	defer cancel()

	n, err := j.clearer.ClearCompleted(ctx)
	if err != nil {
		j.logger.Error("Scheduled clear failed", "error", err)
		return
	}
	if n > 0 {
		j.logger.Info("Scheduled clear removed finished tasks", "count", n)
	}
}
