// Package scheduler runs the attendance pull and process job on a cron
// expression inside the API process.
package scheduler

import (
	"context"
	"fmt"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"studio-backend/internal/logging"
	"studio-backend/internal/model"
)

// Job is the scheduled work. AttendanceSyncService.RunScheduled satisfies it.
type Job func(ctx context.Context) []model.OperationResult

type Scheduler struct {
	cron    *rcron.Cron
	log     *logrus.Logger
	timeout time.Duration
}

// New builds a scheduler whose expressions are evaluated in loc. Expressions
// accept an optional leading seconds field.
func New(loc *time.Location, logger *logrus.Logger, timeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	parser := rcron.NewParser(rcron.SecondOptional | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor)
	return &Scheduler{
		cron: rcron.New(
			rcron.WithLocation(loc),
			rcron.WithParser(parser),
			rcron.WithChain(rcron.SkipIfStillRunning(rcron.DiscardLogger)),
		),
		log:     logger,
		timeout: timeout,
	}
}

// Add registers job under name on expression.
func (s *Scheduler) Add(name, expression string, job Job) error {
	if expression == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	_, err := s.cron.AddFunc(expression, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("failed to add job %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	entry := s.log.WithField("job", name)
	ctx, cancel := context.WithTimeout(logging.WithContext(context.Background(), entry), s.timeout)
	defer cancel()

	started := time.Now()
	results := job(ctx)
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
			entry.WithField("message", r.Message).Warn("scheduled step failed")
		}
	}
	entry.WithFields(logrus.Fields{
		"steps":    len(results),
		"failed":   failed,
		"duration": time.Since(started).String(),
	}).Info("scheduled job finished")
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
