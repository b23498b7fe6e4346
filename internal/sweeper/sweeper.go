// Package sweeper fails out jobs that were requested or started but
// never reached a terminal state before their expiry.
package sweeper

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/calebt/typeset/internal/models"
)

// Opts holds parameters for creating a Sweeper.
type Opts struct {
	DB *gorm.DB
	// Schedule is a standard 5-field cron expression.
	Schedule string
	Out      io.Writer
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Sweeper periodically scans for expired unfinished jobs and marks
// them failed so they stop looking in-flight forever.
type Sweeper struct {
	db       *gorm.DB
	schedule string
	out      io.Writer
	now      func() time.Time
}

func New(opts Opts) (*Sweeper, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("sweeper: db is required")
	}
	if opts.Schedule == "" {
		opts.Schedule = "*/10 * * * *"
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Sweeper{db: opts.DB, schedule: opts.Schedule, out: opts.Out, now: now}, nil
}

// Sweep performs one pass and returns how many jobs it failed out.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()

	var jobs []models.Job
	err := s.db.WithContext(ctx).
		Where("ended_at IS NULL AND expires_at IS NOT NULL AND expires_at < ?", now).
		Where("status IN ?", []string{models.StatusRequested, models.StatusStarted}).
		Find(&jobs).Error
	if err != nil {
		return 0, fmt.Errorf("sweeper: find expired jobs: %w", err)
	}

	for i := range jobs {
		job := &jobs[i]
		success := false
		endedAt := now
		job.Status = models.StatusFailed
		job.Success = &success
		job.EndedAt = &endedAt
		job.Message = "Conversion failed"
		job.ErrorMessage(fmt.Sprintf("Job %s expired before completing", job.JobID))
		if err := s.db.WithContext(ctx).Save(job).Error; err != nil {
			return i, fmt.Errorf("sweeper: fail job %s: %w", job.JobID, err)
		}
		fmt.Fprintf(s.out, "sweeper: failed out expired job %s (%s)\n", job.JobID, job.Identifier)
	}
	return len(jobs), nil
}

// Run sweeps on the configured cron schedule until ctx is cancelled.
// The first sweep happens immediately, not at the first cron tick.
func (s *Sweeper) Run(ctx context.Context) error {
	if _, err := s.Sweep(ctx); err != nil {
		fmt.Fprintf(s.out, "%v\n", err)
	}

	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			fmt.Fprintf(s.out, "%v\n", err)
		}
	})
	if err != nil {
		return fmt.Errorf("sweeper: bad schedule %q: %w", s.schedule, err)
	}

	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}
