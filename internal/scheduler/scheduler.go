// internal/scheduler/scheduler.go
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is one recurring unit of background work, such as a retention pass or
// an ambient capture tick.
type Job struct {
	Name     string
	Schedule string
	Enabled  bool
	Run      func()
}

// Scheduler drives jobs on cron schedules.
type Scheduler struct {
	jobs []Job
	cron *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler over the given jobs. Nothing runs until Start.
func New(jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs: jobs,
		cron: cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers enabled jobs that have a schedule and starts the cron
// ticker. Jobs with invalid schedules are logged and skipped.
func (s *Scheduler) Start() error {
	for _, job := range s.jobs {
		if job.Schedule == "" || !job.Enabled || job.Run == nil {
			continue
		}
		name := job.Name
		run := job.Run
		_, err := s.cron.AddFunc(job.Schedule, func() {
			slog.Info("cron firing job", "name", name)
			run()
		})
		if err != nil {
			slog.Error("invalid cron schedule", "name", name, "schedule", job.Schedule, "error", err)
			continue
		}
		slog.Info("scheduled job", "name", name, "schedule", job.Schedule)
	}
	s.cron.Start()
	return nil
}

// Reload stops the existing cron, swaps in the new job set, and starts
// again.
func (s *Scheduler) Reload(jobs ...Job) error {
	s.cron.Stop()
	s.jobs = jobs
	s.cron = cron.New(cron.WithParser(cronParser))
	return s.Start()
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
