// Package scheduler turns cron ticks into lifecycle job tasks. The jobs
// themselves run on the background worker.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/K3mp3/FixMatch/internal/config"
	"github.com/K3mp3/FixMatch/internal/tasks"
)

// tickWindow is how long a tick's task stays unique in the queue.
const tickWindow = time.Minute

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron       *cron.Cron
	taskClient tasks.IAsynqClient
	cfg        *config.Config
	entries    map[string]cron.EntryID
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(cfg *config.Config, taskClient tasks.IAsynqClient) *Scheduler {
	logger := cron.PrintfLogger(log.New(os.Stdout, "cron: ", log.LstdFlags))
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)
	return &Scheduler{
		cron:       c,
		taskClient: taskClient,
		cfg:        cfg,
		entries:    map[string]cron.EntryID{},
	}
}

// Schedules maps each job task type to its cron spec.
func (s *Scheduler) Schedules() map[string]string {
	return map[string]string{
		tasks.TypeInactivitySweep:   s.cfg.CronInactivitySweep,
		tasks.TypeScheduledDeletion: s.cfg.CronScheduledDeletion,
		tasks.TypeUnverifiedSweep:   s.cfg.CronUnverifiedSweep,
		tasks.TypeTrialReminder:     s.cfg.CronTrialReminder,
		tasks.TypeOfferNotifier:     s.cfg.CronOfferNotifier,
		tasks.TypeRetentionPurge:    s.cfg.CronRetentionPurge,
		tasks.TypeOutboxRelay:       s.cfg.CronOutboxRelay,
	}
}

// Register adds every job with a non-empty spec. An empty spec disables the job.
func (s *Scheduler) Register() error {
	for _, typ := range tasks.JobTypes() {
		spec := s.Schedules()[typ]
		if spec == "" {
			log.Printf("Scheduler: job %s disabled (no schedule)", typ)
			continue
		}
		taskType := typ
		id, err := s.cron.AddFunc(spec, func() {
			if err := s.Enqueue(context.Background(), taskType, time.Now()); err != nil {
				log.Printf("Scheduler: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", spec, taskType, err)
		}
		s.entries[taskType] = id
		log.Printf("Scheduler: %s scheduled at %q", taskType, spec)
	}
	return nil
}

// Enqueue hands one tick of a job to the worker queue. A tick that is
// already queued is skipped.
func (s *Scheduler) Enqueue(ctx context.Context, taskType string, at time.Time) error {
	task, err := tasks.NewJobTask(taskType, at, tickWindow, s.cfg.JobTimeout)
	if err != nil {
		return err
	}
	_, err = s.taskClient.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		log.Printf("Scheduler: %s already enqueued for this tick", taskType)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}
	return nil
}

// Entry returns the cron entry registered for a job type.
func (s *Scheduler) Entry(taskType string) (cron.Entry, bool) {
	id, ok := s.entries[taskType]
	if !ok {
		return cron.Entry{}, false
	}
	return s.cron.Entry(id), true
}

// Start runs the cron scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
