package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type ReconcileJob interface {
	Run()
}

type SchedulerParams struct {
	Logger zerolog.Logger
}

func NewScheduler(params SchedulerParams) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{params.Logger})),
		logger: params.Logger,
		jobs:   make(map[cron.EntryID]string),
	}
}

// Scheduler runs reconcile jobs on cron schedules. A job that is still
// running when its next tick comes is skipped for that tick.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[cron.EntryID]string
	logger zerolog.Logger
}

// Start the scheduler in its own routine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop the scheduler and wait for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) AddReconcileJob(name string, schedule string, job ReconcileJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wrapped := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.logger.With().Str("job", name).Logger()})).Then(job)
	entry, err := s.cron.AddJob(schedule, wrapped)
	if err != nil {
		return fmt.Errorf("could not add reconcile job %s: %w", name, err)
	}

	s.jobs[entry] = name

	return nil
}

func (s *Scheduler) RemoveJobs() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for entry := range s.jobs {
		s.cron.Remove(entry)
		delete(s.jobs, entry)
	}
}

// NextRuns maps job names to their next activation time.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]time.Time, len(s.jobs))
	for _, entry := range s.cron.Entries() {
		if name, ok := s.jobs[entry.ID]; ok {
			next[name] = entry.Next
		}
	}
	return next
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
