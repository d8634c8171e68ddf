package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tour-price-tracker/internal/syncer"
)

// ErrAlreadyRunning is returned when a job instance is still in flight.
var ErrAlreadyRunning = errors.New("scheduler: job already running")

// SyncRunner is the sync engine surface the scheduler drives.
type SyncRunner interface {
	SyncAll(ctx context.Context) (syncer.Stats, error)
}

// HistoryCleaner prunes price history past the retention window.
type HistoryCleaner interface {
	CountPriceHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeletePriceHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// JobState is a job's lifecycle position.
type JobState string

const (
	JobIdle    JobState = "idle"
	JobRunning JobState = "running"
)

// JobStatus is one job's snapshot for status reporting.
type JobStatus struct {
	Name    string
	State   JobState
	LastRun time.Time
	LastErr string
	NextRun time.Time
}

// jobState guards single-instance execution per job.
type jobState struct {
	mu      sync.Mutex
	running bool
	state   JobState
	lastRun time.Time
	lastErr error
}

func newJobState() *jobState {
	return &jobState{state: JobIdle}
}

func (j *jobState) tryStart(at time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return false
	}
	j.running = true
	j.state = JobRunning
	j.lastRun = at
	return true
}

// finish settles the job back to idle. A failed run keeps its error in
// lastErr for status reporting but never wedges the state machine.
func (j *jobState) finish(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.running = false
	j.lastErr = err
	j.state = JobIdle
}

func (j *jobState) snapshot() (JobState, time.Time, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state, j.lastRun, j.lastErr
}

// Options tune scheduler behaviour.
type Options struct {
	SyncInterval  time.Duration
	CleanupSpec   string
	RetentionDays int
}

// Scheduler drives the periodic price sync and the daily history
// cleanup. Each job runs at most one instance at a time; an overlapping
// tick is skipped, never queued.
type Scheduler struct {
	cron    *cron.Cron
	syncs   SyncRunner
	cleaner HistoryCleaner
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time

	syncJob      *jobState
	cleanupJob   *jobState
	syncEntry    cron.EntryID
	cleanupEntry cron.EntryID
}

// New constructs a stopped scheduler.
func New(syncs SyncRunner, cleaner HistoryCleaner, opts Options, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		syncs:      syncs,
		cleaner:    cleaner,
		opts:       opts,
		logger:     logger.With().Str("component", "scheduler").Logger(),
		now:        time.Now,
		syncJob:    newJobState(),
		cleanupJob: newJobState(),
	}
}

// Start registers both jobs and begins ticking. The given context is the
// base context every job run inherits.
func (s *Scheduler) Start(ctx context.Context) error {
	syncSpec := fmt.Sprintf("@every %s", s.opts.SyncInterval)
	syncEntry, err := s.cron.AddFunc(syncSpec, func() {
		if err := s.RunPriceSync(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			s.logger.Error().Err(err).Msg("scheduled sync failed")
		}
	})
	if err != nil {
		return fmt.Errorf("register sync job: %w", err)
	}
	s.syncEntry = syncEntry

	cleanupEntry, err := s.cron.AddFunc(s.opts.CleanupSpec, func() {
		if err := s.RunCleanup(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			s.logger.Error().Err(err).Msg("scheduled cleanup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("register cleanup job: %w", err)
	}
	s.cleanupEntry = cleanupEntry

	s.cron.Start()
	s.logger.Info().
		Str("sync_every", s.opts.SyncInterval.String()).
		Str("cleanup_cron", s.opts.CleanupSpec).
		Msg("scheduler started")
	return nil
}

// Stop halts ticking and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// RunPriceSync executes one sync pass now, refusing to overlap a run
// already in flight.
func (s *Scheduler) RunPriceSync(ctx context.Context) error {
	if !s.syncJob.tryStart(s.now().UTC()) {
		s.logger.Warn().Msg("price sync already running, skipping")
		return ErrAlreadyRunning
	}

	stats, err := s.syncs.SyncAll(ctx)
	s.syncJob.finish(err)
	if err != nil {
		return fmt.Errorf("price sync: %w", err)
	}

	s.logger.Info().
		Int("found", stats.Found).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("price_changes", stats.PriceChanges).
		Int("errors", stats.Errors).
		Msg("price sync run finished")
	return nil
}

// RunCleanup deletes history rows older than the retention window. The
// count runs first so an empty window is a logged no-op without a delete.
func (s *Scheduler) RunCleanup(ctx context.Context) error {
	if !s.cleanupJob.tryStart(s.now().UTC()) {
		s.logger.Warn().Msg("cleanup already running, skipping")
		return ErrAlreadyRunning
	}

	cutoff := s.now().UTC().AddDate(0, 0, -s.opts.RetentionDays)

	count, err := s.cleaner.CountPriceHistoryBefore(ctx, cutoff)
	if err != nil {
		s.cleanupJob.finish(err)
		return fmt.Errorf("count stale history: %w", err)
	}
	if count == 0 {
		s.cleanupJob.finish(nil)
		s.logger.Info().Time("cutoff", cutoff).Msg("no price history past retention")
		return nil
	}

	deleted, err := s.cleaner.DeletePriceHistoryBefore(ctx, cutoff)
	s.cleanupJob.finish(err)
	if err != nil {
		return fmt.Errorf("delete stale history: %w", err)
	}

	s.logger.Info().
		Time("cutoff", cutoff).
		Int64("deleted", deleted).
		Msg("price history pruned")
	return nil
}

// Status reports both jobs with their next scheduled run.
func (s *Scheduler) Status() []JobStatus {
	return []JobStatus{
		s.statusOf("price_sync", s.syncJob, s.syncEntry),
		s.statusOf("history_cleanup", s.cleanupJob, s.cleanupEntry),
	}
}

func (s *Scheduler) statusOf(name string, job *jobState, entry cron.EntryID) JobStatus {
	state, lastRun, lastErr := job.snapshot()
	status := JobStatus{Name: name, State: state, LastRun: lastRun}
	if lastErr != nil {
		status.LastErr = lastErr.Error()
	}
	if entry != 0 {
		status.NextRun = s.cron.Entry(entry).Next
	}
	return status
}
