// Package orchestrator runs previews inline and batch jobs in the background.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"transcriptgen/internal/domain"
	"transcriptgen/internal/metrics"
	"transcriptgen/internal/store"
)

// DefaultMaxJobs bounds concurrently running batch jobs.
const DefaultMaxJobs = 2

const interruptedMessage = "interrupted by restart"

// Generator is the part of the pipeline the orchestrator drives.
type Generator interface {
	GeneratePreview(ctx context.Context, cfg domain.GenerationConfig) ([]domain.Transcript, error)
	GenerateBatch(ctx context.Context, cfg domain.GenerationConfig) ([]domain.Transcript, error)
}

type Orchestrator struct {
	Store    *store.Store
	Pipeline Generator
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
	NewID    func() string

	slots *semaphore.Weighted
	wg    sync.WaitGroup
	mu    sync.Mutex
	tasks map[string]*Task
}

func New(st *store.Store, gen Generator, maxJobs int, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Store:    st,
		Pipeline: gen,
		Logger:   logger,
		Metrics:  m,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
		slots:    semaphore.NewWeighted(int64(maxJobs)),
		tasks:    map[string]*Task{},
	}
}

// Task tracks one scheduled batch run.
type Task struct {
	JobID string
	done  chan struct{}
	err   error
}

// Done is closed once the run has finished writing.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the run finishes or ctx ends. The returned error covers
// bookkeeping failures only; generation failures are recorded on the job.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Preview validates cfg and generates up to five transcripts synchronously.
func (o *Orchestrator) Preview(ctx context.Context, cfg domain.GenerationConfig) ([]domain.Transcript, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return o.Pipeline.GeneratePreview(ctx, cfg)
}

// StartBatch persists a pending job and schedules its run. The job is
// returned before any generation starts.
func (o *Orchestrator) StartBatch(ctx context.Context, cfg domain.GenerationConfig) (domain.GenerationJob, *Task, error) {
	job, err := o.Enqueue(ctx, cfg)
	if err != nil {
		return domain.GenerationJob{}, nil, err
	}
	task, _ := o.schedule(job.ID)
	return job, task, nil
}

// Enqueue persists a pending job without running it. A process calling
// Watch or Resume on the same workspace picks it up.
func (o *Orchestrator) Enqueue(ctx context.Context, cfg domain.GenerationConfig) (domain.GenerationJob, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return domain.GenerationJob{}, err
	}
	job := domain.NewJob(o.NewID(), cfg, o.Now())
	if err := o.Store.Create(ctx, job); err != nil {
		return domain.GenerationJob{}, err
	}
	o.Logger.Info("batch job created", "job", job.ID, "industry", cfg.Industry, "records", job.TotalRecords)
	return job, nil
}

// Task returns the in-flight task for a job, if any.
func (o *Orchestrator) Task(jobID string) (*Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[jobID]
	return t, ok
}

// Wait blocks until every scheduled run has finished or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume restores work after a restart: jobs caught running are failed and
// pending jobs are scheduled again.
func (o *Orchestrator) Resume(ctx context.Context) ([]*Task, error) {
	running, err := o.Store.ListByStatus(ctx, domain.JobStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	for _, job := range running {
		if err := job.Fail(interruptedMessage); err != nil {
			return nil, err
		}
		if err := o.Store.Update(ctx, job); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("fail interrupted job %s: %w", job.ID, err)
		}
		o.Logger.Warn("job interrupted by restart", "job", job.ID)
	}
	tasks, err := o.SchedulePending(ctx)
	if err != nil {
		return nil, err
	}
	if len(running)+len(tasks) > 0 {
		o.Logger.Info("resumed jobs", "failed", len(running), "rescheduled", len(tasks))
	}
	return tasks, nil
}

// SchedulePending schedules every pending job this process is not already
// tracking, oldest first.
func (o *Orchestrator) SchedulePending(ctx context.Context) ([]*Task, error) {
	pending, err := o.Store.ListByStatus(ctx, domain.JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	tasks := make([]*Task, 0, len(pending))
	for _, job := range pending {
		if task, created := o.schedule(job.ID); created {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// Watch picks up jobs enqueued by other processes every interval until ctx
// ends.
func (o *Orchestrator) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		tasks, err := o.SchedulePending(ctx)
		if err != nil {
			o.Logger.Warn("poll pending jobs failed", "err", err)
			continue
		}
		if len(tasks) > 0 {
			o.Logger.Info("picked up queued jobs", "count", len(tasks))
		}
	}
}

// schedule starts a run for jobID unless one is already tracked, in which case
// the existing task is returned with created false.
func (o *Orchestrator) schedule(jobID string) (*Task, bool) {
	o.mu.Lock()
	if t, ok := o.tasks[jobID]; ok {
		o.mu.Unlock()
		return t, false
	}
	t := &Task{JobID: jobID, done: make(chan struct{})}
	o.tasks[jobID] = t
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.tasks, jobID)
			o.mu.Unlock()
			close(t.done)
		}()
		t.err = o.run(context.Background(), jobID)
		if t.err != nil {
			o.Logger.Error("batch job bookkeeping failed", "job", jobID, "err", t.err)
		}
	}()
	return t, true
}

// run executes one job. A job deleted at any point turns every later write
// into a no-op.
func (o *Orchestrator) run(ctx context.Context, jobID string) error {
	if err := o.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer o.slots.Release(1)

	// Another process sharing the workspace may have claimed the job first.
	job, err := o.Store.Claim(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}
	o.Metrics.JobStarted()
	o.Logger.Info("batch job running", "job", jobID)

	results, genErr := o.Pipeline.GenerateBatch(ctx, job.Config)
	if genErr == nil {
		if err := o.Store.SaveResults(ctx, jobID, results); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				o.Metrics.JobFinished("deleted")
				return nil
			}
			genErr = fmt.Errorf("save results: %w", err)
		}
	}

	if genErr != nil {
		if err := job.Fail(genErr.Error()); err != nil {
			return err
		}
		o.Metrics.JobFinished(string(domain.JobStatusFailed))
		o.Logger.Warn("batch job failed", "job", jobID, "err", genErr)
		return ignoreNotFound(o.Store.Update(ctx, job))
	}

	if err := job.Complete(len(results), o.Now()); err != nil {
		return err
	}
	o.Metrics.JobFinished(string(domain.JobStatusCompleted))
	o.Logger.Info("batch job completed", "job", jobID, "records", len(results))
	return ignoreNotFound(o.Store.Update(ctx, job))
}

func ignoreNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
