package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"transcriptgen/internal/db"
	"transcriptgen/internal/domain"
	"transcriptgen/internal/migrate"
	"transcriptgen/internal/store"
)

type fakeGenerator struct {
	started  chan string
	release  chan struct{}
	err      error
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeGenerator) GeneratePreview(_ context.Context, cfg domain.GenerationConfig) ([]domain.Transcript, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]domain.Transcript, min(cfg.NumRecords, 5)), nil
}

func (f *fakeGenerator) GenerateBatch(_ context.Context, cfg domain.GenerationConfig) ([]domain.Transcript, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.started != nil {
		f.started <- cfg.Industry
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Transcript, cfg.NumRecords)
	for i := range out {
		out[i] = domain.Transcript{ID: "tx", Industry: cfg.Industry, Conversation: []domain.ConversationTurn{{Speaker: domain.SpeakerAgent, Text: "hi"}}}
	}
	return out, nil
}

func setup(t *testing.T, gen Generator, maxJobs int) (*Orchestrator, *store.Store) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(conn)
	return New(st, gen, maxJobs, nil, nil), st
}

func waitTask(t *testing.T, task *Task) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := task.Wait(ctx); err != nil {
		t.Fatalf("task wait: %v", err)
	}
}

func TestBatchCompletes(t *testing.T) {
	ctx := context.Background()
	o, st := setup(t, &fakeGenerator{}, 1)
	job, task, err := o.StartBatch(ctx, domain.GenerationConfig{Industry: "retail", NumRecords: 3})
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	if job.Status != domain.JobStatusPending || job.TotalRecords != 3 {
		t.Fatalf("returned job = %+v", job)
	}
	waitTask(t, task)

	got, err := st.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobStatusCompleted || got.Progress != 100 || got.CompletedRecords != 3 || got.CompletedAt == nil {
		t.Fatalf("completed job = %+v", got)
	}
	results, _ := st.GetResults(ctx, job.ID)
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
}

func TestBatchFailureRecorded(t *testing.T) {
	ctx := context.Background()
	o, st := setup(t, &fakeGenerator{err: errors.New("Batch generation failed: model offline")}, 1)
	job, task, err := o.StartBatch(ctx, domain.GenerationConfig{Industry: "retail", NumRecords: 3})
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	waitTask(t, task)
	got, _ := st.Get(ctx, job.ID)
	if got.Status != domain.JobStatusFailed || got.Error == nil || *got.Error != "Batch generation failed: model offline" {
		t.Fatalf("failed job = %+v", got)
	}
	if got.Progress != 0 || got.CompletedRecords != 0 {
		t.Fatalf("failure must not touch progress: %+v", got)
	}
	if res, _ := st.GetResults(ctx, job.ID); res != nil {
		t.Fatalf("failed job should have no results, got %d", len(res))
	}
}

func TestDeleteMidRunIsNoOp(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{started: make(chan string, 1), release: make(chan struct{})}
	o, st := setup(t, gen, 1)
	job, task, err := o.StartBatch(ctx, domain.GenerationConfig{Industry: "travel", NumRecords: 2})
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	<-gen.started
	running, _ := st.Get(ctx, job.ID)
	if running.Status != domain.JobStatusRunning {
		t.Fatalf("expected running, got %s", running.Status)
	}
	if ok, err := st.Delete(ctx, job.ID); !ok || err != nil {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	close(gen.release)
	waitTask(t, task)

	if _, err := st.Get(ctx, job.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("deleted job reappeared: %v", err)
	}
	if _, err := st.GetResults(ctx, job.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("results written for deleted job: %v", err)
	}
}

func TestConcurrencyCeiling(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{started: make(chan string, 4), release: make(chan struct{})}
	o, st := setup(t, gen, 2)
	var tasks []*Task
	var ids []string
	for i := 0; i < 4; i++ {
		job, task, err := o.StartBatch(ctx, domain.GenerationConfig{Industry: "telecom", NumRecords: 1})
		if err != nil {
			t.Fatalf("start batch: %v", err)
		}
		tasks = append(tasks, task)
		ids = append(ids, job.ID)
	}
	<-gen.started
	<-gen.started
	select {
	case <-gen.started:
		t.Fatalf("third job started past the ceiling")
	case <-time.After(100 * time.Millisecond):
	}
	pending := 0
	for _, id := range ids {
		j, _ := st.Get(ctx, id)
		if j.Status == domain.JobStatusPending {
			pending++
		}
	}
	if pending != 2 {
		t.Fatalf("expected 2 queued jobs, got %d", pending)
	}
	close(gen.release)
	for _, task := range tasks {
		waitTask(t, task)
	}
	if gen.peak.Load() > 2 {
		t.Fatalf("peak concurrency %d exceeds ceiling", gen.peak.Load())
	}
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := o.Wait(waitCtx); err != nil {
		t.Fatalf("wait all: %v", err)
	}
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	o, st := setup(t, &fakeGenerator{}, 2)

	now := time.Now()
	stale := domain.NewJob("stale", domain.GenerationConfig{Industry: "finance"}.WithDefaults(), now)
	_ = st.Create(ctx, stale)
	_ = stale.Start()
	_ = st.Update(ctx, stale)
	queued := domain.NewJob("queued", domain.GenerationConfig{Industry: "finance", NumRecords: 2}.WithDefaults(), now.Add(time.Second))
	_ = st.Create(ctx, queued)

	tasks, err := o.Resume(ctx)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("rescheduled %d jobs", len(tasks))
	}
	waitTask(t, tasks[0])

	got, _ := st.Get(ctx, "stale")
	if got.Status != domain.JobStatusFailed || got.Error == nil || *got.Error != interruptedMessage {
		t.Fatalf("stale job = %+v", got)
	}
	got, _ = st.Get(ctx, "queued")
	if got.Status != domain.JobStatusCompleted || got.CompletedRecords != 2 {
		t.Fatalf("queued job = %+v", got)
	}
}

func TestPreviewValidates(t *testing.T) {
	o, _ := setup(t, &fakeGenerator{}, 1)
	var verr *domain.ValidationError
	if _, err := o.Preview(context.Background(), domain.GenerationConfig{Industry: "retail", MinTurns: 9, MaxTurns: 3}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	out, err := o.Preview(context.Background(), domain.GenerationConfig{Industry: "retail", NumRecords: 20})
	if err != nil || len(out) != 5 {
		t.Fatalf("preview = %d, %v", len(out), err)
	}
	if _, _, err := o.StartBatch(context.Background(), domain.GenerationConfig{}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for batch, got %v", err)
	}
}

func TestEnqueueAndSchedulePending(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{started: make(chan string, 1), release: make(chan struct{})}
	o, st := setup(t, gen, 1)

	job, err := o.Enqueue(ctx, domain.GenerationConfig{Industry: "insurance", NumRecords: 1})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, tracked := o.Task(job.ID); tracked {
		t.Fatalf("enqueue must not schedule")
	}
	tasks, err := o.SchedulePending(ctx)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("first schedule = %d, %v", len(tasks), err)
	}
	<-gen.started
	again, err := o.SchedulePending(ctx)
	if err != nil || len(again) != 0 {
		t.Fatalf("tracked job scheduled twice: %d, %v", len(again), err)
	}
	close(gen.release)
	waitTask(t, tasks[0])
	got, _ := st.Get(ctx, job.ID)
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("job = %+v", got)
	}
}

func TestRunSkipsJobClaimedElsewhere(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	o, st := setup(t, gen, 1)
	job := domain.NewJob("claimed", domain.GenerationConfig{Industry: "retail"}.WithDefaults(), time.Now())
	_ = st.Create(ctx, job)
	_ = job.Start()
	_ = st.Update(ctx, job)

	if err := o.run(ctx, job.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	if gen.peak.Load() != 0 {
		t.Fatalf("generator ran for a job owned by another worker")
	}
	got, _ := st.Get(ctx, job.ID)
	if got.Status != domain.JobStatusRunning {
		t.Fatalf("job = %+v", got)
	}
}

func TestWatchPicksUpQueuedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o, st := setup(t, &fakeGenerator{}, 1)
	job, err := o.Enqueue(ctx, domain.GenerationConfig{Industry: "healthcare", NumRecords: 2})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	go o.Watch(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := st.Get(context.Background(), job.ID)
		if got.Status == domain.JobStatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("queued job never completed")
}
