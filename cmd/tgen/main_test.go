package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"transcriptgen/internal/db"
	"transcriptgen/internal/domain"
	"transcriptgen/internal/migrate"
	"transcriptgen/internal/store"
)

func TestConfigFlags(t *testing.T) {
	f := configFlags{
		industry:   "travel",
		scenarios:  []string{"booking_change"},
		callTypes:  []string{"outbound", " inbound"},
		sentiments: []string{"angry"},
		records:    7,
		minTurns:   3,
		maxTurns:   9,
		noMetadata: true,
	}
	got := f.config()
	include := false
	want := domain.GenerationConfig{
		Industry:        "travel",
		Scenarios:       []string{"booking_change"},
		CallTypes:       []domain.CallType{domain.CallTypeOutbound, domain.CallTypeInbound},
		Sentiments:      []domain.Sentiment{domain.SentimentAngry},
		NumRecords:      7,
		MinTurns:        3,
		MaxTurns:        9,
		IncludeMetadata: &include,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if err := got.WithDefaults().Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(conn)
}

func TestWaitTerminalAndResults(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st := openStore(t)
	cfg := domain.GenerationConfig{Industry: "retail", NumRecords: 1}.WithDefaults()
	job := domain.NewJob("job-1", cfg, time.Now())
	if err := st.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := jobResults(ctx, st, "job-1"); err == nil {
		t.Fatalf("expected error for job without results")
	}
	if _, err := jobResults(ctx, st, "missing"); err == nil {
		t.Fatalf("expected error for missing job")
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		running, err := st.Claim(ctx, "job-1")
		if err != nil {
			return
		}
		_ = st.SaveResults(ctx, "job-1", []domain.Transcript{{ID: "t-1", Industry: "retail"}})
		_ = running.Complete(1, time.Now())
		_ = st.Update(ctx, running)
	}()

	done, err := waitTerminal(ctx, st, "job-1")
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if done.Status != domain.JobStatusCompleted || done.CompletedRecords != 1 {
		t.Fatalf("job = %+v", done)
	}
	results, err := jobResults(ctx, st, "job-1")
	if err != nil || len(results) != 1 || results[0].ID != "t-1" {
		t.Fatalf("results = %+v, %v", results, err)
	}
}
