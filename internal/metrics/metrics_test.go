package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.JobStarted()
	m.JobStarted()
	m.JobFinished("completed")
	m.ObserveGeneration("batch", 1.5, nil)
	m.ObserveGeneration("preview", 0.2, errors.New("boom"))
	m.TranscriptsProduced("batch", 7)
	m.PlaceholderUsed()
	m.WebhookFailed()

	if got := testutil.ToFloat64(m.jobsRunning); got != 1 {
		t.Fatalf("running gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.transcripts.WithLabelValues("batch")); got != 7 {
		t.Fatalf("transcripts = %v", got)
	}
	if got := testutil.ToFloat64(m.jobsFinished.WithLabelValues("completed")); got != 1 {
		t.Fatalf("finished = %v", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.JobStarted()
	m.JobFinished("failed")
	m.ObserveGeneration("batch", 1, nil)
	m.TranscriptsProduced("batch", 1)
	m.PlaceholderUsed()
	m.WebhookFailed()
}
