package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"transcriptgen/internal/app"
	"transcriptgen/internal/config"
	"transcriptgen/internal/domain"
)

type hookReceiver struct {
	mu      sync.Mutex
	events  []webhookEvent
	secrets []string
	status  int
}

func (h *hookReceiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var evt webhookEvent
	_ = json.NewDecoder(r.Body).Decode(&evt)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != 0 {
		w.WriteHeader(h.status)
		return
	}
	h.events = append(h.events, evt)
	h.secrets = append(h.secrets, r.Header.Get("X-Transcriptgen-Secret"))
}

func (h *hookReceiver) received() []webhookEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]webhookEvent(nil), h.events...)
}

func startReceiver(t *testing.T, h *hookReceiver) string {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: h}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return "http://" + ln.Addr().String()
}

func openApp(t *testing.T) *app.App {
	t.Helper()
	a, err := app.Open(context.Background(), config.Settings{
		Workspace: t.TempDir(),
		MaxJobs:   1,
		LLM:       config.LLMSettings{Provider: "openai", Parallelism: 1},
	}, nil, app.Options{})
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestWebhookDeliversNewEventsOnly(t *testing.T) {
	ctx := context.Background()
	a := openApp(t)
	recv := &hookReceiver{}
	url := startReceiver(t, recv)

	cfg := domain.GenerationConfig{Industry: "telecom", NumRecords: 1}.WithDefaults()
	if err := a.Store.Create(ctx, domain.NewJob("old-job", cfg, time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}

	disabled := false
	d := NewWebhookDispatcher(a.Store, []config.WebhookConfig{
		{URL: url, Secret: "s3cret"},
		{URL: url, Events: []string{domain.EventJobCompleted}},
		{URL: url, Enabled: &disabled},
	}, nil, a.Metrics)
	d.dispatchAll(ctx)
	if got := recv.received(); len(got) != 0 {
		t.Fatalf("events before start should be skipped, got %+v", got)
	}

	if err := a.Store.Create(ctx, domain.NewJob("new-job", cfg, time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := a.Store.Claim(ctx, "new-job"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	got := recv.received()
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %+v", got)
	}
	if got[0].Type != domain.EventJobCreated || got[1].Type != domain.EventJobRunning || got[0].JobID != "new-job" {
		t.Fatalf("events = %+v", got)
	}
	if recv.secrets[0] != "s3cret" {
		t.Fatalf("secret header = %q", recv.secrets[0])
	}
	var payload map[string]any
	if err := json.Unmarshal(got[1].Payload, &payload); err != nil || payload["status"] != "running" {
		t.Fatalf("payload = %s, %v", got[1].Payload, err)
	}
}

func TestWebhookRetriesFailedDelivery(t *testing.T) {
	ctx := context.Background()
	a := openApp(t)
	recv := &hookReceiver{status: http.StatusServiceUnavailable}
	url := startReceiver(t, recv)

	d := NewWebhookDispatcher(a.Store, []config.WebhookConfig{{URL: url, TimeoutSeconds: 2}}, nil, a.Metrics)
	d.dispatchAll(ctx)

	cfg := domain.GenerationConfig{Industry: "travel", NumRecords: 1}.WithDefaults()
	if err := a.Store.Create(ctx, domain.NewJob("job-1", cfg, time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}
	d.dispatchAll(ctx)
	if len(recv.received()) != 0 {
		t.Fatalf("failed delivery should not be recorded")
	}
	if got := counterValue(t, a.Registry, "transcriptgen_webhooks_delivery_errors_total"); got != 1 {
		t.Fatalf("webhook failures = %v", got)
	}

	recv.mu.Lock()
	recv.status = 0
	recv.mu.Unlock()
	d.dispatchAll(ctx)
	if got := recv.received(); len(got) != 1 || got[0].JobID != "job-1" {
		t.Fatalf("retry should deliver the event, got %+v", got)
	}
}

func counterValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestEventFilter(t *testing.T) {
	all := newEventFilter([]string{" ", ""})
	if !all.match("job.created") {
		t.Fatalf("blank filter should match everything")
	}
	some := newEventFilter([]string{"job.failed", " job.completed "})
	if !some.match("job.completed") || some.match("job.created") {
		t.Fatalf("filter mismatch")
	}
}
