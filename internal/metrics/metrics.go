package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters and histograms for generation and job flows.
type Metrics struct {
	jobsStarted   prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	genDuration   *prometheus.HistogramVec
	transcripts   *prometheus.CounterVec
	placeholders  prometheus.Counter
	webhookErrors prometheus.Counter
}

// New registers the collectors on reg, or the default registerer when nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transcriptgen",
			Subsystem: "jobs",
			Name:      "started_total",
			Help:      "Batch jobs that entered running",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transcriptgen",
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Batch jobs that reached a terminal status",
		}, []string{"status"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transcriptgen",
			Subsystem: "jobs",
			Name:      "running",
			Help:      "Batch jobs currently holding an execution slot",
		}),
		genDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "transcriptgen",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Wall time of one engine invocation",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"mode", "outcome"}),
		transcripts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transcriptgen",
			Subsystem: "generation",
			Name:      "transcripts_total",
			Help:      "Transcripts produced",
		}, []string{"mode"}),
		placeholders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transcriptgen",
			Subsystem: "generation",
			Name:      "placeholder_conversations_total",
			Help:      "Rows whose conversation was replaced by the fallback script",
		}),
		webhookErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transcriptgen",
			Subsystem: "webhooks",
			Name:      "delivery_errors_total",
			Help:      "Failed webhook deliveries",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.jobsStarted, m.jobsFinished, m.jobsRunning, m.genDuration, m.transcripts, m.placeholders, m.webhookErrors)
	return m
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsStarted.Inc()
	m.jobsRunning.Inc()
}

func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(status).Inc()
	m.jobsRunning.Dec()
}

func (m *Metrics) ObserveGeneration(mode string, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.genDuration.WithLabelValues(mode, outcome).Observe(seconds)
}

func (m *Metrics) TranscriptsProduced(mode string, n int) {
	if m == nil {
		return
	}
	m.transcripts.WithLabelValues(mode).Add(float64(n))
}

func (m *Metrics) PlaceholderUsed() {
	if m == nil {
		return
	}
	m.placeholders.Inc()
}

func (m *Metrics) WebhookFailed() {
	if m == nil {
		return
	}
	m.webhookErrors.Inc()
}
