// Package pipeline turns a GenerationConfig into transcripts through a
// designer engine.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"transcriptgen/internal/designer"
	"transcriptgen/internal/domain"
	"transcriptgen/internal/metrics"
	"transcriptgen/internal/templates"
)

// PreviewLimit caps synchronous generation.
const PreviewLimit = 5

// GenerationError wraps an engine failure with the operation that hit it.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

type Pipeline struct {
	Engine    designer.Engine
	Templates *templates.Registry
	Now       func() time.Time
	NewID     func() string
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

func New(engine designer.Engine, reg *templates.Registry, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		Engine:    engine,
		Templates: reg,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     uuid.NewString,
		Logger:    logger,
		Metrics:   m,
	}
}

// GeneratePreview produces at most PreviewLimit transcripts synchronously.
func (p *Pipeline) GeneratePreview(ctx context.Context, cfg domain.GenerationConfig) ([]domain.Transcript, error) {
	n := min(cfg.NumRecords, PreviewLimit)
	spec := p.BuildSpec(cfg)
	start := time.Now()
	rows, err := p.Engine.Preview(ctx, spec, n)
	p.Metrics.ObserveGeneration("preview", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, &GenerationError{Op: "Generation", Err: err}
	}
	return p.normalize("preview", rows, cfg), nil
}

// GenerateBatch produces the full record count. Engine errors are returned
// unretried.
func (p *Pipeline) GenerateBatch(ctx context.Context, cfg domain.GenerationConfig) ([]domain.Transcript, error) {
	spec := p.BuildSpec(cfg)
	label := RunLabel(p.now())
	start := time.Now()
	rows, err := p.execute(ctx, spec, cfg.NumRecords, label)
	p.Metrics.ObserveGeneration("batch", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, &GenerationError{Op: "Batch generation", Err: err}
	}
	p.logger().Info("batch generated", "dataset", label, "rows", len(rows))
	return p.normalize("batch", rows, cfg), nil
}

func (p *Pipeline) execute(ctx context.Context, spec designer.ColumnSpec, n int, label string) ([]designer.Row, error) {
	ds, err := p.Engine.Execute(ctx, spec, n, label)
	if err != nil {
		return nil, err
	}
	return ds.Rows(ctx)
}

func (p *Pipeline) normalize(mode string, rows []designer.Row, cfg domain.GenerationConfig) []domain.Transcript {
	norm := Normalizer{Now: p.now, NewID: p.newID}
	out := make([]domain.Transcript, 0, len(rows))
	for _, row := range rows {
		parsed := norm.ParseRow(row, cfg)
		if parsed.Placeholder {
			p.Metrics.PlaceholderUsed()
			p.logger().Warn("generated conversation unusable, using placeholder", "transcript", parsed.Transcript.ID)
		}
		out = append(out, parsed.Transcript)
	}
	p.Metrics.TranscriptsProduced(mode, len(out))
	return out
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) newID() string {
	if p.NewID != nil {
		return p.NewID()
	}
	return uuid.NewString()
}

// RunLabel names a batch dataset by its start time.
func RunLabel(t time.Time) string {
	return "transcripts_" + t.Format("20060102_150405")
}
