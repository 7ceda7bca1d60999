package designer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"text/template"
	"time"

	"golang.org/x/sync/errgroup"

	"transcriptgen/internal/sampler"
)

// Generator produces the raw JSON text for one prompt.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Local runs specs in-process. Sampling is serialized on one seeded source;
// generated columns fan out to the Generator with bounded parallelism.
type Local struct {
	Samplers    *sampler.Registry
	Generator   Generator
	Parallelism int
	Logger      *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLocal returns an engine. A zero seed uses the clock.
func NewLocal(gen Generator, parallelism int, seed int64, logger *slog.Logger) *Local {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		Samplers:    sampler.NewRegistry(),
		Generator:   gen,
		Parallelism: parallelism,
		Logger:      logger,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (l *Local) Preview(ctx context.Context, spec ColumnSpec, n int) ([]Row, error) {
	return l.generate(ctx, spec, n)
}

func (l *Local) Execute(ctx context.Context, spec ColumnSpec, n int, runLabel string) (Dataset, error) {
	rows, err := l.generate(ctx, spec, n)
	if err != nil {
		return nil, err
	}
	return NewDataset(runLabel, rows), nil
}

type compiled struct {
	col     Column
	sampler sampler.Sampler
	prompt  *template.Template
}

func (l *Local) compile(spec ColumnSpec) ([]compiled, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	out := make([]compiled, 0, len(spec.Columns))
	for _, col := range spec.Columns {
		c := compiled{col: col}
		if col.Generated() {
			if l.Generator == nil {
				return nil, fmt.Errorf("column %s: no generator configured", col.Name)
			}
			tpl, err := parsePrompt(col)
			if err != nil {
				return nil, err
			}
			c.prompt = tpl
		} else {
			s, err := l.Samplers.New(col.Kind, col.Params)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", col.Name, err)
			}
			c.sampler = s
		}
		out = append(out, c)
	}
	return out, nil
}

func (l *Local) generate(ctx context.Context, spec ColumnSpec, n int) ([]Row, error) {
	cols, err := l.compile(spec)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []Row{}, nil
	}

	rows := make([]Row, n)
	l.mu.Lock()
	for i := range rows {
		row := make(Row, len(cols))
		for _, c := range cols {
			if c.sampler != nil {
				row[c.col.Name] = c.sampler.Sample(l.rng)
			}
		}
		rows[i] = row
	}
	l.mu.Unlock()

	// Generated columns run in declaration order so a later one can reference
	// an earlier one.
	for _, c := range cols {
		if c.prompt == nil {
			continue
		}
		start := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.Parallelism)
		for i := range rows {
			row := rows[i]
			g.Go(func() error {
				prompt, err := renderPrompt(c.prompt, c.col, row)
				if err != nil {
					return err
				}
				text, err := l.Generator.GenerateJSON(gctx, prompt)
				if err != nil {
					return fmt.Errorf("column %s row %d: %w", c.col.Name, i, err)
				}
				row[c.col.Name] = text
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		l.Logger.Debug("generated column", "column", c.col.Name, "rows", n, "elapsed", time.Since(start))
	}
	return rows, nil
}
