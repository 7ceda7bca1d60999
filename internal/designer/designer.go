// Package designer turns a column specification into tabular rows: sampled
// columns come from the sampler registry, structured columns from an LLM.
package designer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"transcriptgen/internal/sampler"
)

// KindLLMStructured marks a column whose value is generated from a prompt.
const KindLLMStructured sampler.Kind = "llm-structured"

// Column is one output field. Prompt and Output are only read for
// KindLLMStructured; Params only for sampler kinds.
type Column struct {
	Name   string         `json:"name"`
	Kind   sampler.Kind   `json:"kind"`
	Params sampler.Params `json:"params,omitempty"`
	Prompt string         `json:"prompt,omitempty"`
	Output map[string]any `json:"output,omitempty"`
}

// Generated reports whether the column is produced by the model.
func (c Column) Generated() bool {
	return c.Kind == KindLLMStructured
}

// ColumnSpec is an ordered list of columns. Generated columns may reference
// any column declared before them.
type ColumnSpec struct {
	Columns []Column `json:"columns"`
}

func (s ColumnSpec) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Column returns the named column.
func (s ColumnSpec) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Validate checks names are present and unique.
func (s ColumnSpec) Validate() error {
	if len(s.Columns) == 0 {
		return errors.New("column spec is empty")
	}
	seen := map[string]bool{}
	for i, c := range s.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("column %d: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("column %s: duplicate name", c.Name)
		}
		seen[c.Name] = true
		if c.Generated() && strings.TrimSpace(c.Prompt) == "" {
			return fmt.Errorf("column %s: prompt is required", c.Name)
		}
	}
	return nil
}

// Row maps column names to values.
type Row map[string]any

// Dataset is the handle returned by a batch execution.
type Dataset interface {
	Name() string
	Rows(ctx context.Context) ([]Row, error)
}

// Engine executes column specs.
type Engine interface {
	Preview(ctx context.Context, spec ColumnSpec, n int) ([]Row, error)
	Execute(ctx context.Context, spec ColumnSpec, n int, runLabel string) (Dataset, error)
}

type memDataset struct {
	name string
	rows []Row
}

func (d *memDataset) Name() string { return d.name }

func (d *memDataset) Rows(context.Context) ([]Row, error) { return d.rows, nil }

// NewDataset wraps already materialized rows.
func NewDataset(name string, rows []Row) Dataset {
	return &memDataset{name: name, rows: rows}
}

// renderPrompt executes a generated column's prompt against a row. Missing
// keys are errors so a typo in a placeholder never reaches the model.
func renderPrompt(tpl *template.Template, col Column, row Row) (string, error) {
	var b strings.Builder
	if err := tpl.Execute(&b, map[string]any(row)); err != nil {
		return "", fmt.Errorf("render prompt for %s: %w", col.Name, err)
	}
	if len(col.Output) > 0 {
		schema, err := json.MarshalIndent(col.Output, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode output schema for %s: %w", col.Name, err)
		}
		b.WriteString("\n\nRespond with JSON matching this schema:\n")
		b.Write(schema)
	}
	return b.String(), nil
}

func parsePrompt(col Column) (*template.Template, error) {
	tpl, err := template.New(col.Name).Option("missingkey=error").Parse(col.Prompt)
	if err != nil {
		return nil, fmt.Errorf("parse prompt for %s: %w", col.Name, err)
	}
	return tpl, nil
}
