package designer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"transcriptgen/internal/sampler"
)

type echoGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (g *echoGenerator) GenerateJSON(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.prompts = append(g.prompts, prompt)
	return `{"echo":"` + strings.ReplaceAll(prompt, "\n", " ") + `"}`, nil
}

func testSpec() ColumnSpec {
	return ColumnSpec{Columns: []Column{
		{Name: "id", Kind: sampler.KindUUID, Params: sampler.Params{Prefix: "tx-"}},
		{Name: "color", Kind: sampler.KindCategory, Params: sampler.Params{Values: []string{"red", "blue"}}},
		{Name: "size", Kind: sampler.KindUniform, Params: sampler.Params{Low: 1, High: 3}},
		{Name: "content", Kind: KindLLMStructured, Prompt: "Describe a {{ .color }} box of size {{ .size }}."},
	}}
}

func TestLocalPreviewFillsEveryColumn(t *testing.T) {
	gen := &echoGenerator{}
	eng := NewLocal(gen, 3, 42, nil)
	rows, err := eng.Preview(context.Background(), testSpec(), 5)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	for _, row := range rows {
		for _, name := range testSpec().Names() {
			if _, ok := row[name]; !ok {
				t.Fatalf("row missing %s: %v", name, row)
			}
		}
		want := "Describe a " + row["color"].(string) + " box"
		if !strings.Contains(row["content"].(string), want) {
			t.Fatalf("prompt not rendered against row: %v", row)
		}
	}
	if len(gen.prompts) != 5 {
		t.Fatalf("expected 5 generator calls, got %d", len(gen.prompts))
	}
}

func TestLocalExecuteNamesDataset(t *testing.T) {
	eng := NewLocal(&echoGenerator{}, 2, 1, nil)
	ds, err := eng.Execute(context.Background(), testSpec(), 3, "run_1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	rows, _ := ds.Rows(context.Background())
	if ds.Name() != "run_1" || len(rows) != 3 {
		t.Fatalf("dataset %s has %d rows", ds.Name(), len(rows))
	}
}

func TestLocalGeneratorErrorAborts(t *testing.T) {
	boom := errors.New("upstream 500")
	eng := NewLocal(&echoGenerator{err: boom}, 2, 1, nil)
	if _, err := eng.Preview(context.Background(), testSpec(), 4); !errors.Is(err, boom) {
		t.Fatalf("expected generator error, got %v", err)
	}
}

func TestLocalMissingPlaceholderFails(t *testing.T) {
	spec := ColumnSpec{Columns: []Column{
		{Name: "content", Kind: KindLLMStructured, Prompt: "Hello {{ .nobody }}"},
	}}
	eng := NewLocal(&echoGenerator{}, 1, 1, nil)
	if _, err := eng.Preview(context.Background(), spec, 1); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestLocalOutputSchemaAppended(t *testing.T) {
	gen := &echoGenerator{}
	spec := ColumnSpec{Columns: []Column{
		{Name: "content", Kind: KindLLMStructured, Prompt: "Go.", Output: map[string]any{"type": "object"}},
	}}
	if _, err := NewLocal(gen, 1, 1, nil).Preview(context.Background(), spec, 1); err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !strings.Contains(gen.prompts[0], `"type": "object"`) {
		t.Fatalf("schema not appended: %q", gen.prompts[0])
	}
}

func TestColumnSpecValidate(t *testing.T) {
	dup := ColumnSpec{Columns: []Column{{Name: "a", Kind: sampler.KindUUID}, {Name: "a", Kind: sampler.KindUUID}}}
	if err := dup.Validate(); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := (ColumnSpec{}).Validate(); err == nil {
		t.Fatalf("expected empty spec error")
	}
	unknown := ColumnSpec{Columns: []Column{{Name: "a", Kind: "zipf"}}}
	if _, err := NewLocal(nil, 1, 1, nil).Preview(context.Background(), unknown, 1); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
