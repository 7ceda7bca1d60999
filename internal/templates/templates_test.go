package templates

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadBuiltins(t *testing.T) {
	reg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"healthcare", "finance", "telecom", "retail", "travel", "insurance"}
	if diff := cmp.Diff(want, reg.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	for _, tpl := range reg.All() {
		if len(tpl.Terminology) < 10 || len(tpl.ProductsServices) < 5 || len(tpl.Departments) == 0 {
			t.Fatalf("%s template is incomplete", tpl.ID)
		}
		if len(tpl.ScenarioContext) != 5 {
			t.Fatalf("%s has %d scenario contexts", tpl.ID, len(tpl.ScenarioContext))
		}
	}
	if _, ok := reg.Get("aerospace"); ok {
		t.Fatalf("unknown industry should be absent")
	}
}

func TestComposePromptContext(t *testing.T) {
	tpl := IndustryTemplate{
		Name:              "Acme",
		Terminology:       []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"},
		ProductsServices:  []string{"p1", "p2", "p3", "p4", "p5", "p6"},
		Departments:       []string{"Sales", "Support"},
		CompliancePhrases: []string{"Verify identity.", "Recorded line."},
		ScenarioContext:   map[string]string{"billing": "Bill questions."},
	}
	got := ComposePromptContext(tpl, "billing")
	want := "Industry: Acme\n" +
		"\nDomain Terminology to use naturally: a, b, c, d, e, f, g, h, i, j\n" +
		"\nProducts/Services: p1, p2, p3, p4, p5\n" +
		"\nDepartments: Sales, Support\n" +
		"\nScenario Context: Bill questions.\n" +
		"\nCompliance phrases to include when appropriate: Verify identity."
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("context mismatch (-want +got):\n%s", diff)
	}

	bare := ComposePromptContext(IndustryTemplate{Name: "Bare"}, "missing")
	if strings.Contains(bare, "Scenario Context") || strings.Contains(bare, "Compliance") {
		t.Fatalf("optional lines should be omitted: %q", bare)
	}
	if strings.Count(bare, "\n") != 6 {
		t.Fatalf("expected four lines separated by blank lines, got %q", bare)
	}
}

func TestGreetingClosingDefaults(t *testing.T) {
	var empty IndustryTemplate
	if empty.Greeting() != defaultGreeting || empty.Closing() != defaultClosing {
		t.Fatalf("defaults not applied")
	}
	reg := MustLoad()
	fin, _ := reg.Get("finance")
	if !strings.HasPrefix(fin.Greeting(), "Thank you for calling [Bank Name]") {
		t.Fatalf("finance greeting = %q", fin.Greeting())
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	a := IndustryTemplate{ID: "x", Name: "X"}
	if _, err := New(a, a); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if _, err := New(IndustryTemplate{Name: "nameless"}); err == nil {
		t.Fatalf("expected missing id error")
	}
}
