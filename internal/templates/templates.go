// Package templates holds the per-industry vocabularies used to ground
// transcript prompts.
package templates

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultGreeting = "Thank you for calling. How may I assist you today?"
	defaultClosing  = "Is there anything else I can help you with today?"
)

//go:embed industries.yaml
var builtin []byte

// IndustryTemplate is read-only once loaded.
type IndustryTemplate struct {
	ID                string            `yaml:"id" json:"id"`
	Name              string            `yaml:"name" json:"name"`
	Description       string            `yaml:"description" json:"description"`
	Terminology       []string          `yaml:"terminology" json:"terminology"`
	AgentGreetings    []string          `yaml:"agent_greetings" json:"agentGreetings"`
	AgentClosings     []string          `yaml:"agent_closings" json:"agentClosings"`
	HoldPhrases       []string          `yaml:"hold_phrases" json:"holdPhrases"`
	CompliancePhrases []string          `yaml:"compliance_phrases" json:"compliancePhrases"`
	ScenarioContext   map[string]string `yaml:"scenario_context" json:"scenarioContext"`
	ProductsServices  []string          `yaml:"products_services" json:"productsServices"`
	Departments       []string          `yaml:"departments" json:"departments"`
}

// Greeting returns the first greeting or a generic one.
func (t IndustryTemplate) Greeting() string {
	if len(t.AgentGreetings) > 0 {
		return t.AgentGreetings[0]
	}
	return defaultGreeting
}

// Closing returns the first closing or a generic one.
func (t IndustryTemplate) Closing() string {
	if len(t.AgentClosings) > 0 {
		return t.AgentClosings[0]
	}
	return defaultClosing
}

// ComposePromptContext renders the industry block of a generation prompt.
// Line order is fixed; the scenario line appears only when the template knows
// scenarioKey and the compliance line only when the template has phrases.
func ComposePromptContext(t IndustryTemplate, scenarioKey string) string {
	parts := []string{
		"Industry: " + t.Name,
		"\nDomain Terminology to use naturally: " + strings.Join(head(t.Terminology, 10), ", "),
		"\nProducts/Services: " + strings.Join(head(t.ProductsServices, 5), ", "),
		"\nDepartments: " + strings.Join(t.Departments, ", "),
	}
	if ctx, ok := t.ScenarioContext[scenarioKey]; ok {
		parts = append(parts, "\nScenario Context: "+ctx)
	}
	if len(t.CompliancePhrases) > 0 {
		parts = append(parts, "\nCompliance phrases to include when appropriate: "+t.CompliancePhrases[0])
	}
	return strings.Join(parts, "\n")
}

func head(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

// Registry maps industry ids to templates in load order.
type Registry struct {
	order []string
	byID  map[string]IndustryTemplate
}

// Load returns the registry of built-in industries.
func Load() (*Registry, error) {
	return Parse(builtin)
}

// MustLoad panics if the embedded templates are malformed.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

// Parse decodes a YAML list of templates.
func Parse(data []byte) (*Registry, error) {
	var list []IndustryTemplate
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode industry templates: %w", err)
	}
	return New(list...)
}

// New builds a registry from templates. Ids must be unique and non-empty.
func New(list ...IndustryTemplate) (*Registry, error) {
	r := &Registry{byID: make(map[string]IndustryTemplate, len(list))}
	for i, t := range list {
		if strings.TrimSpace(t.ID) == "" {
			return nil, fmt.Errorf("industry template %d: id is required", i)
		}
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("industry template %q: name is required", t.ID)
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("industry template %q: duplicate id", t.ID)
		}
		r.order = append(r.order, t.ID)
		r.byID[t.ID] = t
	}
	return r, nil
}

func (r *Registry) Get(id string) (IndustryTemplate, bool) {
	t, ok := r.byID[id]
	return t, ok
}

func (r *Registry) All() []IndustryTemplate {
	out := make([]IndustryTemplate, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}
