package pipeline

import (
	"slices"
	"strings"

	"transcriptgen/internal/designer"
	"transcriptgen/internal/domain"
	"transcriptgen/internal/sampler"
	"transcriptgen/internal/templates"
)

// Column names shared by BuildSpec, the prompt and ParseRow.
const (
	ColTranscriptID      = "transcript_id"
	ColIndustry          = "industry"
	ColScenario          = "scenario"
	ColCallType          = "call_type"
	ColCustomerSentiment = "customer_sentiment"
	ColIssueComplexity   = "issue_complexity"
	ColCustomerFirstName = "customer_first_name"
	ColCustomerLastName  = "customer_last_name"
	ColCustomerAge       = "customer_age"
	ColAgentFirstName    = "agent_first_name"
	ColAgentLastName     = "agent_last_name"
	ColAgentExperience   = "agent_experience"
	ColNumTurns          = "num_turns"
	ColGeneratedContent  = "generated_content"
)

const transcriptIDPrefix = "tx-"

// ScenarioPool picks the scenarios to sample: the config's own list, else the
// industry defaults, else the single "general" scenario.
func ScenarioPool(cfg domain.GenerationConfig) []string {
	if len(cfg.Scenarios) > 0 {
		return slices.Clone(cfg.Scenarios)
	}
	if defaults := DefaultScenarios(cfg.Industry); len(defaults) > 0 {
		return defaults
	}
	return []string{fallbackScenario}
}

// BuildSpec maps a config to the fixed column layout. The result depends only
// on cfg and the template registry.
func (p *Pipeline) BuildSpec(cfg domain.GenerationConfig) designer.ColumnSpec {
	category := func(name string, values []string, weights []float64) designer.Column {
		return designer.Column{
			Name:   name,
			Kind:   sampler.KindCategory,
			Params: sampler.Params{Values: values, Weights: weights},
		}
	}
	equal := func(n int) []float64 {
		w := make([]float64, n)
		for i := range w {
			w[i] = 1
		}
		return w
	}

	return designer.ColumnSpec{Columns: []designer.Column{
		{Name: ColTranscriptID, Kind: sampler.KindUUID, Params: sampler.Params{Prefix: transcriptIDPrefix}},
		category(ColIndustry, []string{cfg.Industry}, nil),
		category(ColScenario, ScenarioPool(cfg), nil),
		category(ColCallType, stringsOf(cfg.CallTypes), nil),
		category(ColCustomerSentiment, stringsOf(cfg.Sentiments), equal(len(cfg.Sentiments))),
		category(ColIssueComplexity, []string{"low", "medium", "high"}, []float64{0.3, 0.5, 0.2}),
		category(ColCustomerFirstName, customerFirstNames, nil),
		category(ColCustomerLastName, customerLastNames, nil),
		{Name: ColCustomerAge, Kind: sampler.KindUniform, Params: sampler.Params{Low: 18, High: 75}},
		category(ColAgentFirstName, agentFirstNames, nil),
		category(ColAgentLastName, agentLastNames, nil),
		category(ColAgentExperience, []string{"junior", "mid", "senior"}, []float64{0.3, 0.4, 0.3}),
		{Name: ColNumTurns, Kind: sampler.KindUniform, Params: sampler.Params{Low: cfg.MinTurns, High: cfg.MaxTurns}},
		{
			Name:   ColGeneratedContent,
			Kind:   designer.KindLLMStructured,
			Prompt: p.BuildPrompt(cfg.Industry),
			Output: conversationSchema(),
		},
	}}
}

func stringsOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

const promptHeader = `Generate a realistic contact center phone conversation for the {{ .industry }} industry.

Scenario: {{ .scenario }}
Call Type: {{ .call_type }}
Customer: {{ .customer_first_name }} {{ .customer_last_name }}, age {{ .customer_age }}
Customer Sentiment: {{ .customer_sentiment }}
Issue Complexity: {{ .issue_complexity }}
Agent: {{ .agent_first_name }} {{ .agent_last_name }}
Agent Experience: {{ .agent_experience }}
Target conversation length: {{ .num_turns }} turns
`

const promptGuidelines = `
CONVERSATION GUIDELINES:
1. Start with a professional greeting from the agent
2. Customer explains their issue (tone matches their sentiment)
3. Agent acknowledges and begins helping
4. Include realistic back-and-forth troubleshooting/discussion
5. For "frustrated" or "angry" customers, show agent de-escalation techniques
6. For "confused" customers, agent should be extra patient and clear
7. Resolution should match issue complexity:
   - Low complexity: Usually resolved quickly
   - Medium complexity: May require holds, transfers, or follow-up
   - High complexity: Often escalated or requires callback
8. End with professional closing

SENTIMENT BEHAVIOR:
- frustrated: Customer is impatient, may interrupt, needs reassurance
- angry: Customer may raise voice, agent must stay calm and empathetic
- neutral: Standard professional interaction
- satisfied: Customer is pleasant, may express gratitude
- confused: Customer needs extra explanation, may ask repeated questions

Return a JSON object with:
- conversation: array of {speaker: "agent"|"customer", text: "..."}
- duration_seconds: estimated call duration (120-600 seconds based on complexity)
- resolution_status: "resolved"|"escalated"|"pending"|"unresolved"
- csat_score: customer satisfaction 1-5 (correlate with sentiment and resolution)
- escalated: boolean (true if transferred to supervisor or specialist)`

// scenarioPlaceholder is passed as the scenario key when composing the
// industry context. It never matches a template key, so the scenario line is
// left out of the shared prompt.
const scenarioPlaceholder = "{{ .scenario }}"

// BuildPrompt returns the per-row prompt template for an industry. Unknown
// industries get the prompt without the industry block.
func (p *Pipeline) BuildPrompt(industry string) string {
	var industryContext string
	if tpl, ok := p.Templates.Get(industry); ok {
		industryContext = "\nINDUSTRY-SPECIFIC CONTEXT:\n" +
			templates.ComposePromptContext(tpl, scenarioPlaceholder) + "\n\n" +
			`Sample Agent Greeting Style: "` + tpl.Greeting() + "\"\n" +
			`Sample Agent Closing Style: "` + tpl.Closing() + "\"\n\n" +
			"Use domain terminology naturally in the conversation.\n"
	}
	return promptHeader + escapeActions(industryContext) + promptGuidelines
}

// escapeActions keeps literal braces in template data from being parsed as
// template actions.
func escapeActions(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return strings.ReplaceAll(s, "{{", `{{"{{"}}`)
}

func conversationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"conversation": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"speaker": map[string]any{"type": "string", "enum": []string{"agent", "customer"}},
						"text":    map[string]any{"type": "string"},
					},
					"required": []string{"speaker", "text"},
				},
			},
			"duration_seconds":  map[string]any{"type": "integer"},
			"resolution_status": map[string]any{"type": "string", "enum": stringsOf(domain.ResolutionStatuses)},
			"csat_score":        map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
			"escalated":         map[string]any{"type": "boolean"},
		},
		"required": []string{"conversation", "duration_seconds", "resolution_status", "csat_score", "escalated"},
	}
}
