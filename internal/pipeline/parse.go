package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"transcriptgen/internal/domain"
)

const (
	defaultDuration   = 300
	defaultAge        = 35
	defaultDepartment = "Customer Service"
)

// ConversationOutput is the structured value the model is asked to produce.
type ConversationOutput struct {
	Conversation     []TurnOutput `json:"conversation"`
	DurationSeconds  int          `json:"duration_seconds"`
	ResolutionStatus string       `json:"resolution_status"`
	CSATScore        int          `json:"csat_score"`
	Escalated        bool         `json:"escalated"`
}

type TurnOutput struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// ContentKind tags how a generated value arrived from the engine.
type ContentKind int

const (
	ContentEmpty ContentKind = iota
	ContentRaw
	ContentMapping
)

// Content is a generated value before normalization: raw JSON text or an
// already structured mapping.
type Content struct {
	Kind    ContentKind
	Raw     string
	Mapping map[string]any
}

// ContentOf classifies an engine value. Typed outputs are folded into the
// mapping form.
func ContentOf(v any) Content {
	switch x := v.(type) {
	case nil:
		return Content{Kind: ContentEmpty}
	case string:
		return Content{Kind: ContentRaw, Raw: x}
	case []byte:
		return Content{Kind: ContentRaw, Raw: string(x)}
	case json.RawMessage:
		return Content{Kind: ContentRaw, Raw: string(x)}
	case map[string]any:
		return Content{Kind: ContentMapping, Mapping: x}
	case ConversationOutput, *ConversationOutput:
		b, err := json.Marshal(x)
		if err != nil {
			return Content{Kind: ContentEmpty}
		}
		return Content{Kind: ContentRaw, Raw: string(b)}
	default:
		return Content{Kind: ContentEmpty}
	}
}

// Decode returns the content as a mapping. Text that is not a JSON object
// decodes to an empty mapping.
func (c Content) Decode() map[string]any {
	switch c.Kind {
	case ContentMapping:
		return c.Mapping
	case ContentRaw:
		var m map[string]any
		if err := json.Unmarshal([]byte(c.Raw), &m); err != nil || m == nil {
			return map[string]any{}
		}
		return m
	default:
		return map[string]any{}
	}
}

// Normalizer turns engine rows into transcripts.
type Normalizer struct {
	Now   func() time.Time
	NewID func() string
}

// Parsed is a normalized row plus whether its conversation was substituted.
type Parsed struct {
	Transcript  domain.Transcript
	Placeholder bool
}

// ParseRow never fails: missing or malformed fields fall back to defaults and
// an empty conversation becomes the fixed seven-turn script.
func (n Normalizer) ParseRow(row map[string]any, cfg domain.GenerationConfig) Parsed {
	generated := ContentOf(row[ColGeneratedContent]).Decode()

	scenario := stringField(row, ColScenario, fallbackScenario)
	customerFirst := stringField(row, ColCustomerFirstName, "John")
	customerLast := stringField(row, ColCustomerLastName, "Doe")
	agentFirst := stringField(row, ColAgentFirstName, "Agent")
	agentLast := stringField(row, ColAgentLastName, "Smith")

	age, ok := intValue(row[ColCustomerAge])
	if !ok || age == 0 {
		age = defaultAge
	}

	turns := validTurns(generated["conversation"])
	placeholder := len(turns) == 0
	if placeholder {
		turns = placeholderTurns(agentFirst, scenario)
	}

	id := stringField(row, ColTranscriptID, "")
	if id == "" {
		id = n.NewID()
	}

	return Parsed{
		Placeholder: placeholder,
		Transcript: domain.Transcript{
			ID:       id,
			Industry: stringField(row, ColIndustry, cfg.Industry),
			Scenario: scenario,
			CallType: enumField(row, ColCallType, domain.CallTypes, domain.CallTypeInbound),
			Customer: domain.CustomerProfile{
				Name:            customerFirst + " " + customerLast,
				Age:             age,
				Sentiment:       enumField(row, ColCustomerSentiment, domain.Sentiments, domain.SentimentNeutral),
				IssueComplexity: enumField(row, ColIssueComplexity, []domain.IssueComplexity{domain.ComplexityLow, domain.ComplexityMedium, domain.ComplexityHigh}, domain.ComplexityMedium),
			},
			Agent: domain.AgentProfile{
				Name:            agentFirst + " " + agentLast,
				Department:      defaultDepartment,
				ExperienceLevel: enumField(row, ColAgentExperience, []domain.ExperienceLevel{domain.ExperienceJunior, domain.ExperienceMid, domain.ExperienceSenior}, domain.ExperienceMid),
			},
			Conversation: turns,
			Metadata:     metadataFrom(generated, scenario),
			CreatedAt:    domain.Timestamp(n.Now()),
		},
	}
}

func metadataFrom(generated map[string]any, scenario string) domain.TranscriptMetadata {
	md := domain.TranscriptMetadata{
		DurationSeconds:   defaultDuration,
		ResolutionStatus:  domain.ResolutionResolved,
		CallReasonPrimary: ScenarioName(scenario),
	}
	// Zero counts as missing, matching the fallback the generator has always had.
	if d, ok := intValue(generated["duration_seconds"]); ok && d > 0 {
		md.DurationSeconds = d
	}
	if s, ok := generated["resolution_status"].(string); ok {
		status := domain.ResolutionStatus(strings.ToLower(strings.TrimSpace(s)))
		if slices.Contains(domain.ResolutionStatuses, status) {
			md.ResolutionStatus = status
		}
	}
	if c, ok := intValue(generated["csat_score"]); ok && c >= 1 && c <= 5 {
		md.CSATScore = &c
	}
	if e, ok := generated["escalated"].(bool); ok {
		md.Escalated = e
	}
	if r, ok := generated["call_reason_secondary"].(string); ok && strings.TrimSpace(r) != "" {
		md.CallReasonSecondary = &r
	}
	return md
}

func validTurns(v any) []domain.ConversationTurn {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []domain.ConversationTurn
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		speaker, _ := m["speaker"].(string)
		speaker = strings.ToLower(strings.TrimSpace(speaker))
		if speaker != string(domain.SpeakerAgent) && speaker != string(domain.SpeakerCustomer) {
			continue
		}
		text := textValue(m["text"])
		if strings.TrimSpace(text) == "" {
			continue
		}
		turn := domain.ConversationTurn{Speaker: domain.Speaker(speaker), Text: text}
		if ts, ok := m["timestamp"].(string); ok && ts != "" {
			turn.Timestamp = &ts
		}
		out = append(out, turn)
	}
	return out
}

func placeholderTurns(agentFirst, scenario string) []domain.ConversationTurn {
	return []domain.ConversationTurn{
		{Speaker: domain.SpeakerAgent, Text: fmt.Sprintf("Thank you for calling. My name is %s. How may I help you today?", agentFirst)},
		{Speaker: domain.SpeakerCustomer, Text: fmt.Sprintf("Hi, I'm calling about %s.", strings.ToLower(ScenarioName(scenario)))},
		{Speaker: domain.SpeakerAgent, Text: "I'd be happy to help you with that. Let me look into it for you."},
		{Speaker: domain.SpeakerCustomer, Text: "Thank you, I appreciate your help."},
		{Speaker: domain.SpeakerAgent, Text: "Is there anything else I can help you with today?"},
		{Speaker: domain.SpeakerCustomer, Text: "No, that's all. Thank you!"},
		{Speaker: domain.SpeakerAgent, Text: "Thank you for calling. Have a great day!"},
	}
}

func stringField(row map[string]any, key, def string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return def
	}
	s := textValue(v)
	if s == "" {
		return def
	}
	return s
}

func enumField[T ~string](row map[string]any, key string, allowed []T, def T) T {
	v := T(strings.ToLower(stringField(row, key, "")))
	if slices.Contains(allowed, v) {
		return v
	}
	return def
}

func textValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// intValue accepts the numeric shapes engines hand back: Go ints from local
// sampling, float64 and json.Number from decoded JSON, numeric strings.
func intValue(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float32:
		return floatInt(float64(x))
	case float64:
		return floatInt(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i), true
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return floatInt(f)
	case string:
		s := strings.TrimSpace(x)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return floatInt(f)
	default:
		return 0, false
	}
}

func floatInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
