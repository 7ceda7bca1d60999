package domain

import (
	"fmt"
	"slices"
	"strings"
)

const (
	MinRecords  = 1
	MaxRecords  = 1000
	MinTurnsLow = 2
	MaxTurnsCap = 30
)

// GenerationConfig describes the transcripts a caller wants. It is treated as
// immutable once a job snapshots it.
type GenerationConfig struct {
	Industry        string      `json:"industry"`
	Scenarios       []string    `json:"scenarios"`
	CallTypes       []CallType  `json:"callTypes,omitempty"`
	Sentiments      []Sentiment `json:"sentiments,omitempty"`
	NumRecords      int         `json:"numRecords,omitempty"`
	MinTurns        int         `json:"minTurns,omitempty"`
	MaxTurns        int         `json:"maxTurns,omitempty"`
	IncludeMetadata *bool       `json:"includeMetadata,omitempty"`
}

// ValidationError reports a malformed GenerationConfig.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// WithDefaults returns a copy with unset fields filled in.
func (c GenerationConfig) WithDefaults() GenerationConfig {
	out := c.clone()
	if len(out.CallTypes) == 0 {
		out.CallTypes = []CallType{CallTypeInbound}
	}
	if len(out.Sentiments) == 0 {
		out.Sentiments = []Sentiment{SentimentNeutral, SentimentFrustrated, SentimentSatisfied}
	}
	if out.NumRecords == 0 {
		out.NumRecords = 10
	}
	if out.MinTurns == 0 {
		out.MinTurns = 4
	}
	if out.MaxTurns == 0 {
		out.MaxTurns = 12
	}
	if out.IncludeMetadata == nil {
		include := true
		out.IncludeMetadata = &include
	}
	if out.Scenarios == nil {
		out.Scenarios = []string{}
	}
	return out
}

// Validate checks the config bounds. Call WithDefaults first for partial input.
func (c GenerationConfig) Validate() error {
	if strings.TrimSpace(c.Industry) == "" {
		return &ValidationError{Field: "industry", Reason: "is required"}
	}
	for _, s := range c.Scenarios {
		if strings.TrimSpace(s) == "" {
			return &ValidationError{Field: "scenarios", Reason: "must not contain empty values"}
		}
	}
	if len(c.CallTypes) == 0 {
		return &ValidationError{Field: "callTypes", Reason: "must not be empty"}
	}
	for _, ct := range c.CallTypes {
		if !slices.Contains(CallTypes, ct) {
			return &ValidationError{Field: "callTypes", Reason: fmt.Sprintf("has unknown value %q", ct)}
		}
	}
	if len(c.Sentiments) == 0 {
		return &ValidationError{Field: "sentiments", Reason: "must not be empty"}
	}
	for _, s := range c.Sentiments {
		if !slices.Contains(Sentiments, s) {
			return &ValidationError{Field: "sentiments", Reason: fmt.Sprintf("has unknown value %q", s)}
		}
	}
	if c.NumRecords < MinRecords || c.NumRecords > MaxRecords {
		return &ValidationError{Field: "numRecords", Reason: fmt.Sprintf("must be between %d and %d", MinRecords, MaxRecords)}
	}
	if c.MinTurns < MinTurnsLow {
		return &ValidationError{Field: "minTurns", Reason: fmt.Sprintf("must be at least %d", MinTurnsLow)}
	}
	if c.MaxTurns > MaxTurnsCap {
		return &ValidationError{Field: "maxTurns", Reason: fmt.Sprintf("must be at most %d", MaxTurnsCap)}
	}
	if c.MinTurns > c.MaxTurns {
		return &ValidationError{Field: "minTurns", Reason: "must not exceed maxTurns"}
	}
	return nil
}

// MetadataIncluded reports the includeMetadata flag, defaulting to true.
func (c GenerationConfig) MetadataIncluded() bool {
	return c.IncludeMetadata == nil || *c.IncludeMetadata
}

func (c GenerationConfig) clone() GenerationConfig {
	out := c
	out.Scenarios = slices.Clone(c.Scenarios)
	out.CallTypes = slices.Clone(c.CallTypes)
	out.Sentiments = slices.Clone(c.Sentiments)
	if c.IncludeMetadata != nil {
		v := *c.IncludeMetadata
		out.IncludeMetadata = &v
	}
	return out
}
