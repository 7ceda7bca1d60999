package server

import (
	"encoding/json"

	"transcriptgen/internal/domain"
	"transcriptgen/internal/pipeline"
	"transcriptgen/internal/templates"
)

// Response payloads

type PreviewResponse struct {
	Transcripts []domain.Transcript `json:"transcripts"`
}

type ResultsResponse struct {
	JobID       string              `json:"jobId"`
	Transcripts []domain.Transcript `json:"transcripts"`
}

type MessageResponse struct {
	Message string `json:"message" example:"Job deleted"`
}

type IndustrySummary struct {
	ID          string `json:"id" example:"healthcare"`
	Name        string `json:"name" example:"Healthcare"`
	Description string `json:"description"`
}

type IndustryResponse struct {
	templates.IndustryTemplate
	Scenarios []pipeline.Scenario `json:"scenarios"`
}

type EventResponse struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts" format:"date-time"`
	Type    string         `json:"type" example:"job.completed"`
	JobID   string         `json:"jobId"`
	Payload map[string]any `json:"payload,omitempty" jsonschema:"type=object,additionalProperties=true"`
	Raw     string         `json:"payloadRaw,omitempty"`
}

type LLMTestResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

func eventResponse(evt domain.JobEvent) EventResponse {
	out := EventResponse{ID: evt.ID, TS: evt.TS, Type: evt.Type, JobID: evt.JobID}
	if evt.Payload == "" {
		return out
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(evt.Payload), &payload); err != nil {
		out.Raw = evt.Payload
		return out
	}
	out.Payload = payload
	return out
}

func industrySummaries(items []templates.IndustryTemplate) []IndustrySummary {
	out := make([]IndustrySummary, 0, len(items))
	for _, t := range items {
		out = append(out, IndustrySummary{ID: t.ID, Name: t.Name, Description: t.Description})
	}
	return out
}
