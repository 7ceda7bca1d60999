// Package export renders transcripts as downloadable files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"transcriptgen/internal/domain"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

var Formats = []Format{FormatJSON, FormatJSONL, FormatCSV}

// CSVHeader is the fixed column order of CSV exports.
var CSVHeader = []string{
	"id", "industry", "scenario", "callType", "customerName", "customerAge",
	"customerSentiment", "agentName", "agentExperience", "conversationTurns",
	"durationSeconds", "resolutionStatus", "csatScore", "createdAt",
}

// UnsupportedFormatError is returned by ParseFormat.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q", e.Format)
}

// ParseFormat accepts json, jsonl or csv; empty means json.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatJSONL:
		return FormatJSONL, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", &UnsupportedFormatError{Format: s}
}

func ContentType(f Format) string {
	switch f {
	case FormatJSONL:
		return "application/x-ndjson"
	case FormatCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

func FileName(jobID string, f Format) string {
	return fmt.Sprintf("transcripts_%s.%s", jobID, f)
}

// Write encodes transcripts in format f.
func Write(w io.Writer, f Format, transcripts []domain.Transcript) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, transcripts)
	case FormatJSONL:
		return writeJSONL(w, transcripts)
	case FormatCSV:
		return writeCSV(w, transcripts)
	}
	return &UnsupportedFormatError{Format: string(f)}
}

func writeJSON(w io.Writer, transcripts []domain.Transcript) error {
	if transcripts == nil {
		transcripts = []domain.Transcript{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(transcripts)
}

// writeJSONL separates records with newlines; there is no trailing newline.
func writeJSONL(w io.Writer, transcripts []domain.Transcript) error {
	for i, t := range transcripts {
		line, err := json.Marshal(t)
		if err != nil {
			return err
		}
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(w io.Writer, transcripts []domain.Transcript) error {
	cw := csv.NewWriter(w)
	if len(transcripts) > 0 {
		if err := cw.Write(CSVHeader); err != nil {
			return err
		}
	}
	for _, t := range transcripts {
		csat := ""
		if t.Metadata.CSATScore != nil {
			csat = strconv.Itoa(*t.Metadata.CSATScore)
		}
		rec := []string{
			t.ID,
			t.Industry,
			t.Scenario,
			string(t.CallType),
			t.Customer.Name,
			strconv.Itoa(t.Customer.Age),
			string(t.Customer.Sentiment),
			t.Agent.Name,
			string(t.Agent.ExperienceLevel),
			strconv.Itoa(len(t.Conversation)),
			strconv.Itoa(t.Metadata.DurationSeconds),
			string(t.Metadata.ResolutionStatus),
			csat,
			t.CreatedAt,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
