package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"transcriptgen/internal/domain"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits with the mutation it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, jobID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO job_events(ts,type,job_id,payload_json) VALUES (?,?,?,?)`,
		domain.Timestamp(now()), evtType, jobID, string(data))
	return err
}
