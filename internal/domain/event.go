package domain

// Job event types recorded alongside every store mutation.
const (
	EventJobCreated      = "job.created"
	EventJobRunning      = "job.running"
	EventJobProgress     = "job.progress"
	EventJobCompleted    = "job.completed"
	EventJobFailed       = "job.failed"
	EventJobResultsSaved = "job.results_saved"
	EventJobDeleted      = "job.deleted"
)

// EventForStatus names the event emitted when a job enters status.
func EventForStatus(s JobStatus) string {
	switch s {
	case JobStatusRunning:
		return EventJobRunning
	case JobStatusCompleted:
		return EventJobCompleted
	case JobStatusFailed:
		return EventJobFailed
	default:
		return EventJobProgress
	}
}

type JobEvent struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	JobID   string `json:"job_id"`
	Payload string `json:"payload_json"`
}
