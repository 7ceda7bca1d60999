package domain

import (
	"fmt"
	"time"
)

// JobStatus tracks a batch generation job through its lifecycle.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition enforces the allowed job state machine edges.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobStatusPending:
		return to == JobStatusRunning
	case JobStatusRunning:
		return to == JobStatusCompleted || to == JobStatusFailed
	default:
		return false
	}
}

type GenerationJob struct {
	ID               string           `json:"id"`
	Status           JobStatus        `json:"status" enum:"pending,running,completed,failed"`
	Config           GenerationConfig `json:"config"`
	Progress         float64          `json:"progress"`
	TotalRecords     int              `json:"totalRecords"`
	CompletedRecords int              `json:"completedRecords"`
	CreatedAt        string           `json:"createdAt" format:"date-time"`
	CompletedAt      *string          `json:"completedAt,omitempty" format:"date-time"`
	Error            *string          `json:"error,omitempty"`
}

// NewJob snapshots cfg into a pending job.
func NewJob(id string, cfg GenerationConfig, now time.Time) GenerationJob {
	snapshot := cfg.clone()
	return GenerationJob{
		ID:           id,
		Status:       JobStatusPending,
		Config:       snapshot,
		TotalRecords: snapshot.NumRecords,
		CreatedAt:    Timestamp(now),
	}
}

// Start moves a pending job to running.
func (j *GenerationJob) Start() error {
	return j.transition(JobStatusRunning)
}

// Complete marks the job done with produced records.
func (j *GenerationJob) Complete(produced int, now time.Time) error {
	if err := j.transition(JobStatusCompleted); err != nil {
		return err
	}
	ts := Timestamp(now)
	j.Progress = 100.0
	j.CompletedRecords = produced
	j.CompletedAt = &ts
	return nil
}

// Fail records msg; progress and completed count keep their last values.
func (j *GenerationJob) Fail(msg string) error {
	if err := j.transition(JobStatusFailed); err != nil {
		return err
	}
	j.Error = &msg
	return nil
}

func (j *GenerationJob) transition(to JobStatus) error {
	if !j.Status.CanTransition(to) {
		return fmt.Errorf("invalid transition: %s -> %s", j.Status, to)
	}
	j.Status = to
	return nil
}
