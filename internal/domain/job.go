package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of one ingestion run.
type JobStatus string

const (
	JobPending             JobStatus = "PENDING"
	JobRunning             JobStatus = "RUNNING"
	JobCompleted           JobStatus = "COMPLETED"
	JobCompletedWithErrors JobStatus = "COMPLETED_WITH_ERRORS"
	JobFailed              JobStatus = "FAILED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobCompletedWithErrors, JobFailed:
		return true
	}
	return false
}

var allowedTransitions = map[JobStatus][]JobStatus{
	JobPending: {JobRunning, JobFailed},
	JobRunning: {JobCompleted, JobCompletedWithErrors, JobFailed},
}

// canTransition reports whether s may move to next.
func (s JobStatus) canTransition(next JobStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// JobError is one structured error accumulated during a run.
type JobError struct {
	Stage      string    `json:"stage"`
	Target     string    `json:"target"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// IngestionJob is the durable ledger row for one scheduled run. Counters
// are mutated by the owning run only; once a terminal status is reached
// the row is never written again.
type IngestionJob struct {
	ID             string
	Domain         string
	Status         JobStatus
	DryRun         bool
	StartedAt      *time.Time
	FinishedAt     *time.Time
	ItemsProcessed int
	ItemsCreated   int
	ItemsUpdated   int
	Errors         []JobError
	Metadata       map[string]string
	CreatedAt      time.Time
}

// NewJob creates a PENDING job for the given source domain.
func NewJob(sourceDomain string, dryRun bool) *IngestionJob {
	return &IngestionJob{
		ID:        uuid.NewString(),
		Domain:    sourceDomain,
		Status:    JobPending,
		DryRun:    dryRun,
		Metadata:  map[string]string{},
		CreatedAt: time.Now().UTC(),
	}
}

// Transition moves the job forward through the state machine. Moving out
// of a terminal state, or skipping RUNNING, is rejected.
func (j *IngestionJob) Transition(next JobStatus) error {
	if !j.Status.canTransition(next) {
		return fmt.Errorf("job %s: illegal transition %s -> %s", j.ID, j.Status, next)
	}

	now := time.Now().UTC()
	switch next {
	case JobRunning:
		j.StartedAt = &now
	case JobCompleted, JobCompletedWithErrors, JobFailed:
		j.FinishedAt = &now
	}

	j.Status = next
	return nil
}

// RecordError appends a structured error to the job.
func (j *IngestionJob) RecordError(stage, target, message string) {
	j.Errors = append(j.Errors, JobError{
		Stage:      stage,
		Target:     target,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	})
}

// Duration returns finished_at - started_at when both are set.
func (j *IngestionJob) Duration() *time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return nil
	}
	d := j.FinishedAt.Sub(*j.StartedAt)
	return &d
}

// ContentHashKey names the metadata entry carrying a target's fetched
// content hash, used for unchanged-content short-circuits between runs.
func ContentHashKey(target string) string {
	return "content_hash:" + target
}

// JobFilter narrows ledger listings.
type JobFilter struct {
	Domain string
	Status JobStatus
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// JobStats aggregates the ledger over a lookback window.
type JobStats struct {
	ByStatus       map[JobStatus]int
	ByDomain       map[string]int
	ItemsProcessed int
	ItemsCreated   int
	ItemsUpdated   int
}
