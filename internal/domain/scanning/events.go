package scanning

import (
	"time"

	"github.com/google/uuid"
)

// ResultEvent is emitted once for every file that finished scanning.
type ResultEvent struct {
	JobID      uuid.UUID
	Result     Result
	OccurredAt time.Time
}

// ProgressEvent carries the job snapshot taken right after a state change.
type ProgressEvent struct {
	Progress Progress
}

// SummaryEvent is the last event of a job. It is emitted for both completed
// and cancelled jobs.
type SummaryEvent struct {
	JobID         uuid.UUID
	Status        JobStatus
	Cancelled     bool
	AnyInfected   bool
	InfectedPaths []string
	Total         int
	Scanned       int
	Errors        int
	Elapsed       time.Duration
}

// NewSummaryEvent derives the final summary from a terminal snapshot.
func NewSummaryEvent(p Progress) SummaryEvent {
	return SummaryEvent{
		JobID:         p.JobID,
		Status:        p.Status,
		Cancelled:     p.Cancelled(),
		AnyInfected:   p.AnyInfected(),
		InfectedPaths: p.InfectedPaths,
		Total:         p.Total,
		Scanned:       p.Scanned,
		Errors:        p.Errors,
		Elapsed:       p.Elapsed,
	}
}
