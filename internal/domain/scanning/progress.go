package scanning

import (
	"time"

	"github.com/google/uuid"
)

// Progress is a point-in-time view of a job. It is a value: later changes to
// the job never show through a snapshot that was already taken.
type Progress struct {
	JobID         uuid.UUID
	Root          string
	Status        JobStatus
	Total         int
	Scanned       int
	Clean         int
	Infected      int
	Errors        int
	InfectedPaths []string
	Elapsed       time.Duration
}

// Completed reports whether every enumerated file produced a result.
func (p Progress) Completed() bool { return p.Status == JobStatusCompleted }

// Cancelled reports whether the job stopped at the caller's request.
func (p Progress) Cancelled() bool { return p.Status == JobStatusCancelled }

// AnyInfected reports whether at least one signature matched.
func (p Progress) AnyInfected() bool { return len(p.InfectedPaths) > 0 }

// Fraction returns scanned/total in [0, 1]. A completed job always reports 1,
// which covers the empty tree without dividing by zero.
func (p Progress) Fraction() float64 {
	if p.Status == JobStatusCompleted {
		return 1
	}
	if p.Total == 0 {
		return 0
	}
	return float64(p.Scanned) / float64(p.Total)
}
