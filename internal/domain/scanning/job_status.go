package scanning

import "fmt"

// JobStatus represents the current state of a scan job. It enables tracking of
// job lifecycle from creation through completion or cancellation.
type JobStatus string

const (
	// JobStatusIdle indicates no scan has been started.
	JobStatusIdle JobStatus = "IDLE"

	// JobStatusEnumerating indicates the job is collecting file paths.
	JobStatusEnumerating JobStatus = "ENUMERATING"

	// JobStatusScanning indicates files are being dispatched to workers.
	JobStatusScanning JobStatus = "SCANNING"

	// JobStatusCompleted indicates every enumerated file produced a result.
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusCancelled indicates the job stopped early at the caller's request.
	JobStatusCancelled JobStatus = "CANCELLED"
)

func (s JobStatus) String() string { return string(s) }

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// ParseJobStatus converts a string to a JobStatus.
func ParseJobStatus(s string) JobStatus {
	switch s {
	case "IDLE":
		return JobStatusIdle
	case "ENUMERATING":
		return JobStatusEnumerating
	case "SCANNING":
		return JobStatusScanning
	case "COMPLETED":
		return JobStatusCompleted
	case "CANCELLED":
		return JobStatusCancelled
	default:
		return "" // represents unspecified
	}
}

// validateTransition checks if a status transition is valid and returns an error if not.
func (s JobStatus) validateTransition(target JobStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid job status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target status.
// It enforces the job lifecycle rules to prevent invalid state changes.
func (s JobStatus) isValidTransition(target JobStatus) bool {
	switch s {
	case JobStatusIdle:
		return target == JobStatusEnumerating
	case JobStatusEnumerating:
		// An empty tree finishes without ever scanning.
		return target == JobStatusScanning || target == JobStatusCompleted || target == JobStatusCancelled
	case JobStatusScanning:
		return target == JobStatusCompleted || target == JobStatusCancelled
	case JobStatusCompleted, JobStatusCancelled:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
