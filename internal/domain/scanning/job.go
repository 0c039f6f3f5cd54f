package scanning

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrJobNotScanning is returned when a result arrives for a job that is no
// longer accepting them.
var ErrJobNotScanning = errors.New("job is not scanning")

// Job is the aggregate for one root-to-completion scan. All counters live
// behind a single mutex so every mutation is applied as one unit; readers
// get copies through Snapshot.
type Job struct {
	mu sync.Mutex

	jobID  uuid.UUID
	root   string
	status JobStatus

	total    int
	scanned  int
	clean    int
	infected int
	errored  int

	infectedPaths []string

	cancelRequested bool
	timeline        *Timeline
	done            chan struct{}
}

// NewJob creates an idle job for root.
func NewJob(root string) *Job {
	return newJob(root, new(realTimeProvider))
}

func newJob(root string, tp TimeProvider) *Job {
	return &Job{
		jobID:    uuid.New(),
		root:     root,
		status:   JobStatusIdle,
		timeline: NewTimeline(tp),
		done:     make(chan struct{}),
	}
}

// JobID returns the unique identifier for this scan job.
func (j *Job) JobID() uuid.UUID { return j.jobID }

// Root returns the path the job was started on.
func (j *Job) Root() string { return j.root }

// Done returns a channel closed once the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} { return j.done }

// Status returns the current execution status of the scan job.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// BeginEnumeration moves an idle job into enumeration.
func (j *Job) BeginEnumeration() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(JobStatusEnumerating)
}

// CompleteEnumeration fixes the total file count and moves the job on. An
// empty tree completes immediately; a job cancelled while enumerating becomes
// Cancelled without ever scanning.
func (j *Job) CompleteEnumeration(total int) (JobStatus, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != JobStatusEnumerating {
		return j.status, fmt.Errorf("cannot complete enumeration: job is not in enumerating state (current: %s)", j.status)
	}

	j.total = total
	target := JobStatusScanning
	switch {
	case j.cancelRequested:
		target = JobStatusCancelled
	case total == 0:
		target = JobStatusCompleted
	}

	if err := j.transitionLocked(target); err != nil {
		return j.status, fmt.Errorf("failed to update job status after enumeration: %w", err)
	}
	return j.status, nil
}

// RecordResult folds one file result into the aggregate. It returns the
// snapshot taken after the update and whether this result completed the job.
func (j *Job) RecordResult(r Result) (Progress, bool, error) {
	var (
		snap      Progress
		completed bool
	)
	err := j.RecordResultFunc(r, func(p Progress, done bool) {
		snap, completed = p, done
	})
	if err != nil {
		return j.Snapshot(), false, err
	}
	return snap, completed, nil
}

// RecordResultFunc folds r into the aggregate and hands the resulting
// snapshot to fn while the job lock is still held. Successive calls of fn
// therefore see snapshots in the order the updates were applied. fn must not
// call back into the job.
func (j *Job) RecordResultFunc(r Result, fn func(p Progress, completed bool)) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != JobStatusScanning {
		return fmt.Errorf("%w (current: %s)", ErrJobNotScanning, j.status)
	}
	if j.scanned >= j.total {
		return fmt.Errorf("result for %s exceeds total %d", r.Path(), j.total)
	}

	j.scanned++
	switch res := r.(type) {
	case CleanResult:
		j.clean++
	case InfectedResult:
		j.infected++
		j.infectedPaths = append(j.infectedPaths, res.Path())
	case ErrorResult:
		j.errored++
	default:
		panic(fmt.Sprintf("scanning: unexpected result type %T", r))
	}
	completed := false
	if j.scanned == j.total {
		if err := j.transitionLocked(JobStatusCompleted); err != nil {
			return err
		}
		completed = true
	}

	if fn != nil {
		fn(j.snapshotLocked(), completed)
	}
	return nil
}

// RequestCancel raises the cancellation flag. It reports true only for the
// first request on a job that has not already finished.
func (j *Job) RequestCancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancelRequested || j.status.IsTerminal() {
		return false
	}
	j.cancelRequested = true
	return true
}

// CancelRequested reports whether RequestCancel has been called.
func (j *Job) CancelRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelRequested
}

// FinishCancelled moves a job whose workers have drained into Cancelled. It
// is a no-op, returning false, when the job already reached a terminal state.
func (j *Job) FinishCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status.IsTerminal() {
		return false
	}
	return j.transitionLocked(JobStatusCancelled) == nil
}

// Snapshot returns a copy of the job's current progress.
func (j *Job) Snapshot() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() Progress {
	var paths []string
	if len(j.infectedPaths) > 0 {
		paths = make([]string, len(j.infectedPaths))
		copy(paths, j.infectedPaths)
	}

	return Progress{
		JobID:         j.jobID,
		Root:          j.root,
		Status:        j.status,
		Total:         j.total,
		Scanned:       j.scanned,
		Clean:         j.clean,
		Infected:      j.infected,
		Errors:        j.errored,
		InfectedPaths: paths,
		Elapsed:       j.timeline.Elapsed(),
	}
}

func (j *Job) transitionLocked(target JobStatus) error {
	if err := j.status.validateTransition(target); err != nil {
		return err
	}

	j.status = target
	if target.IsTerminal() {
		j.timeline.Finish()
		close(j.done)
	}
	return nil
}
