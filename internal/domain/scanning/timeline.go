package scanning

import "time"

// TimeProvider supplies the clock a job measures its elapsed time against.
// Tests substitute a controllable clock.
type TimeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (*realTimeProvider) Now() time.Time { return time.Now() }

// Timeline measures how long a scan job has run. It starts when the job is
// created and stops when the job reaches Completed or Cancelled; after that
// the reported duration no longer grows. Timeline is not safe for concurrent
// use and relies on the owning Job's lock.
type Timeline struct {
	clock      TimeProvider
	startedAt  time.Time
	finishedAt time.Time
}

// NewTimeline starts a timeline at clock's current time.
func NewTimeline(clock TimeProvider) *Timeline {
	return &Timeline{clock: clock, startedAt: clock.Now()}
}

// Finish stops the timeline. Only the first call has an effect.
func (t *Timeline) Finish() {
	if t.Finished() {
		return
	}
	t.finishedAt = t.clock.Now()
}

// Finished reports whether Finish has been called.
func (t *Timeline) Finished() bool { return !t.finishedAt.IsZero() }

// Elapsed is the scan duration so far, frozen once the timeline finishes.
func (t *Timeline) Elapsed() time.Duration {
	end := t.finishedAt
	if !t.Finished() {
		end = t.clock.Now()
	}
	return end.Sub(t.startedAt)
}
