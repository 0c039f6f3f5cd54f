package scanning

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTimeProvider struct {
	mu      sync.Mutex
	current time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *mockTimeProvider) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

func scanningJob(t *testing.T, total int) *Job {
	t.Helper()

	job := NewJob("/root")
	require.NoError(t, job.BeginEnumeration())
	status, err := job.CompleteEnumeration(total)
	require.NoError(t, err)
	require.Equal(t, JobStatusScanning, status)
	return job
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("/data")

	assert.Equal(t, JobStatusIdle, job.Status())
	assert.Equal(t, "/data", job.Root())
	assert.NotEqual(t, uuid.Nil, job.JobID())
	assert.False(t, isClosed(job.Done()))

	p := job.Snapshot()
	assert.Zero(t, p.Fraction())
	assert.False(t, p.Completed())
}

func TestCompleteEnumeration(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		cancel     bool
		wantStatus JobStatus
	}{
		{name: "files found moves to scanning", total: 3, wantStatus: JobStatusScanning},
		{name: "empty tree completes immediately", total: 0, wantStatus: JobStatusCompleted},
		{name: "cancel during enumeration", total: 5, cancel: true, wantStatus: JobStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob("/root")
			require.NoError(t, job.BeginEnumeration())
			if tt.cancel {
				require.True(t, job.RequestCancel())
			}

			status, err := job.CompleteEnumeration(tt.total)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantStatus.IsTerminal(), isClosed(job.Done()))
		})
	}
}

func TestCompleteEnumerationRequiresEnumerating(t *testing.T) {
	job := NewJob("/root")
	_, err := job.CompleteEnumeration(1)
	require.Error(t, err)
}

func TestEmptyJobReportsFullProgress(t *testing.T) {
	job := NewJob("/empty")
	require.NoError(t, job.BeginEnumeration())
	_, err := job.CompleteEnumeration(0)
	require.NoError(t, err)

	p := job.Snapshot()
	assert.True(t, p.Completed())
	assert.Equal(t, 1.0, p.Fraction())
	assert.Zero(t, p.Infected)
	assert.Zero(t, p.Errors)
	assert.False(t, p.AnyInfected())
}

func TestRecordResult(t *testing.T) {
	job := scanningJob(t, 3)

	p, done, err := job.RecordResult(NewCleanResult("/root/a", "aa"))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, p.Scanned)
	assert.InDelta(t, 1.0/3.0, p.Fraction(), 1e-9)

	p, done, err = job.RecordResult(NewInfectedResult("/root/b", "bb"))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, []string{"/root/b"}, p.InfectedPaths)

	p, done, err = job.RecordResult(NewErrorResult("/root/c", errors.New("permission denied")))
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, p.Completed())
	assert.Equal(t, 1.0, p.Fraction())
	assert.Equal(t, 3, p.Scanned)
	assert.Equal(t, 1, p.Clean)
	assert.Equal(t, 1, p.Infected)
	assert.Equal(t, 1, p.Errors)
	assert.True(t, isClosed(job.Done()))

	// Nothing is accepted after completion.
	_, _, err = job.RecordResult(NewCleanResult("/root/d", "dd"))
	require.ErrorIs(t, err, ErrJobNotScanning)
	assert.Equal(t, 3, job.Snapshot().Scanned)
}

func TestRecordResultBeforeScanning(t *testing.T) {
	job := NewJob("/root")
	_, _, err := job.RecordResult(NewCleanResult("/root/a", "aa"))
	require.ErrorIs(t, err, ErrJobNotScanning)
}

func TestSnapshotIsACopy(t *testing.T) {
	job := scanningJob(t, 3)
	_, _, err := job.RecordResult(NewInfectedResult("/root/a", "aa"))
	require.NoError(t, err)

	snap := job.Snapshot()
	snap.InfectedPaths[0] = "mutated"

	assert.Equal(t, []string{"/root/a"}, job.Snapshot().InfectedPaths)
}

func TestRequestCancelIsIdempotent(t *testing.T) {
	job := scanningJob(t, 2)

	assert.True(t, job.RequestCancel())
	assert.False(t, job.RequestCancel())
	assert.True(t, job.CancelRequested())

	// In-flight results still land after the request.
	_, _, err := job.RecordResult(NewCleanResult("/root/a", "aa"))
	require.NoError(t, err)

	assert.True(t, job.FinishCancelled())
	assert.False(t, job.FinishCancelled())

	p := job.Snapshot()
	assert.True(t, p.Cancelled())
	assert.False(t, p.Completed())
	assert.Equal(t, 1, p.Scanned)
	assert.InDelta(t, 0.5, p.Fraction(), 1e-9)
	assert.True(t, isClosed(job.Done()))
}

func TestCancelAfterCompletionHasNoEffect(t *testing.T) {
	job := scanningJob(t, 1)
	_, done, err := job.RecordResult(NewCleanResult("/root/a", "aa"))
	require.NoError(t, err)
	require.True(t, done)

	assert.False(t, job.RequestCancel())
	assert.False(t, job.FinishCancelled())
	assert.True(t, job.Snapshot().Completed())
}

func TestConcurrentRecordResult(t *testing.T) {
	const total = 200
	job := scanningJob(t, total)

	var (
		wg          sync.WaitGroup
		completions int
		mu          sync.Mutex
	)
	for i := range total {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/root/%d", i)
			var r Result = NewCleanResult(path, "x")
			if i%10 == 0 {
				r = NewInfectedResult(path, "y")
			}
			_, done, err := job.RecordResult(r)
			assert.NoError(t, err)
			if done {
				mu.Lock()
				completions++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	p := job.Snapshot()
	assert.Equal(t, 1, completions, "completion must be observed exactly once")
	assert.Equal(t, total, p.Scanned)
	assert.Equal(t, total/10, p.Infected)
	assert.Len(t, p.InfectedPaths, total/10)
	assert.Equal(t, p.Scanned, p.Clean+p.Infected+p.Errors)
}

func TestTimelineTracksTerminalTime(t *testing.T) {
	tp := &mockTimeProvider{current: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	job := newJob("/root", tp)
	require.NoError(t, job.BeginEnumeration())
	_, err := job.CompleteEnumeration(1)
	require.NoError(t, err)

	tp.advance(3 * time.Second)
	_, _, err = job.RecordResult(NewCleanResult("/root/a", "aa"))
	require.NoError(t, err)

	tp.advance(time.Minute)
	assert.Equal(t, 3*time.Second, job.Snapshot().Elapsed)
}

func TestRecordResultFuncObservesSnapshotsInOrder(t *testing.T) {
	const total = 300
	job := scanningJob(t, total)

	var (
		wg        sync.WaitGroup
		seen      []int
		completed []int
	)
	for i := range total {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := NewCleanResult(fmt.Sprintf("/root/%d", i), "x")
			err := job.RecordResultFunc(r, func(p Progress, done bool) {
				// Runs under the job lock, so the slices need no guard.
				seen = append(seen, p.Scanned)
				if done {
					completed = append(completed, p.Scanned)
				}
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Len(t, seen, total)
	for i, scanned := range seen {
		assert.Equal(t, i+1, scanned, "callback %d saw an out-of-order snapshot", i)
	}
	assert.Equal(t, []int{total}, completed)
}

func TestRecordResultFuncSkipsCallbackOnError(t *testing.T) {
	job := newJob("/root", new(realTimeProvider))

	called := false
	err := job.RecordResultFunc(NewCleanResult("/root/a", "aa"), func(Progress, bool) { called = true })
	require.ErrorIs(t, err, ErrJobNotScanning)
	assert.False(t, called)
}

func TestTimelineFreezesOnFinish(t *testing.T) {
	tp := &mockTimeProvider{current: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	tl := NewTimeline(tp)

	tp.advance(2 * time.Second)
	assert.False(t, tl.Finished())
	assert.Equal(t, 2*time.Second, tl.Elapsed())

	tl.Finish()
	tp.advance(time.Minute)
	tl.Finish()

	assert.True(t, tl.Finished())
	assert.Equal(t, 2*time.Second, tl.Elapsed(), "a second Finish must not move the end time")
}
