package scanning

import (
	"context"
	"sync"
	"sync/atomic"

	domain "github.com/ahrav/frostfile/internal/domain/scanning"
	"github.com/ahrav/frostfile/pkg/common/logger"
)

// notifier delivers a job's events to the sink from a single goroutine.
// Producers append to an unbounded queue and never wait on the sink.
// Consecutive progress events still queued are coalesced into the latest.
type notifier struct {
	sink   EventSink
	logger *logger.Logger

	mu     sync.Mutex
	queue  []any
	closed bool
	wake   chan struct{}

	detached atomic.Bool
	done     chan struct{}
}

func newNotifier(sink EventSink, logger *logger.Logger) *notifier {
	return &notifier{
		sink:   sink,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push enqueues events. Events pushed after close are dropped.
func (n *notifier) push(events ...any) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	for _, evt := range events {
		if _, ok := evt.(domain.ProgressEvent); ok && len(n.queue) > 0 {
			if _, lastIsProgress := n.queue[len(n.queue)-1].(domain.ProgressEvent); lastIsProgress {
				n.queue[len(n.queue)-1] = evt
				continue
			}
		}
		n.queue = append(n.queue, evt)
	}
	n.mu.Unlock()
	n.signal()
}

// close marks the queue as complete. run returns once it is drained.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.signal()
}

// detach stops delivery. Queued and future events are discarded.
func (n *notifier) detach() { n.detached.Store(true) }

// Done is closed after the last event has been handed to the sink.
func (n *notifier) Done() <-chan struct{} { return n.done }

func (n *notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run(ctx context.Context) {
	defer close(n.done)

	for {
		n.mu.Lock()
		batch := n.queue
		n.queue = nil
		closed := n.closed
		n.mu.Unlock()

		for _, evt := range batch {
			if n.detached.Load() {
				break
			}
			n.deliver(ctx, evt)
		}

		if closed && len(batch) == 0 {
			return
		}
		if len(batch) == 0 {
			<-n.wake
		}
	}
}

func (n *notifier) deliver(ctx context.Context, evt any) {
	var err error
	switch e := evt.(type) {
	case domain.ResultEvent:
		err = n.sink.PublishResult(ctx, e)
	case domain.ProgressEvent:
		err = n.sink.PublishProgress(ctx, e)
	case domain.SummaryEvent:
		err = n.sink.PublishSummary(ctx, e)
	}
	if err != nil {
		n.logger.Warn(ctx, "Event sink rejected event", "event", eventName(evt), "error", err)
	}
}

func eventName(evt any) string {
	switch evt.(type) {
	case domain.ResultEvent:
		return "result"
	case domain.ProgressEvent:
		return "progress"
	case domain.SummaryEvent:
		return "summary"
	default:
		return "unknown"
	}
}
