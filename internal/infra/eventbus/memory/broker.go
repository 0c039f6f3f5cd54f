// Package memory provides an in-memory implementation of the scan event bus.
// It fans every published event out to the handlers subscribed for its type,
// synchronously and in registration order. Nothing is persisted.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ahrav/frostfile/internal/domain/scanning"
)

// ErrNilHandler is returned when subscribing a nil handler.
var ErrNilHandler = errors.New("handler cannot be nil")

type subscriber[T any] struct {
	id      uint64
	handler func(T) error
}

type handlerList[T any] []subscriber[T]

// Broker is an in-memory event bus for scan jobs. It satisfies the
// coordinator's event sink, so front ends receive results, progress and
// summaries by subscribing here.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64

	resultHandlers   handlerList[scanning.ResultEvent]
	progressHandlers handlerList[scanning.ProgressEvent]
	summaryHandlers  handlerList[scanning.SummaryEvent]
}

// NewBroker creates and initializes a new in-memory broker with empty
// handler lists for each event type.
func NewBroker() *Broker {
	return &Broker{
		resultHandlers:   make(handlerList[scanning.ResultEvent], 0),
		progressHandlers: make(handlerList[scanning.ProgressEvent], 0),
		summaryHandlers:  make(handlerList[scanning.SummaryEvent], 0),
	}
}

// subscribe is a generic helper function for handling all subscription types.
// The handler stays registered until ctx is done.
func subscribe[T any](ctx context.Context, b *Broker, handlers *handlerList[T], handler func(T) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	*handlers = append(*handlers, subscriber[T]{id: id, handler: handler})
	b.mu.Unlock()

	if ctx.Done() == nil {
		return nil
	}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range *handlers {
			if s.id == id {
				*handlers = append((*handlers)[:i:i], (*handlers)[i+1:]...)
				return
			}
		}
	}()

	return nil
}

// publish is a generic helper function for handling all publish types.
func publish[T any](ctx context.Context, b *Broker, handlers *handlerList[T], msg T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	// Copy so handlers run without the lock held.
	handlersCopy := make(handlerList[T], len(*handlers))
	copy(handlersCopy, *handlers)
	b.mu.RUnlock()

	for _, s := range handlersCopy {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.handler(msg); err != nil {
			return err
		}
	}
	return nil
}

// PublishResult broadcasts a per-file result to all subscribed handlers,
// stopping at the first error.
func (b *Broker) PublishResult(ctx context.Context, evt scanning.ResultEvent) error {
	return publish(ctx, b, &b.resultHandlers, evt)
}

// SubscribeResults registers a handler for per-file results.
func (b *Broker) SubscribeResults(ctx context.Context, handler func(scanning.ResultEvent) error) error {
	return subscribe(ctx, b, &b.resultHandlers, handler)
}

// PublishProgress broadcasts a progress snapshot to all subscribed handlers.
func (b *Broker) PublishProgress(ctx context.Context, evt scanning.ProgressEvent) error {
	return publish(ctx, b, &b.progressHandlers, evt)
}

// SubscribeProgress registers a handler for progress snapshots.
func (b *Broker) SubscribeProgress(ctx context.Context, handler func(scanning.ProgressEvent) error) error {
	return subscribe(ctx, b, &b.progressHandlers, handler)
}

// PublishSummary broadcasts a job summary to all subscribed handlers.
func (b *Broker) PublishSummary(ctx context.Context, evt scanning.SummaryEvent) error {
	return publish(ctx, b, &b.summaryHandlers, evt)
}

// SubscribeSummaries registers a handler for job summaries.
func (b *Broker) SubscribeSummaries(ctx context.Context, handler func(scanning.SummaryEvent) error) error {
	return subscribe(ctx, b, &b.summaryHandlers, handler)
}
