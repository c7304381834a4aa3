// Package notify delivers flush events to observers outside the store:
// in-process channels, logs, Redis pub/sub and Kafka topics.
package notify

import (
	"context"
	"errors"

	"github.com/rzpsarthak13/holdthis/internal/core"
)

// Sink is a flush observer that owns resources.
type Sink interface {
	core.FlushObserver

	// Close releases the sink. Events delivered after Close are dropped.
	Close() error
}

// FuncSink adapts a function to Sink.
type FuncSink func(event core.FlushEvent)

// OnFlush calls f.
func (f FuncSink) OnFlush(_ context.Context, event core.FlushEvent) {
	if f != nil {
		f(event)
	}
}

// Close is a no-op.
func (f FuncSink) Close() error { return nil }

// Multi fans every event out to a list of observers in order.
type Multi []core.FlushObserver

// NewMulti returns an observer delivering to every non-nil observer.
func NewMulti(observers ...core.FlushObserver) Multi {
	multi := make(Multi, 0, len(observers))
	for _, observer := range observers {
		if observer != nil {
			multi = append(multi, observer)
		}
	}
	return multi
}

func (m Multi) OnFlush(ctx context.Context, event core.FlushEvent) {
	for _, observer := range m {
		observer.OnFlush(ctx, event)
	}
}

// Close closes every observer that is a Sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, observer := range m {
		sink, ok := observer.(Sink)
		if !ok {
			continue
		}
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop discards every event.
type Noop struct{}

func (Noop) OnFlush(context.Context, core.FlushEvent) {}

func (Noop) Close() error { return nil }
