// Package futures provides single-assignment results that are resolved by one
// goroutine and awaited by others.
package futures

import (
	"context"
	"fmt"
	"sync"
)

// Future is a result that becomes available once.
type Future[T any] interface {
	// Resolve completes the future successfully.
	Resolve(result T)

	// Reject completes the future with an error.
	Reject(err error)

	// ResolveOrReject completes the future with both a result and an error.
	ResolveOrReject(result T, err error)

	// Wait blocks until the future is completed.
	Wait() (T, error)

	// WaitContext blocks until the future is completed or ctx is done.
	WaitContext(ctx context.Context) (T, error)

	// Done is closed once the future is completed.
	Done() <-chan struct{}
}

type future[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	result   T
	err      error
	resolved bool
}

// New creates an unresolved future.
func New[T any]() Future[T] {
	return &future[T]{done: make(chan struct{})}
}

func (f *future[T]) Resolve(result T) {
	f.ResolveOrReject(result, nil)
}

func (f *future[T]) Reject(err error) {
	var zero T
	f.ResolveOrReject(zero, err)
}

func (f *future[T]) ResolveOrReject(result T, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.resolved {
		panic("future resolved multiple times")
	}

	f.resolved = true
	f.result = result
	f.err = err
	close(f.done)
}

func (f *future[T]) Wait() (T, error) {
	<-f.done
	return f.result, f.err
}

func (f *future[T]) WaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *future[T]) Done() <-chan struct{} {
	return f.done
}

// WaitAll waits for every future and returns their results in order. It
// returns the first error encountered.
func WaitAll[T any](futures []Future[T]) ([]T, error) {
	results := make([]T, 0, len(futures))
	for i, fut := range futures {
		result, err := fut.Wait()
		if err != nil {
			return nil, fmt.Errorf("future at index %d resolved with error: %w", i, err)
		}
		results = append(results, result)
	}
	return results, nil
}
