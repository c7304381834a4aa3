package futures

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	f := New[int]()
	go f.Resolve(7)

	result, err := f.Wait()
	require.NoError(t, err)
	require.Equal(t, 7, result)

	select {
	case <-f.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestReject(t *testing.T) {
	boom := errors.New("boom")
	f := New[string]()
	f.Reject(boom)

	_, err := f.Wait()
	require.ErrorIs(t, err, boom)
}

func TestResolveTwicePanics(t *testing.T) {
	f := New[int]()
	f.Resolve(1)
	require.Panics(t, func() { f.Resolve(2) })
}

func TestWaitContext(t *testing.T) {
	f := New[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.WaitContext(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	f.Resolve(3)
	result, err := f.WaitContext(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, result)
}

func TestWaitAll(t *testing.T) {
	a, b := New[int](), New[int]()
	a.Resolve(1)
	b.Resolve(2)

	results, err := WaitAll([]Future[int]{a, b})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, results)

	failed := New[int]()
	failed.Reject(errors.New("failed"))
	_, err = WaitAll([]Future[int]{a, failed})
	require.Error(t, err)
}
