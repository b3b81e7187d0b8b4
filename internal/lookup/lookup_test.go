package lookup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewerCallSupersedesOlder(t *testing.T) {
	tracker := NewTracker()

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})

	type result struct {
		value string
		err   error
	}
	results := make(chan result, 2)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		value, err := Do(tracker, context.Background(), "tos-url", func(ctx context.Context) (string, error) {
			close(firstStarted)
			<-releaseFirst
			return "https://old.example/tos", nil
		})
		results <- result{value, err}
	}()

	<-firstStarted
	value, err := Do(tracker, context.Background(), "tos-url", func(ctx context.Context) (string, error) {
		return "https://new.example/tos", nil
	})
	require.NoError(t, err)
	require.Equal(t, "https://new.example/tos", value)

	close(releaseFirst)
	wg.Wait()
	first := <-results
	require.ErrorIs(t, first.err, ErrSuperseded)
	require.Empty(t, first.value)
}

func TestNewerCallCancelsOlderContext(t *testing.T) {
	tracker := NewTracker()

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Do(tracker, context.Background(), "host-qualifies", func(ctx context.Context) (bool, error) {
			close(started)
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(5 * time.Second):
				return true, nil
			}
		})
		done <- err
	}()

	<-started
	_, err := Do(tracker, context.Background(), "host-qualifies", func(context.Context) (bool, error) { return true, nil })
	require.NoError(t, err)

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("older call was not cancelled")
	}
}

func TestOperationsAreIndependent(t *testing.T) {
	tracker := NewTracker()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Do(tracker, context.Background(), "a", func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- err
	}()
	<-started

	_, err := Do(tracker, context.Background(), "b", func(context.Context) (int, error) { return 2, nil })
	require.NoError(t, err)
	require.True(t, tracker.Pending("a"))

	close(release)
	require.NoError(t, <-done)
	require.False(t, tracker.Pending("a"))
}

func TestErrorsFromNewestCallAreReturned(t *testing.T) {
	tracker := NewTracker()
	boom := errors.New("boom")
	_, err := Do(tracker, context.Background(), "x", func(context.Context) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
}

func TestCancelAbortsInflight(t *testing.T) {
	tracker := NewTracker()
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Do(tracker, context.Background(), "x", func(ctx context.Context) (int, error) {
			close(started)
			<-ctx.Done()
			return 0, ctx.Err()
		})
		done <- err
	}()
	<-started
	tracker.Cancel("x")
	require.ErrorIs(t, <-done, ErrSuperseded)
}
