package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-status-gateway/internal/app"
	"quiz-status-gateway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingUpdatesSharesInFlightOutcome(t *testing.T) {
	pending := app.NewPendingUpdates()
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	op := func(context.Context) (domain.UpdateOutcome, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return domain.UpdateOutcome{Success: true}, nil
	}

	results := make([]domain.UpdateOutcome, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], _ = pending.Run(context.Background(), 7, op)
	}()
	<-started
	assert.Equal(t, 1, pending.Count())

	go func() {
		defer wg.Done()
		results[1], _ = pending.Run(context.Background(), 7, op)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, results[0], results[1])
	assert.True(t, results[0].Success)
	assert.Equal(t, 0, pending.Count())
}

func TestPendingUpdatesFollowerGetsFailedOutcomeOnError(t *testing.T) {
	pending := app.NewPendingUpdates()
	started := make(chan struct{})
	release := make(chan struct{})
	boom := errors.New("connection reset")

	op := func(context.Context) (domain.UpdateOutcome, error) {
		close(started)
		<-release
		return domain.UpdateOutcome{}, boom
	}

	var leaderErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, leaderErr = pending.Run(context.Background(), 9, op)
	}()
	<-started

	var follower domain.UpdateOutcome
	var followerErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		follower, followerErr = pending.Run(context.Background(), 9, func(context.Context) (domain.UpdateOutcome, error) {
			t.Error("follower must not run its own operation")
			return domain.UpdateOutcome{}, nil
		})
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.ErrorIs(t, leaderErr, boom)
	require.NoError(t, followerErr)
	assert.False(t, follower.Success)
	assert.Equal(t, "connection reset", follower.Error)
	assert.Equal(t, 0, pending.Count())
}

func TestPendingUpdatesIndependentSessions(t *testing.T) {
	pending := app.NewPendingUpdates()
	release := make(chan struct{})
	var calls atomic.Int32
	var ready sync.WaitGroup
	ready.Add(2)

	op := func(context.Context) (domain.UpdateOutcome, error) {
		calls.Add(1)
		ready.Done()
		<-release
		return domain.UpdateOutcome{Success: true}, nil
	}

	var wg sync.WaitGroup
	for _, id := range []int{1, 2} {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = pending.Run(context.Background(), id, op)
		}()
	}
	ready.Wait()
	assert.Equal(t, 2, pending.Count())
	close(release)
	wg.Wait()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, pending.Count())
}

func TestPendingUpdatesClear(t *testing.T) {
	pending := app.NewPendingUpdates()
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = pending.Run(context.Background(), 3, func(context.Context) (domain.UpdateOutcome, error) {
			close(started)
			<-release
			return domain.UpdateOutcome{Success: true}, nil
		})
	}()
	<-started
	require.Equal(t, 1, pending.Count())

	pending.Clear()
	assert.Equal(t, 0, pending.Count())

	// After a clear the same session starts a fresh operation.
	var fresh atomic.Bool
	outcome, err := pending.Run(context.Background(), 3, func(context.Context) (domain.UpdateOutcome, error) {
		fresh.Store(true)
		return domain.UpdateOutcome{Success: true}, nil
	})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.True(t, fresh.Load())

	close(release)
	<-done
	assert.Equal(t, 0, pending.Count())
}

func TestPendingUpdatesRemovesEntryOnPanic(t *testing.T) {
	pending := app.NewPendingUpdates()

	outcome, err := pending.Run(context.Background(), 4, func(context.Context) (domain.UpdateOutcome, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked: boom")
	assert.False(t, outcome.Success)
	assert.Equal(t, 0, pending.Count())
}

func TestPendingUpdatesJoinedCallerHonoursItsContext(t *testing.T) {
	pending := app.NewPendingUpdates()
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		_, _ = pending.Run(context.Background(), 11, func(context.Context) (domain.UpdateOutcome, error) {
			close(started)
			<-release
			return domain.UpdateOutcome{Success: true}, nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	begin := time.Now()
	outcome, err := pending.Run(ctx, 11, func(context.Context) (domain.UpdateOutcome, error) {
		t.Error("joined caller must not run its own operation")
		return domain.UpdateOutcome{}, nil
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), time.Second)
	assert.False(t, outcome.Success)
	assert.Equal(t, context.DeadlineExceeded.Error(), outcome.Error)
	assert.Equal(t, 1, pending.Count(), "the running update is still tracked")

	select {
	case <-leaderDone:
		t.Fatal("leader must keep running after a joined caller gives up")
	default:
	}
}
