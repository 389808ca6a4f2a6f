package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pipesort.dev/pipesort/clocks"
)

func startWatch(t *testing.T, progress func() int64, done <-chan struct{}) (*clocks.FrozenClock, <-chan error) {
	t.Helper()
	clock := clocks.NewFrozenClock()
	result := make(chan error, 1)
	go func() {
		result <- watch(t.Context(), clock, time.Second, progress, done)
	}()
	require.Eventually(t, func() bool { return clock.HasEvery(watchdogLabel) }, time.Second, time.Millisecond)
	return clock, result
}

func TestWatch_DetectsStall(t *testing.T) {
	clock, result := startWatch(t, func() int64 { return 7 }, make(chan struct{}))

	clock.TickEvery(watchdogLabel)
	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrStalled)
	case <-time.After(time.Second):
		t.Fatal("watchdog did not report the stall")
	}
}

func TestWatch_ProgressKeepsPipelineAlive(t *testing.T) {
	var handoffs atomic.Int64
	done := make(chan struct{})
	clock, result := startWatch(t, handoffs.Load, done)

	for range 3 {
		handoffs.Add(1)
		clock.TickEvery(watchdogLabel)
	}
	close(done)

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watchdog did not return after done")
	}
}

func TestWatch_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := watch(ctx, clocks.NewFrozenClock(), time.Second, func() int64 { return 0 }, make(chan struct{}))
	assert.NoError(t, err)
}

func TestSort_WatchdogDoesNotFireOnHealthyRun(t *testing.T) {
	result, err := Sort(t.Context(), Config{Stages: 5, StallTimeout: time.Minute}, []byte{
		9, 3, 4, 1, 200, 0, 7, 7, 8, 6, 5, 4, 3, 2, 1, 0,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 1, 1, 2, 3, 3, 4, 4, 5, 6, 7, 7, 8, 9, 200}, result.Values)
}
