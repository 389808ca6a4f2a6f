package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pipesort.dev/pipesort/clocks"
)

var ErrStalled = errors.New("pipeline stalled")

const watchdogLabel = "watchdog"

// watch fails with ErrStalled when progress did not move between two ticks.
// It returns nil once done is closed or ctx is cancelled.
func watch(ctx context.Context, clock clocks.Clock, interval time.Duration, progress func() int64, done <-chan struct{}) error {
	stalled := make(chan int64, 1)

	last := progress()
	ticker := clock.Every(interval, func() {
		cur := progress()
		if cur == last {
			select {
			case stalled <- cur:
			default:
			}
		}
		last = cur
	}, watchdogLabel)
	defer ticker.Stop()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	case at := <-stalled:
		return fmt.Errorf("%w: no element moved for %s after %d handoffs", ErrStalled, interval, at)
	}
}
