package pipeline

import (
	"errors"
	"io"
	"time"

	"pipesort.dev/pipesort/clocks"
	"pipesort.dev/pipesort/faults"
)

// MaxStages bounds the pipeline so its capacity fits an int32.
const MaxStages = 32

// Config configures a single in-process run of the pipeline.
type Config struct {
	// Stages is the number of ranks P including Source and Sink. Zero derives
	// the smallest pipeline able to hold the input.
	Stages int
	// Strict rejects any non-empty input whose length is not the capacity.
	Strict bool
	// StallTimeout aborts the run when no element moved for that long. Zero
	// disables the watchdog.
	StallTimeout time.Duration
	// Clock drives the watchdog. Defaults to the system clock.
	Clock clocks.Clock
	// Output receives the sorted values one per line. Nil discards them.
	Output io.Writer
	// EchoInput prints the input values on one line before the sorted output.
	EchoInput bool
}

func (c *Config) Validate() (err error) {
	if c.Stages != 0 {
		err = errors.Join(err, validateStages(c.Stages))
	}
	if c.StallTimeout < 0 {
		err = errors.Join(err, faults.Configuration("stall timeout must not be negative, got %s", c.StallTimeout))
	}
	return err
}

func validateStages(stages int) error {
	if stages < 2 {
		return faults.Configuration("need at least 2 stages, got %d", stages)
	}
	if stages > MaxStages {
		return faults.Configuration("at most %d stages are supported, got %d", MaxStages, stages)
	}
	return nil
}

// Capacity is the number of values a pipeline of the given number of stages
// sorts completely. Ranks 1 through stages-1 each double the run length.
func Capacity(stages int) int {
	return 1 << (stages - 1)
}

// StagesFor returns the smallest valid number of stages whose capacity holds
// n values.
func StagesFor(n int) int {
	stages := 2
	for stages < MaxStages && Capacity(stages) < n {
		stages++
	}
	return stages
}

// CheckInput verifies that n values fit a pipeline of the given size. Input
// beyond capacity would leave the output as several sorted runs.
func CheckInput(n, stages int, strict bool) error {
	capacity := Capacity(stages)
	if n > capacity {
		return faults.Configuration("input of %d values exceeds the capacity %d of %d stages", n, capacity, stages)
	}
	if strict && n != 0 && n != capacity {
		return faults.Configuration("input of %d values does not match the capacity %d of %d stages", n, capacity, stages)
	}
	return nil
}
