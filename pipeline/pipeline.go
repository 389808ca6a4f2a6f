// Package pipeline assembles the Source, the merging stages and the Sink into
// a linear chain and runs every member as its own goroutine.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"
	"pipesort.dev/pipesort/clocks"
	"pipesort.dev/pipesort/connectors"
	"pipesort.dev/pipesort/element"
	"pipesort.dev/pipesort/links"
	"pipesort.dev/pipesort/stage"
)

type Result struct {
	RunID  string
	Stages int
	// Values is the sorted output.
	Values []byte
	// Rounds holds the completed rounds per merging stage, index 0 is rank 1.
	Rounds []int
}

// Sort runs input through a pipeline built from cfg. Any failing member tears
// down the whole pipeline and no output is written.
func Sort(ctx context.Context, cfg Config, input []byte) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stages := cfg.Stages
	if stages == 0 {
		stages = StagesFor(len(input))
	}
	if err := CheckInput(len(input), stages, cfg.Strict); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clocks.NewSystemClock()
	}

	runID := ksuid.New().String()
	log := slog.With("instanceID", "pipeline", "run", runID)
	log.Info("starting", "stages", stages, "capacity", Capacity(stages), "values", len(input))
	start := time.Now()

	var handoffs atomic.Int64
	chain := make([]*links.Channel, stages-1)
	for i := range chain {
		chain[i] = links.NewChannel(links.Name(i, i+1))
	}

	params := connectors.SinkParams{Output: cfg.Output, SizeHint: len(input)}
	if cfg.EchoInput {
		params.Echo = true
		params.EchoInput = input
	}
	sink := connectors.NewSink(params)
	source := connectors.NewSource(bytes.NewReader(input), &counting{chain[0], &handoffs})

	merging := make([]*stage.Stage, stages-1)
	for rank := 1; rank < stages; rank++ {
		var out links.Sender = sink
		if rank < stages-1 {
			out = chain[rank]
		}
		merging[rank-1] = stage.New(stage.Params{
			Rank: rank,
			In:   chain[rank-1],
			Out:  &counting{out, &handoffs},
		})
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return source.Run(gctx)
	})
	for _, s := range merging {
		eg.Go(func() error {
			return s.Run(gctx)
		})
	}
	if cfg.StallTimeout > 0 {
		eg.Go(func() error {
			return watch(gctx, cfg.Clock, cfg.StallTimeout, handoffs.Load, sink.Done())
		})
	}
	if err := eg.Wait(); err != nil {
		log.Error("pipeline aborted", "err", err, "sent", source.Sent(), "received", sink.Received())
		return nil, fmt.Errorf("pipeline %s: %w", runID, err)
	}

	rounds := make([]int, len(merging))
	for i, s := range merging {
		rounds[i] = s.Rounds()
	}
	log.Info("finished", "duration", time.Since(start), "sent", source.Sent(), "received", sink.Received(), "rounds", rounds)

	return &Result{
		RunID:  runID,
		Stages: stages,
		Values: sink.Values(),
		Rounds: rounds,
	}, nil
}

// counting tracks accepted handoffs so the watchdog can tell a slow pipeline
// from a stuck one.
type counting struct {
	links.Sender
	n *atomic.Int64
}

func (c *counting) Send(ctx context.Context, e element.Element) error {
	if err := c.Sender.Send(ctx, e); err != nil {
		return err
	}
	c.n.Add(1)
	return nil
}
