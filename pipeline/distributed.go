package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"pipesort.dev/pipesort/connectors"
	"pipesort.dev/pipesort/faults"
	"pipesort.dev/pipesort/links"
	"pipesort.dev/pipesort/stage"
)

// RankParams configures one rank of a pipeline whose members run as separate
// processes connected over TCP.
type RankParams struct {
	Rank   int
	Stages int
	// Listen is the address the upstream rank connects to. Required for
	// every rank but 0 unless Listener is set.
	Listen   string
	Listener net.Listener
	// Downstream is the address of rank+1. Required for every rank but the last.
	Downstream string
	// Input is read in full by rank 0.
	Input  io.Reader
	Strict bool
	// Output receives the sorted values on the last rank and, with EchoInput,
	// the input line on rank 0.
	Output    io.Writer
	EchoInput bool
}

func (p *RankParams) Validate() (err error) {
	if err := validateStages(p.Stages); err != nil {
		return err
	}
	if p.Rank < 0 || p.Rank >= p.Stages {
		err = errors.Join(err, faults.Configuration("rank must be in [0, %d], got %d", p.Stages-1, p.Rank))
	}
	if p.Rank == 0 && p.Input == nil {
		err = errors.Join(err, faults.Configuration("rank 0 needs an input"))
	}
	if p.Rank > 0 && p.Listen == "" && p.Listener == nil {
		err = errors.Join(err, faults.Configuration("rank %d needs a listen address", p.Rank))
	}
	if p.Rank < p.Stages-1 && p.Downstream == "" {
		err = errors.Join(err, faults.Configuration("rank %d needs a downstream address", p.Rank))
	}
	return err
}

type RankResult struct {
	// Values is the sorted output, set on the last rank only.
	Values []byte
	// Rounds completed by a merging rank.
	Rounds int
}

// RunRank runs a single rank until it forwarded or received the end marker.
func RunRank(ctx context.Context, p RankParams) (*RankResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	log := slog.With("instanceID", fmt.Sprintf("rank-%d", p.Rank))

	if p.Rank == 0 {
		return &RankResult{}, runSourceRank(ctx, p, log)
	}
	return runStageRank(ctx, p, log)
}

func runSourceRank(ctx context.Context, p RankParams, log *slog.Logger) error {
	input, err := io.ReadAll(p.Input)
	if err != nil {
		return fmt.Errorf("%w: reading input: %w", faults.ErrIO, err)
	}
	if err := CheckInput(len(input), p.Stages, p.Strict); err != nil {
		return err
	}
	if p.EchoInput && p.Output != nil {
		if err := connectors.WriteInputLine(p.Output, input); err != nil {
			return err
		}
	}

	out, err := links.Dial(ctx, links.Name(0, 1), p.Downstream)
	if err != nil {
		return err
	}
	defer out.Close()

	log.Info("streaming input", "values", len(input), "downstream", p.Downstream)
	return connectors.NewSource(bytes.NewReader(input), out).Run(ctx)
}

func runStageRank(ctx context.Context, p RankParams, log *slog.Logger) (*RankResult, error) {
	lis := p.Listener
	if lis == nil {
		var err error
		if lis, err = net.Listen("tcp", p.Listen); err != nil {
			return nil, fmt.Errorf("listening for rank %d: %w", p.Rank-1, err)
		}
	}
	log.Info("waiting for upstream", "addr", lis.Addr().String())

	in, err := links.Accept(ctx, links.Name(p.Rank-1, p.Rank), lis)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	last := p.Rank == p.Stages-1
	var (
		out  links.Sender
		sink *connectors.Sink
	)
	if last {
		sink = connectors.NewSink(connectors.SinkParams{Output: p.Output})
		out = sink
	} else {
		conn, err := links.Dial(ctx, links.Name(p.Rank, p.Rank+1), p.Downstream)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		out = conn
	}

	s := stage.New(stage.Params{Rank: p.Rank, In: in, Out: out})
	if err := s.Run(ctx); err != nil {
		return nil, err
	}

	result := &RankResult{Rounds: s.Rounds()}
	if sink != nil {
		result.Values = sink.Values()
	}
	return result, nil
}
