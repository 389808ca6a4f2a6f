// Package stage implements one merging stage of the pipeline merge sort.
//
// Stage r receives ascending runs of length 2^(r-1) from its upstream
// neighbour, alternately buffers them in its Top and Bottom queues and merges
// each pair into one ascending run of length 2^r for its downstream
// neighbour. A stage is a single sequential loop; it shares no state with
// other stages and coordinates with them only through its two links.
package stage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"pipesort.dev/pipesort/element"
	"pipesort.dev/pipesort/links"
)

// MaxRank bounds the rank so the quota stays a positive int.
const MaxRank = 62

// State is the externally visible lifecycle of a stage.
type State int

const (
	Receiving State = iota
	RoundActive
	Draining
	ForwardEnd
	Terminated
)

func (s State) String() string {
	switch s {
	case Receiving:
		return "receiving"
	case RoundActive:
		return "round-active"
	case Draining:
		return "draining"
	case ForwardEnd:
		return "forward-end"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Quota is the number of values a stage at rank draws from each queue per
// round.
func Quota(rank int) int {
	return 1 << (rank - 1)
}

type Params struct {
	Rank int
	In   links.Receiver
	Out  links.Sender
}

type Stage struct {
	rank   int
	quota  int
	in     links.Receiver
	out    links.Sender
	queues *DualQueue
	round  round

	ended      bool // the upstream end marker was received
	forwarding bool
	terminated bool

	roundCount     int
	forwardedCount int
	rounds         *metrics.Counter
	forwarded      *metrics.Counter
	log            *slog.Logger
}

func New(params Params) *Stage {
	if params.Rank < 1 || params.Rank > MaxRank {
		panic(fmt.Sprintf("stage rank must be in [1, %d], got %d", MaxRank, params.Rank))
	}
	quota := Quota(params.Rank)
	return &Stage{
		rank:      params.Rank,
		quota:     quota,
		in:        params.In,
		out:       params.Out,
		queues:    NewDualQueue(quota),
		round:     round{quota: quota},
		rounds:    metrics.GetOrCreateCounter(fmt.Sprintf(`pipesort_stage_rounds_total{stage="%d"}`, params.Rank)),
		forwarded: metrics.GetOrCreateCounter(fmt.Sprintf(`pipesort_stage_forwarded_total{stage="%d"}`, params.Rank)),
		log:       slog.With("instanceID", fmt.Sprintf("stage-%d", params.Rank)),
	}
}

// Run merges until the upstream ended and every buffered value was forwarded,
// then forwards the end marker once. Any error leaves the stage unusable.
func (s *Stage) Run(ctx context.Context) error {
	s.log.Debug("starting", "quota", s.quota)
	for !s.terminated {
		if err := s.step(ctx); err != nil {
			return fmt.Errorf("stage %d (%s): %w", s.rank, s.State(), err)
		}
	}
	s.log.Debug("terminated", "rounds", s.roundCount, "forwarded", s.forwardedCount)
	return nil
}

func (s *Stage) State() State {
	switch {
	case s.terminated:
		return Terminated
	case s.forwarding:
		return ForwardEnd
	case s.ended:
		return Draining
	case s.round.active:
		return RoundActive
	default:
		return Receiving
	}
}

// Rounds is the number of rounds the stage completed so far.
func (s *Stage) Rounds() int {
	return s.roundCount
}

// step runs one iteration of the stage loop: at most one receive followed by
// at most one forwarded value.
func (s *Stage) step(ctx context.Context) error {
	if !s.ended {
		if err := s.receive(ctx); err != nil {
			return err
		}
	}

	if s.ended && s.queues.IsEmpty() {
		return s.forwardEnd(ctx)
	}

	if !s.round.active {
		if !s.round.ready(s.queues, s.ended) {
			return nil
		}
		s.round.start()
	}

	if side, ok := s.round.pick(s.queues, s.ended); ok {
		v, err := s.round.take(s.queues, side)
		if err != nil {
			return err
		}
		if err := s.out.Send(ctx, element.Data(v)); err != nil {
			return fmt.Errorf("forwarding %d: %w", v, err)
		}
		s.forwardedCount++
		s.forwarded.Inc()
	}

	if s.round.done(s.queues, s.ended) {
		s.completeRound()
	}
	return nil
}

func (s *Stage) completeRound() {
	s.round.reset()
	s.roundCount++
	s.rounds.Inc()
}

func (s *Stage) receive(ctx context.Context) error {
	e, err := s.in.Recv(ctx)
	if err != nil {
		return fmt.Errorf("receiving: %w", err)
	}
	if e.IsEnd() {
		s.ended = true
		s.log.Debug("upstream ended", "top", s.queues.Len(Top), "bottom", s.queues.Len(Bottom))
		return nil
	}
	return s.queues.Route(e.Value())
}

func (s *Stage) forwardEnd(ctx context.Context) error {
	if s.round.active {
		s.completeRound()
	}
	s.forwarding = true
	if err := s.out.Send(ctx, element.End()); err != nil {
		return fmt.Errorf("forwarding end: %w", err)
	}
	s.forwarding = false
	s.terminated = true
	return nil
}
