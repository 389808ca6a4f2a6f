package connectors

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"pipesort.dev/pipesort/element"
	"pipesort.dev/pipesort/faults"
	"pipesort.dev/pipesort/links"
	"pipesort.dev/pipesort/util/ds"
	"pipesort.dev/pipesort/util/queues"
)

type SinkState int32

const (
	SinkReceiving SinkState = iota
	SinkFlushing
	SinkTerminated
)

type SinkParams struct {
	// Output receives the sorted values, one per line. Nil discards them.
	Output io.Writer
	// EchoInput is printed on one space separated line before the sorted values.
	EchoInput []byte
	// Echo enables printing EchoInput, even when it is empty.
	Echo bool
	// SizeHint is the expected number of values, zero when unknown.
	SizeHint int
}

// Sink is the downstream end of the last stage. It buffers the merged values
// and writes them out once the end marker arrives.
type Sink struct {
	out      io.Writer
	echo     bool
	input    []byte
	buffer   *ds.Deque[byte]
	values   []byte
	received atomic.Int64
	state    atomic.Int32
	done     chan struct{}
}

func NewSink(params SinkParams) *Sink {
	out := params.Output
	if out == nil {
		out = io.Discard
	}
	return &Sink{
		out:    out,
		echo:   params.Echo,
		input:  params.EchoInput,
		buffer: ds.NewDeque[byte](params.SizeHint),
		done:   make(chan struct{}),
	}
}

// Send accepts the next merged element from the last stage.
func (s *Sink) Send(ctx context.Context, e element.Element) error {
	if s.State() != SinkReceiving {
		return faults.Protocol("sink: received %s after end", e)
	}
	if !e.IsEnd() {
		s.buffer.Push(e.Value())
		s.received.Add(1)
		return nil
	}

	s.state.Store(int32(SinkFlushing))
	s.values = queues.Drain(s.buffer)
	if err := s.flush(); err != nil {
		return err
	}
	s.state.Store(int32(SinkTerminated))
	close(s.done)
	return nil
}

func (s *Sink) flush() error {
	w := bufio.NewWriter(s.out)
	if s.echo {
		appendInputLine(w, s.input)
	}
	for _, v := range s.values {
		w.WriteString(strconv.Itoa(int(v)))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: writing output: %w", faults.ErrIO, err)
	}
	return nil
}

// WriteInputLine prints the unsorted input on one space separated line.
func WriteInputLine(out io.Writer, input []byte) error {
	w := bufio.NewWriter(out)
	appendInputLine(w, input)
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: writing input line: %w", faults.ErrIO, err)
	}
	return nil
}

func appendInputLine(w *bufio.Writer, input []byte) {
	for _, v := range input {
		w.WriteString(strconv.Itoa(int(v)))
		w.WriteByte(' ')
	}
	w.WriteByte('\n')
}

func (s *Sink) State() SinkState {
	return SinkState(s.state.Load())
}

// Received is the number of values that reached the sink. Safe to call from
// any goroutine.
func (s *Sink) Received() int64 {
	return s.received.Load()
}

// Done is closed once the output was written.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// Values returns the collected values in output order. Only valid after Done
// is closed.
func (s *Sink) Values() []byte {
	return s.values
}

var _ links.Sender = (*Sink)(nil)
