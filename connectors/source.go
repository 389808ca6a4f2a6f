// Package connectors holds the two boundary roles of the pipeline: the Source
// feeding the first stage and the Sink collecting the last stage's output.
package connectors

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"pipesort.dev/pipesort/element"
	"pipesort.dev/pipesort/faults"
	"pipesort.dev/pipesort/links"
)

// Source streams every byte of its input to the first stage followed by a
// single end marker.
type Source struct {
	in   *bufio.Reader
	out  links.Sender
	sent int
	log  *slog.Logger
}

func NewSource(in io.Reader, out links.Sender) *Source {
	return &Source{
		in:  bufio.NewReader(in),
		out: out,
		log: slog.With("instanceID", "source"),
	}
}

func (s *Source) Run(ctx context.Context) error {
	for {
		v, err := s.in.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: reading input: %w", faults.ErrIO, err)
		}
		if err := s.out.Send(ctx, element.Data(v)); err != nil {
			return fmt.Errorf("source: sending %d: %w", v, err)
		}
		s.sent++
	}

	if err := s.out.Send(ctx, element.End()); err != nil {
		return fmt.Errorf("source: sending end: %w", err)
	}
	s.log.Debug("input streamed", "values", s.sent)
	return nil
}

// Sent is the number of values streamed so far.
func (s *Source) Sent() int {
	return s.sent
}
