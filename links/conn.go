package links

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"pipesort.dev/pipesort/element"
	"pipesort.dev/pipesort/faults"
	"pipesort.dev/pipesort/telemetry"
)

// ack is written by the receiver after it accepted a frame.
const ack byte = 0x06

// dialRetryInterval is how long Dial waits before retrying a refused
// connection. Ranks of a distributed pipeline start in any order.
const dialRetryInterval = 50 * time.Millisecond

// ConnSender is the sending end of a link over a stream connection.
type ConnSender struct {
	name    string
	conn    net.Conn
	sentEnd bool
	buf     [element.FrameSize]byte
}

func NewConnSender(name string, conn net.Conn) *ConnSender {
	return &ConnSender{name: name, conn: conn}
}

func (s *ConnSender) Send(ctx context.Context, e element.Element) error {
	if s.sentEnd {
		return faults.Protocol("link %s: send of %s after end", s.name, e)
	}

	stop := interruptOnDone(ctx, s.conn)
	defer stop()

	done := telemetry.ObserveSend(s.name)
	defer done()

	if _, err := s.conn.Write(element.AppendFrame(s.buf[:0], e)); err != nil {
		return linkError(ctx, s.name, "writing frame", err)
	}

	var reply [1]byte
	if _, err := io.ReadFull(s.conn, reply[:]); err != nil {
		return linkError(ctx, s.name, "reading ack", err)
	}
	if reply[0] != ack {
		return faults.Protocol("link %s: unexpected ack byte %#x", s.name, reply[0])
	}

	if e.IsEnd() {
		s.sentEnd = true
	}
	return nil
}

func (s *ConnSender) Close() error {
	return s.conn.Close()
}

// ConnReceiver is the receiving end of a link over a stream connection.
type ConnReceiver struct {
	name    string
	conn    net.Conn
	recvEnd bool
	buf     [element.FrameSize]byte
}

func NewConnReceiver(name string, conn net.Conn) *ConnReceiver {
	return &ConnReceiver{name: name, conn: conn}
}

func (r *ConnReceiver) Recv(ctx context.Context) (element.Element, error) {
	if r.recvEnd {
		return element.Element{}, faults.Protocol("link %s: receive after end", r.name)
	}

	stop := interruptOnDone(ctx, r.conn)
	defer stop()

	if _, err := io.ReadFull(r.conn, r.buf[:]); err != nil {
		return element.Element{}, linkError(ctx, r.name, "reading frame", err)
	}
	e, err := element.DecodeFrame(r.buf[:])
	if err != nil {
		return element.Element{}, fmt.Errorf("link %s: %w", r.name, err)
	}
	if _, err := r.conn.Write([]byte{ack}); err != nil {
		return element.Element{}, linkError(ctx, r.name, "writing ack", err)
	}

	if e.IsEnd() {
		r.recvEnd = true
	}
	return e, nil
}

func (r *ConnReceiver) Close() error {
	return r.conn.Close()
}

// Dial connects to the downstream rank at addr, retrying until it accepts or
// ctx is done.
func Dial(ctx context.Context, name, addr string) (*ConnSender, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return NewConnSender(name, conn), nil
		}
		slog.Debug("dial failed, retrying", "link", name, "addr", addr, "err", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dialing link %s at %s: %w", name, addr, errors.Join(ctx.Err(), err))
		case <-time.After(dialRetryInterval):
		}
	}
}

// Accept waits for the upstream rank to connect to lis. Only one connection
// is accepted; the listener is closed afterwards.
func Accept(ctx context.Context, name string, lis net.Listener) (*ConnReceiver, error) {
	stop := context.AfterFunc(ctx, func() { lis.Close() })
	defer stop()
	defer lis.Close()

	conn, err := lis.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accepting link %s: %w", name, err)
	}
	return NewConnReceiver(name, conn), nil
}

// interruptOnDone unblocks pending reads and writes on conn when ctx is done.
func interruptOnDone(ctx context.Context, conn net.Conn) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
}

func linkError(ctx context.Context, name, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: link %s: %s: %w", faults.ErrIO, name, op, err)
}

var (
	_ Sender   = (*ConnSender)(nil)
	_ Receiver = (*ConnReceiver)(nil)
)
