package links

import (
	"context"

	"pipesort.dev/pipesort/element"
	"pipesort.dev/pipesort/faults"
	"pipesort.dev/pipesort/telemetry"
)

// Channel is an in-process link backed by an unbuffered Go channel. The
// sending and receiving sides must each be used by a single goroutine.
type Channel struct {
	name    string
	ch      chan element.Element
	sentEnd bool // owned by the sender
	recvEnd bool // owned by the receiver
}

func NewChannel(name string) *Channel {
	return &Channel{
		name: name,
		ch:   make(chan element.Element),
	}
}

func (c *Channel) Send(ctx context.Context, e element.Element) error {
	if c.sentEnd {
		return faults.Protocol("link %s: send of %s after end", c.name, e)
	}

	done := telemetry.ObserveSend(c.name)
	defer done()

	select {
	case c.ch <- e:
	case <-ctx.Done():
		return ctx.Err()
	}

	if e.IsEnd() {
		c.sentEnd = true
	}
	return nil
}

func (c *Channel) Recv(ctx context.Context) (element.Element, error) {
	if c.recvEnd {
		return element.Element{}, faults.Protocol("link %s: receive after end", c.name)
	}

	select {
	case e := <-c.ch:
		if e.IsEnd() {
			c.recvEnd = true
		}
		return e, nil
	case <-ctx.Done():
		return element.Element{}, ctx.Err()
	}
}

func (c *Channel) String() string {
	return c.name
}

var (
	_ Sender   = (*Channel)(nil)
	_ Receiver = (*Channel)(nil)
)
