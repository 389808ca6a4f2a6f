// Package links connects neighbouring stages. A link carries elements in FIFO
// order and every send is a synchronous handoff: Send returns only once the
// receiver has accepted the element. That blocking is the only backpressure in
// the pipeline.
package links

import (
	"context"
	"strconv"

	"pipesort.dev/pipesort/element"
)

type Sender interface {
	Send(ctx context.Context, e element.Element) error
}

type Receiver interface {
	Recv(ctx context.Context) (element.Element, error)
}

// Name returns the conventional name of the link between two ranks, used in
// logs and metrics.
func Name(from, to int) string {
	return strconv.Itoa(from) + "->" + strconv.Itoa(to)
}
