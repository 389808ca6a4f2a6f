package stage

import (
	"pipesort.dev/pipesort/faults"
	"pipesort.dev/pipesort/util/ds"
)

// Side names one of the two queues of a stage.
type Side int

const (
	Top Side = iota
	Bottom
)

func (s Side) String() string {
	if s == Top {
		return "top"
	}
	return "bottom"
}

// DualQueue buffers received but unmerged values. Arrivals are routed in
// blocks of quota: the first block to Top, the next to Bottom, and so on.
// Each block is one ascending run produced by the previous stage.
type DualQueue struct {
	quota   int
	queues  [2]*ds.Deque[byte]
	target  Side // queue receiving the current block
	inBlock int  // values routed into the current block
	prev    byte // last value routed into the current block
}

func NewDualQueue(quota int) *DualQueue {
	return &DualQueue{
		quota: quota,
		queues: [2]*ds.Deque[byte]{
			ds.NewDeque[byte](quota),
			ds.NewDeque[byte](quota),
		},
	}
}

// Route enqueues v on the side owning the current block. A value smaller than
// its predecessor in the same block means the upstream run was not sorted.
func (q *DualQueue) Route(v byte) error {
	if q.inBlock == q.quota {
		q.inBlock = 0
		q.target = 1 - q.target
	}
	if q.inBlock > 0 && v < q.prev {
		return faults.Protocol("value %d follows %d inside a %s run", v, q.prev, q.target)
	}

	q.queues[q.target].Push(v)
	q.prev = v
	q.inBlock++
	return nil
}

func (q *DualQueue) Len(side Side) int {
	return q.queues[side].Len()
}

func (q *DualQueue) IsEmpty() bool {
	return q.queues[Top].IsEmpty() && q.queues[Bottom].IsEmpty()
}

// Head returns the oldest value on side.
func (q *DualQueue) Head(side Side) (byte, bool) {
	return q.queues[side].Peek()
}

// Pop removes the oldest value on side.
func (q *DualQueue) Pop(side Side) (byte, bool) {
	return q.queues[side].Pop()
}
