package stage

import "pipesort.dev/pipesort/faults"

// pick chooses the queue holding the smallest eligible value of the round.
//
// The round's share of each queue is an ascending run, so the smallest
// eligible value of a queue is its head. Before the upstream ended, a queue
// that still owes values but has none buffered blocks the pick: its next
// arrival may be smaller than anything eligible now.
func (r *round) pick(q *DualQueue, ended bool) (Side, bool) {
	var (
		best  Side
		found bool
		low   byte
	)
	for _, side := range []Side{Top, Bottom} {
		if r.eligible(q, side) == 0 {
			if !ended && r.owes(side) {
				return 0, false
			}
			continue
		}
		head, _ := q.Head(side)
		if !found || head < low {
			best, low, found = side, head, true
		}
	}
	return best, found
}

// take removes the head of side and charges it to the round.
func (r *round) take(q *DualQueue, side Side) (byte, error) {
	if !r.owes(side) {
		return 0, faults.Protocol("%s queue already sent its quota of %d", side, r.quota)
	}
	v, ok := q.Pop(side)
	if !ok {
		return 0, faults.Protocol("%s queue is empty", side)
	}
	r.sent[side]++
	return v, nil
}
