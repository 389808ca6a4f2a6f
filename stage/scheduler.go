package stage

// minBottomToStart is how many values Bottom must hold, besides a full Top
// block, before a round may start. One is enough to keep the merge live
// without waiting on a Bottom run that may never fill.
const minBottomToStart = 1

// round tracks how much of the current batch was taken from each queue.
type round struct {
	quota  int
	active bool
	sent   [2]int
}

// ready reports whether a new round can start. Once the upstream ended any
// buffered value is enough so the tail gets flushed.
func (r *round) ready(q *DualQueue, ended bool) bool {
	if ended {
		return !q.IsEmpty()
	}
	return q.Len(Top) >= r.quota && q.Len(Bottom) >= minBottomToStart
}

// eligible is how many values at the head of side belong to this round and
// are already buffered.
func (r *round) eligible(q *DualQueue, side Side) int {
	return min(q.Len(side), r.quota-r.sent[side])
}

// owes reports whether side has not yet delivered its full share.
func (r *round) owes(side Side) bool {
	return r.sent[side] < r.quota
}

// done reports whether the round is complete: both quotas met, or the
// upstream ended and nothing buffered belongs to this round anymore.
func (r *round) done(q *DualQueue, ended bool) bool {
	if !r.owes(Top) && !r.owes(Bottom) {
		return true
	}
	return ended && r.eligible(q, Top) == 0 && r.eligible(q, Bottom) == 0
}

func (r *round) start() {
	r.active = true
}

func (r *round) reset() {
	r.active = false
	r.sent = [2]int{}
}
