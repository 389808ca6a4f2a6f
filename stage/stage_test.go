package stage

import (
	"context"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pipesort.dev/pipesort/element"
	"pipesort.dev/pipesort/faults"
)

// feed replays elements to a stage without blocking.
type feed struct {
	elements []element.Element
}

func feedOf(values []byte) *feed {
	f := &feed{}
	for _, v := range values {
		f.elements = append(f.elements, element.Data(v))
	}
	f.elements = append(f.elements, element.End())
	return f
}

func (f *feed) Recv(ctx context.Context) (element.Element, error) {
	if len(f.elements) == 0 {
		return element.Element{}, faults.Protocol("feed exhausted")
	}
	e := f.elements[0]
	f.elements = f.elements[1:]
	return e, nil
}

type collect struct {
	values []byte
	ends   int
}

func (c *collect) Send(ctx context.Context, e element.Element) error {
	if e.IsEnd() {
		c.ends++
		return nil
	}
	c.values = append(c.values, e.Value())
	return nil
}

// sortedRuns returns count random values grouped into ascending runs of
// length runLen, the shape a stage receives from its upstream neighbour.
func sortedRuns(rng *rand.Rand, count, runLen int) []byte {
	values := make([]byte, count)
	for i := range values {
		values[i] = byte(rng.Intn(256))
	}
	for i := 0; i < count; i += runLen {
		slices.Sort(values[i:min(i+runLen, count)])
	}
	return values
}

func TestQuota(t *testing.T) {
	assert.Equal(t, 1, Quota(1))
	assert.Equal(t, 2, Quota(2))
	assert.Equal(t, 1024, Quota(11))
}

func TestDualQueue_RoutesAlternatingBlocks(t *testing.T) {
	q := NewDualQueue(2)
	for _, v := range []byte{1, 2, 3, 4, 5} {
		require.NoError(t, q.Route(v))
	}
	assert.Equal(t, 3, q.Len(Top))
	assert.Equal(t, 2, q.Len(Bottom))

	var top, bottom []byte
	for v, ok := q.Pop(Top); ok; v, ok = q.Pop(Top) {
		top = append(top, v)
	}
	for v, ok := q.Pop(Bottom); ok; v, ok = q.Pop(Bottom) {
		bottom = append(bottom, v)
	}
	assert.Equal(t, []byte{1, 2, 5}, top)
	assert.Equal(t, []byte{3, 4}, bottom)
	assert.True(t, q.IsEmpty())
}

func TestDualQueue_RejectsDescendingValueInsideRun(t *testing.T) {
	q := NewDualQueue(2)
	require.NoError(t, q.Route(3))
	assert.ErrorIs(t, q.Route(1), faults.ErrProtocol)

	q = NewDualQueue(1)
	require.NoError(t, q.Route(3))
	assert.NoError(t, q.Route(1), "a new run may start lower")
}

func TestScheduler_NeedsFullTopAndOneBottom(t *testing.T) {
	q := NewDualQueue(2)
	r := round{quota: 2}

	q.Route(1)
	assert.False(t, r.ready(q, false))
	q.Route(2)
	assert.False(t, r.ready(q, false), "bottom is still empty")
	q.Route(0)
	assert.True(t, r.ready(q, false))

	tail := NewDualQueue(2)
	tail.Route(7)
	assert.False(t, r.ready(NewDualQueue(2), true), "nothing left to merge")
	assert.True(t, r.ready(tail, true), "any buffered value flushes after the end")
}

func TestPick_WaitsForOwedBottomValue(t *testing.T) {
	q := NewDualQueue(2)
	for _, v := range []byte{1, 5, 2} {
		require.NoError(t, q.Route(v))
	}
	r := round{quota: 2, active: true}

	side, ok := r.pick(q, false)
	require.True(t, ok)
	assert.Equal(t, Top, side)
	_, err := r.take(q, side)
	require.NoError(t, err)

	side, ok = r.pick(q, false)
	require.True(t, ok)
	assert.Equal(t, Bottom, side)
	_, err = r.take(q, side)
	require.NoError(t, err)

	// Bottom owes one more value that has not arrived; 5 must wait for it.
	_, ok = r.pick(q, false)
	assert.False(t, ok)

	// Once the upstream ended nothing else is coming.
	side, ok = r.pick(q, true)
	require.True(t, ok)
	assert.Equal(t, Top, side)
}

func TestTake_RefusesBeyondQuota(t *testing.T) {
	q := NewDualQueue(1)
	q.Route(1)
	q.Route(2)
	q.Route(3)
	r := round{quota: 1, active: true}

	_, err := r.take(q, Top)
	require.NoError(t, err)
	_, err = r.take(q, Top)
	assert.ErrorIs(t, err, faults.ErrProtocol)
}

func TestStage_MergesPairsOfRuns(t *testing.T) {
	out := &collect{}
	s := New(Params{Rank: 2, In: feedOf([]byte{2, 4, 1, 7, 3, 3, 0, 9}), Out: out})

	require.NoError(t, s.Run(t.Context()))
	assert.Equal(t, []byte{1, 2, 4, 7, 0, 3, 3, 9}, out.values)
	assert.Equal(t, 1, out.ends)
	assert.Equal(t, 2, s.Rounds())
	assert.Equal(t, Terminated, s.State())
}

func TestStage_EmptyInputForwardsOnlyEnd(t *testing.T) {
	out := &collect{}
	s := New(Params{Rank: 3, In: feedOf(nil), Out: out})

	require.NoError(t, s.Run(t.Context()))
	assert.Empty(t, out.values)
	assert.Equal(t, 1, out.ends)
	assert.Equal(t, 0, s.Rounds())
}

func TestStage_FlushesShortTail(t *testing.T) {
	out := &collect{}
	s := New(Params{Rank: 2, In: feedOf([]byte{3, 9, 5}), Out: out})

	require.NoError(t, s.Run(t.Context()))
	assert.Equal(t, []byte{3, 5, 9}, out.values)
	assert.Equal(t, 1, out.ends)
}

func TestStage_UnsortedRunIsProtocolViolation(t *testing.T) {
	s := New(Params{Rank: 2, In: feedOf([]byte{4, 2, 1, 7}), Out: &collect{}})

	err := s.Run(t.Context())
	assert.ErrorIs(t, err, faults.ErrProtocol)
}

func TestStage_QuotaInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for rank := 1; rank <= 5; rank++ {
		quota := Quota(rank)
		for _, count := range []int{0, 1, quota, 2 * quota, 2*quota + 1, 8*quota - 1, 8 * quota} {
			input := sortedRuns(rng, count, quota)
			out := &collect{}
			s := New(Params{Rank: rank, In: feedOf(input), Out: out})

			for s.State() != Terminated {
				require.NoError(t, s.step(t.Context()))
				require.LessOrEqual(t, s.round.sent[Top], quota, "rank %d count %d", rank, count)
				require.LessOrEqual(t, s.round.sent[Bottom], quota, "rank %d count %d", rank, count)
			}

			assert.Len(t, out.values, count, "rank %d conserves values", rank)
			assert.ElementsMatch(t, input, out.values)
			for i := 0; i < count; i += 2 * quota {
				run := out.values[i:min(i+2*quota, count)]
				assert.True(t, slices.IsSorted(run), "rank %d emits runs of %d: %v", rank, 2*quota, run)
			}
		}
	}
}

func TestStage_StateTransitions(t *testing.T) {
	in := feedOf([]byte{5, 1})
	s := New(Params{Rank: 1, In: in, Out: &collect{}})
	assert.Equal(t, Receiving, s.State())

	require.NoError(t, s.step(t.Context())) // receives 5 into top
	assert.Equal(t, Receiving, s.State())

	require.NoError(t, s.step(t.Context())) // receives 1, round starts, forwards 1
	assert.Equal(t, RoundActive, s.State())

	require.NoError(t, s.step(t.Context())) // receives end, forwards 5
	assert.Equal(t, Draining, s.State())

	require.NoError(t, s.step(t.Context())) // forwards end
	assert.Equal(t, Terminated, s.State())
}

func TestNew_RejectsRankZero(t *testing.T) {
	assert.Panics(t, func() { New(Params{Rank: 0}) })
}
