// Package sortcheck verifies the output of a sort against its input: the
// output must be a non-decreasing permutation of the input.
package sortcheck

import (
	"errors"
	"fmt"

	"github.com/google/btree"
)

var (
	ErrNotConserved = errors.New("output is not a permutation of the input")
	ErrNotOrdered   = errors.New("output is not in ascending order")
)

type count struct {
	value byte
	n     int
}

// Tally is an ordered multiset of byte values.
type Tally struct {
	tree *btree.BTreeG[count]
	size int
}

func NewTally(values []byte) *Tally {
	t := &Tally{
		tree: btree.NewG(2, func(a, b count) bool {
			return a.value < b.value
		}),
	}
	for _, v := range values {
		t.Add(v)
	}
	return t
}

func (t *Tally) Add(v byte) {
	c, _ := t.tree.Get(count{value: v})
	c.value = v
	c.n++
	t.tree.ReplaceOrInsert(c)
	t.size++
}

// Count returns how many times v was added.
func (t *Tally) Count(v byte) int {
	c, _ := t.tree.Get(count{value: v})
	return c.n
}

func (t *Tally) Len() int {
	return t.size
}

// Sorted expands the tally into its values in ascending order.
func (t *Tally) Sorted() []byte {
	out := make([]byte, 0, t.size)
	t.tree.Ascend(func(c count) bool {
		for range c.n {
			out = append(out, c.value)
		}
		return true
	})
	return out
}

// Diff describes the first value whose count differs between t and other,
// or returns "" when both hold the same multiset.
func (t *Tally) Diff(other *Tally) string {
	var diff string
	against := func(b *Tally) btree.ItemIteratorG[count] {
		return func(c count) bool {
			if b.Count(c.value) != c.n {
				diff = fmt.Sprintf("value %d: %d in input, %d in output", c.value, t.Count(c.value), other.Count(c.value))
				return false
			}
			return true
		}
	}
	t.tree.Ascend(against(other))
	if diff == "" {
		other.tree.Ascend(against(t))
	}
	return diff
}

// Verify checks that output is a non-decreasing permutation of input.
func Verify(input, output []byte) error {
	if diff := NewTally(input).Diff(NewTally(output)); diff != "" {
		return fmt.Errorf("%w: %s", ErrNotConserved, diff)
	}
	for i := 1; i < len(output); i++ {
		if output[i] < output[i-1] {
			return fmt.Errorf("%w: %d follows %d at position %d", ErrNotOrdered, output[i], output[i-1], i)
		}
	}
	return nil
}
