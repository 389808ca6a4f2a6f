// Package queues has helpers shared by the queue types in util/ds.
package queues

import "iter"

type popper[T any] interface {
	Pop() (T, bool)
}

// Drain pops every element from the front of queue and returns them in order.
func Drain[T any, Q popper[T]](queue Q) []T {
	var result []T
	for val := range Consume[T](queue) {
		result = append(result, val)
	}
	return result
}

// Consume yields elements popped from the front of queue until it is empty
// or the caller stops iterating. Stopping early leaves the rest in place.
func Consume[T any, Q popper[T]](queue Q) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			val, ok := queue.Pop()
			if !ok || !yield(val) {
				return
			}
		}
	}
}
