package ds

// Deque is a FIFO queue on a growable ring buffer. Push appends at the back
// and Pop removes from the front, both in amortized O(1).
type Deque[T any] struct {
	data []T
	head int // index of the front element
	size int
}

func NewDeque[T any](cap int) *Deque[T] {
	if cap < 1 {
		cap = 1
	}
	return &Deque[T]{data: make([]T, cap)}
}

func (d *Deque[T]) Push(v T) {
	if d.size == len(d.data) {
		d.grow()
	}
	d.data[(d.head+d.size)%len(d.data)] = v
	d.size++
}

// Pop removes and returns the front element.
func (d *Deque[T]) Pop() (T, bool) {
	var zero T
	if d.size == 0 {
		return zero, false
	}
	v := d.data[d.head]
	d.data[d.head] = zero
	d.head = (d.head + 1) % len(d.data)
	d.size--
	return v, true
}

// Peek returns the front element without removing it.
func (d *Deque[T]) Peek() (T, bool) {
	if d.size == 0 {
		var zero T
		return zero, false
	}
	return d.data[d.head], true
}

func (d *Deque[T]) Len() int {
	return d.size
}

func (d *Deque[T]) IsEmpty() bool {
	return d.size == 0
}

func (d *Deque[T]) grow() {
	next := make([]T, len(d.data)*2)
	for i := 0; i < d.size; i++ {
		next[i] = d.data[(d.head+i)%len(d.data)]
	}
	d.data = next
	d.head = 0
}
