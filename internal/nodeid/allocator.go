package nodeid

// Allocator issues IDs from a per-tag high-water mark. Numbers are never
// reused, even after the node holding them is removed.
//
// An Allocator is owned by exactly one graph and is not safe for concurrent
// use.
type Allocator struct {
	last map[string]int // tag → highest sequence issued or committed
}

// NewAllocator returns an allocator with every counter at zero.
func NewAllocator() *Allocator {
	return &Allocator{last: make(map[string]int)}
}

// Allocate consumes and returns the next ID for tag, starting at 1.
func (a *Allocator) Allocate(tag string) ID {
	a.last[tag]++
	return New(tag, a.last[tag])
}

// PeekNext returns the sequence number Allocate would use next for tag.
func (a *Allocator) PeekNext(tag string) int {
	return a.last[tag] + 1
}

// Advance raises the high-water mark for tag to at least seq. It is used when
// a node is committed under an explicit ID so that Allocate can never hand
// that ID out again. Counters never move backwards.
func (a *Allocator) Advance(tag string, seq int) {
	if seq > a.last[tag] {
		a.last[tag] = seq
	}
}
