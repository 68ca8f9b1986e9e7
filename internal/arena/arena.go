// Package arena implements the node storage for the ternary search tree: a
// grow-only vector of fixed-size node records addressed by 32-bit index.
//
// Index 0 is the nil sentinel and must never be mutated after New. Index 1
// is the root and is reserved by New. The backing buffer never shrinks;
// growth doubles capacity and copies the live prefix into a fresh buffer, so
// no pointer into the arena may be retained across a call that can grow it —
// callers must re-resolve by index afterwards.
package arena

// Node is one record in the tree. Low, High, and Equal are indices into the
// owning Arena; 0 means "no child".
type Node struct {
	Low       uint32
	High      uint32
	Equal     uint32
	Splitchar byte
	Flag      bool
}

const (
	// initialCapacity is the node count the arena is born with.
	initialCapacity = 256

	// growthFactor is the multiplier applied to capacity on growth.
	growthFactor = 2
)

// Arena is a dense sequence of Nodes [0, Count) backed by a slice of size
// >= Count. Index 0 is the permanent zero sentinel; index 1 is the root.
type Arena struct {
	nodes []Node
	count uint32
}

// New returns an initialized Arena. The sentinel at index 0 is the Go zero
// value; index 1 is reserved for the root by setting Count to 1, so the
// first ever ReserveOne call lands on index 1.
func New() *Arena {
	a := &Arena{
		nodes: make([]Node, initialCapacity),
	}
	a.Reset()

	return a
}

// Reset truncates the arena back to just the reserved root slot, without
// shrinking the backing buffer. Used by Clear and Optimize.
func (a *Arena) Reset() {
	a.nodes[0] = Node{}

	if len(a.nodes) > 1 {
		a.nodes[1] = Node{}
	}

	a.count = 1
}

// Count returns node_count: the number of node slots in use, including the
// sentinel at index 0. An empty arena counts 1; the root at index 1 is
// counted once the first ReserveOne call has claimed it. Valid node indices
// are [1, Count()). This is the node_count convention
// documented in SPEC_FULL.md §9.3 and exercised by the dump/node-count
// literal scenarios in spec.md §8.
func (a *Arena) Count() uint32 {
	return a.count
}

// Capacity returns the current size of the backing buffer.
func (a *Arena) Capacity() uint32 {
	return uint32(len(a.nodes))
}

// Node returns the node at idx by value. idx 0 always yields the zero node.
func (a *Arena) Node(idx uint32) Node {
	return a.nodes[idx]
}

// Set overwrites the node at idx. Callers must never pass idx == 0.
func (a *Arena) Set(idx uint32, n Node) {
	a.nodes[idx] = n
}

// Root is a convenience accessor for index 1.
const Root uint32 = 1

// Nil is the sentinel index meaning "no child".
const Nil uint32 = 0

// ReserveOne allocates the next node slot, growing the backing buffer first
// if the arena is at capacity. It returns the freshly reserved index, which
// starts zeroed.
//
// Any Node value obtained before calling ReserveOne must be treated as
// invalidated afterwards — re-read it by index.
func (a *Arena) ReserveOne() uint32 {
	a.growIfNeeded()

	idx := a.count
	a.count++
	a.nodes[idx] = Node{}

	return idx
}

// growIfNeeded doubles the backing buffer when the next ReserveOne would
// land exactly on capacity. Growth bulk-copies the live prefix into a fresh
// buffer; it never shrinks.
func (a *Arena) growIfNeeded() {
	if a.count < uint32(len(a.nodes)) {
		return
	}

	next := make([]Node, len(a.nodes)*growthFactor)
	copy(next, a.nodes[:a.count])
	a.nodes = next
}
