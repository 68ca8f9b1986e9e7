// Package tst implements the array-backed ternary search tree core:
// insertion, tombstoning, exact lookup, and the balance metric. It owns no
// I/O — durability is layered on top by the caller.
package tst

import (
	"github.com/calvinalkan/tstdb/internal/arena"
)

// MaxKeyLen is the hard cap on key length in bytes, per spec.md §3.
const MaxKeyLen = 512

// dir is the direction taken from a parent node while walking: Low, Equal,
// or High.
type dir int8

const (
	dirLow   dir = -1
	dirEqual dir = 0
	dirHigh  dir = 1
)

// Tree is the ternary search tree core. The zero value is not usable; use
// New.
type Tree struct {
	arena     *arena.Arena
	keyCount  uint64
	separator byte
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{arena: arena.New()}
}

// Arena exposes the backing node storage, for the enumerator and dump.
func (t *Tree) Arena() *arena.Arena {
	return t.arena
}

// KeyCount returns the number of live (non-tombstoned) keys.
func (t *Tree) KeyCount() uint64 {
	return t.keyCount
}

// NodeCount returns the arena's node_count (see arena.Arena.Count).
func (t *Tree) NodeCount() uint32 {
	return t.arena.Count()
}

// Clear empties the tree: resets the arena to just the reserved root and
// zeroes the key count. The log file handling around this lives in the
// top-level Store, not here.
func (t *Tree) Clear() {
	t.arena.Reset()
	t.keyCount = 0
}

// Contains reports whether key is live in the tree.
func (t *Tree) Contains(key []byte) bool {
	if len(key) == 0 {
		return false
	}

	cur := arena.Root
	i := 0

	for {
		if cur == arena.Nil {
			return false
		}

		n := t.arena.Node(cur)

		switch {
		case key[i] < n.Splitchar:
			cur = n.Low
		case key[i] > n.Splitchar:
			cur = n.High
		default:
			if i == len(key)-1 {
				return n.Flag
			}

			cur = n.Equal
			i++
		}
	}
}

// Put inserts key. It returns true iff the set changed.
func (t *Tree) Put(key []byte) bool {
	return t.mutate(key, false)
}

// Remove tombstones key. It returns true iff the set changed.
func (t *Tree) Remove(key []byte) bool {
	return t.mutate(key, true)
}

// mutate implements spec.md §4.3: a single routine parameterized by
// clearMode (true = tombstone, false = insert).
func (t *Tree) mutate(key []byte, clearMode bool) bool {
	if len(key) == 0 || len(key) > MaxKeyLen {
		return false
	}

	// A totally virgin tree (never inserted into, including after Clear)
	// has node_count == 1: only the reserved root slot exists, and its
	// content is the Go zero value rather than a real node. Walking the
	// generic compare-and-splice logic against that zero value would, on
	// the very first insert, reserve a fresh node that collides with the
	// root's own index (both are 1). So the first-ever insert is special
	// cased: claim the root slot via one ReserveOne call and build the
	// whole key as a fresh equal-chain starting there.
	if t.arena.Count() == 1 {
		if clearMode {
			return false
		}

		root := t.arena.ReserveOne()
		t.buildChain(root, key)
		t.keyCount++

		return true
	}

	var (
		prev    uint32 = arena.Nil
		lastDir dir
		cur     uint32 = arena.Root
		i       int
	)

	for cur != arena.Nil {
		n := t.arena.Node(cur)

		switch {
		case key[i] < n.Splitchar:
			prev, lastDir, cur = cur, dirLow, n.Low
		case key[i] > n.Splitchar:
			prev, lastDir, cur = cur, dirHigh, n.High
		default:
			if i == len(key)-1 {
				return t.applyAtTerminal(cur, n, clearMode)
			}

			prev, lastDir, cur = cur, dirEqual, n.Equal
			i++
		}
	}

	// Walk reached the sentinel before consuming the key.
	if clearMode {
		return false
	}

	newIdx := t.arena.ReserveOne()
	linkChild(t.arena, prev, lastDir, newIdx)
	t.buildChain(newIdx, key[i:])
	t.keyCount++

	return true
}

// applyAtTerminal flips flag at an existing path's terminating node.
func (t *Tree) applyAtTerminal(idx uint32, n arena.Node, clearMode bool) bool {
	if clearMode {
		if !n.Flag {
			return false
		}

		n.Flag = false
		t.arena.Set(idx, n)
		t.keyCount--

		return true
	}

	if n.Flag {
		return false
	}

	n.Flag = true
	t.arena.Set(idx, n)
	t.keyCount++

	return true
}

// buildChain writes bytes as a chain of equal-linked nodes starting at the
// already-reserved index startIdx. startIdx itself holds bytes[0]; one
// fresh node is reserved per subsequent byte. The final node gets Flag=true
// and Equal=0.
func (t *Tree) buildChain(startIdx uint32, bytes []byte) {
	idx := startIdx

	for pos, b := range bytes {
		last := pos == len(bytes)-1

		var next uint32
		if !last {
			next = t.arena.ReserveOne()
		}

		t.arena.Set(idx, arena.Node{Splitchar: b, Flag: last, Equal: next})

		idx = next
	}
}

// linkChild sets parent's child pointer in direction d to child. parent
// must not be arena.Nil.
func linkChild(a *arena.Arena, parent uint32, d dir, child uint32) {
	n := a.Node(parent)

	switch d {
	case dirLow:
		n.Low = child
	case dirHigh:
		n.High = child
	case dirEqual:
		n.Equal = child
	}

	a.Set(parent, n)
}
