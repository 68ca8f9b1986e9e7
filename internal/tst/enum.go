package tst

import (
	"errors"
	"sync"

	"github.com/calvinalkan/tstdb/internal/arena"
)

// Sink receives one reconstructed key per call. The slice is a view into a
// pooled scratch buffer and is only valid for the duration of the call; a
// sink that wants to retain the bytes must copy them.
//
// A sink may call read-only Tree methods (Contains, Search, Keys) on the
// same Tree. It must not perform structural mutations; flipping a key's
// live flag via Remove during traversal is permitted (see spec.md §4.4's
// sink contract).
type Sink func(key []byte) error

// ErrStop may be returned by a Sink to end a traversal early without
// propagating a real error to the caller. Keys and Search return nil when
// the sink stops this way.
var ErrStop = errors.New("tst: stop traversal")

const defaultSeparator = '/'

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, MaxKeyLen)
		return &b
	},
}

func getBuf() *[]byte {
	buf, _ := bufPool.Get().(*[]byte)
	*buf = (*buf)[:0]

	return buf
}

func putBuf(buf *[]byte) {
	bufPool.Put(buf)
}

// collapseStop turns ErrStop, or any error that wraps it, into nil; every
// other error passes through unchanged.
func collapseStop(err error) error {
	if errors.Is(err, ErrStop) {
		return nil
	}

	return err
}

// Separator returns the current segment delimiter used by segment
// projection in Search. Defaults to '/'.
func (t *Tree) Separator() byte {
	if t.separator == 0 {
		return defaultSeparator
	}

	return t.separator
}

// SetSeparator changes the segment delimiter.
func (t *Tree) SetSeparator(b byte) {
	t.separator = b
}

// Keys performs an in-order traversal, emitting every live key in strictly
// ascending byte-lexicographic order (or descending, if desc is true).
func (t *Tree) Keys(sink Sink, desc bool) error {
	buf := getBuf()
	defer putBuf(buf)

	err := t.walkOrdered(*buf, arena.Root, desc, sink)

	return collapseStop(err)
}

// walkOrdered implements spec.md §4.4's ascending traversal (and its
// mirror for descending): visit low, append splitchar, visit equal, emit
// if terminal, visit high — with low/high swapped for desc.
func (t *Tree) walkOrdered(buf []byte, idx uint32, desc bool, sink Sink) error {
	if idx == arena.Nil {
		return nil
	}

	n := t.arena.Node(idx)

	firstChild, lastChild := n.Low, n.High
	if desc {
		firstChild, lastChild = n.High, n.Low
	}

	if err := t.walkOrdered(buf, firstChild, desc, sink); err != nil {
		return err
	}

	next := append(buf, n.Splitchar) //nolint:gocritic // intentional scratch-buffer reuse

	if err := t.walkOrdered(next, n.Equal, desc, sink); err != nil {
		return err
	}

	if n.Flag {
		if err := sink(next); err != nil {
			return err
		}
	}

	return t.walkOrdered(buf, lastChild, desc, sink)
}

// SearchOptions configures a wildcard Search call.
type SearchOptions struct {
	// Segment, when > 0, projects each match onto its 1-based segment
	// (delimited by Tree.Separator) instead of emitting the full key.
	// Keys without that many segments are skipped.
	Segment int
}

// Search performs a wildcard traversal over pattern, per spec.md §4.4: the
// byte '*' (0x2A) matches any run of zero or more bytes in the position it
// occupies. Matches are emitted in ascending lexicographic order; a
// pattern with more than one '*' may emit the same key multiple times,
// once per matching alignment — this is documented behavior, not a bug.
//
// An empty pattern is a no-op.
func (t *Tree) Search(pattern []byte, sink Sink, opts SearchOptions) error {
	if len(pattern) == 0 {
		return nil
	}

	buf := getBuf()
	defer putBuf(buf)

	wrapped := sink
	if opts.Segment > 0 {
		sep := t.Separator()
		segment := opts.Segment

		wrapped = func(key []byte) error {
			sub, ok := nthSegment(key, sep, segment)
			if !ok {
				return nil
			}

			return sink(sub)
		}
	}

	err := t.walkWildcard(*buf, arena.Root, pattern, 0, wrapped)

	return collapseStop(err)
}

const wildcardByte = '*'

// walkWildcard implements spec.md §4.4's wildcard traversal exactly.
func (t *Tree) walkWildcard(buf []byte, idx uint32, pattern []byte, i int, sink Sink) error {
	if idx == arena.Nil {
		return nil
	}

	n := t.arena.Node(idx)
	c := pattern[i]
	wild := c == wildcardByte
	d := int(c) - int(n.Splitchar)

	if d < 0 || wild {
		if err := t.walkWildcard(buf, n.Low, pattern, i, sink); err != nil {
			return err
		}
	}

	if d == 0 || wild {
		next := append(buf, n.Splitchar) //nolint:gocritic // intentional scratch-buffer reuse

		if i != len(pattern)-1 {
			if err := t.walkWildcard(next, n.Equal, pattern, i+1, sink); err != nil {
				return err
			}
		} else if n.Flag {
			if err := sink(next); err != nil {
				return err
			}
		}

		if wild {
			// The wildcard stays alive across the next byte: the buffer
			// grows but the pattern index does not advance.
			if err := t.walkWildcard(next, n.Equal, pattern, i, sink); err != nil {
				return err
			}
		}
	}

	if d > 0 || wild {
		if err := t.walkWildcard(buf, n.High, pattern, i, sink); err != nil {
			return err
		}
	}

	return nil
}

// nthSegment returns the n-th (1-based) maximal run of bytes not equal to
// sep within key, ignoring leading/trailing/consecutive separators. Returns
// false if key has fewer than n such runs.
func nthSegment(key []byte, sep byte, n int) ([]byte, bool) {
	count := 0
	i := 0

	for i < len(key) {
		if key[i] == sep {
			i++
			continue
		}

		start := i
		for i < len(key) && key[i] != sep {
			i++
		}

		count++
		if count == n {
			return key[start:i], true
		}
	}

	return nil, false
}
