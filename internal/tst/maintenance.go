package tst

import "fmt"

// EntropySource supplies random numbers for the shuffle-rebuild. Acquiring
// entropy (a seed, a CSPRNG, a deterministic test source) is the host's
// concern per spec.md §1/§4.6 — the core only ever consumes one.
type EntropySource interface {
	// Uint64 returns a uniformly distributed pseudo-random value.
	Uint64() uint64
}

// Optimize implements spec.md §4.6: extract all live keys in ascending
// order, Fisher-Yates shuffle them using entropy, reset the tree, and
// re-insert in shuffled order. The resulting node_count is unchanged
// (insertion order affects tree shape, not the node count a given key set
// produces).
//
// It returns the keys in the exact order they were re-inserted. A caller
// persisting the rebuild (Store.Optimize) must replay that same order into
// its fresh log — re-deriving an order afterward via Keys would hand back
// ascending order instead, undoing the rebalance on the next replay.
//
// Log rotation around the rebuild (persistent mode) is the caller's job —
// Tree has no I/O.
func (t *Tree) Optimize(entropy EntropySource) ([][]byte, error) {
	keys, err := t.extractAll()
	if err != nil {
		return nil, err
	}

	shuffle(keys, entropy)

	t.Clear()

	for _, k := range keys {
		t.Put(k)
	}

	return keys, nil
}

// extractAll collects every live key via ascending traversal, copying each
// one out of the scratch buffer since Keys' sink view is transient.
func (t *Tree) extractAll() ([][]byte, error) {
	keys := make([][]byte, 0, t.keyCount)

	err := t.Keys(func(key []byte) error {
		cp := make([]byte, len(key))
		copy(cp, key)
		keys = append(keys, cp)

		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// shuffle performs an in-place Fisher-Yates shuffle driven by entropy.
func shuffle(keys [][]byte, entropy EntropySource) {
	for i := len(keys) - 1; i > 0; i-- {
		j := int(entropy.Uint64() % uint64(i+1))
		keys[i], keys[j] = keys[j], keys[i]
	}
}

// Dump writes a diagnostic listing of every reserved node to sink, one
// line per node, in raw arena index order. This backs the public dump
// operation; it is a one-shot text listing, not the interactive pager
// that spec.md §1 places out of scope.
func (t *Tree) Dump(sink func(line string) error) error {
	count := t.arena.Count()
	for idx := uint32(1); idx < count; idx++ {
		n := t.arena.Node(idx)

		line := fmt.Sprintf(
			"node %d: splitchar=%q flag=%t low=%d equal=%d high=%d",
			idx, n.Splitchar, n.Flag, n.Low, n.Equal, n.High,
		)

		if err := sink(line); err != nil {
			return err
		}
	}

	return nil
}
