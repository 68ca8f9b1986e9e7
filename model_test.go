package tstdb_test

import (
	"math/rand/v2"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/tstdb"
	"github.com/calvinalkan/tstdb/internal/fs"
)

// model is a deliberately simple in-memory state model of Store's
// observable key set. It favors clarity over performance and makes no
// attempt to mirror the on-disk log format.
type model struct {
	keys map[string]struct{}
}

func newModel() *model {
	return &model{keys: make(map[string]struct{})}
}

func (m *model) put(key string) bool {
	_, existed := m.keys[key]
	m.keys[key] = struct{}{}

	return !existed
}

func (m *model) remove(key string) bool {
	_, existed := m.keys[key]
	delete(m.keys, key)

	return existed
}

func (m *model) sortedKeys() []string {
	out := make([]string, 0, len(m.keys))
	for k := range m.keys {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// Test_Store_Matches_Model_Across_Random_Operations drives a random sequence
// of put/remove/reopen operations against both a real Store and the map
// model, asserting the observable key set matches after every step.
func Test_Store_Matches_Model_Across_Random_Operations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "model.log")
	fsys := fs.NewReal()

	db, err := tstdb.Open(fsys, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = db.Close() }()

	m := newModel()
	alphabet := []string{"apple", "apples", "app", "banana", "bananas", "band", "a", "ab", "abc", "z"}

	rng := rand.New(rand.NewPCG(1, 2))

	const steps = 500

	for i := 0; i < steps; i++ {
		key := alphabet[rng.IntN(len(alphabet))]

		if rng.IntN(4) == 0 {
			wantExisted := m.remove(key)

			gotExisted, err := db.Remove([]byte(key))
			if err != nil {
				t.Fatalf("step %d: Remove(%q): %v", i, key, err)
			}

			if gotExisted != wantExisted {
				t.Fatalf("step %d: Remove(%q) = %v, model says %v", i, key, gotExisted, wantExisted)
			}

			continue
		}

		wantInserted := m.put(key)

		gotInserted, err := db.Put([]byte(key))
		if err != nil {
			t.Fatalf("step %d: Put(%q): %v", i, key, err)
		}

		if gotInserted != wantInserted {
			t.Fatalf("step %d: Put(%q) = %v, model says %v", i, key, gotInserted, wantInserted)
		}

		if i%97 == 0 {
			if err := db.Close(); err != nil {
				t.Fatalf("step %d: Close: %v", i, err)
			}

			reopened, err := tstdb.Open(fsys, path)
			if err != nil {
				t.Fatalf("step %d: reopen: %v", i, err)
			}

			db = reopened
		}
	}

	var gotKeys []string

	if err := db.Keys(func(key []byte) error {
		gotKeys = append(gotKeys, string(key))

		return nil
	}, false); err != nil {
		t.Fatalf("Keys: %v", err)
	}

	sort.Strings(gotKeys)

	if diff := cmp.Diff(m.sortedKeys(), gotKeys); diff != "" {
		t.Fatalf("key set mismatch (-model +store):\n%s", diff)
	}

	for key := range m.keys {
		if !db.Contains([]byte(key)) {
			t.Fatalf("Contains(%q) = false, model has it", key)
		}
	}
}
