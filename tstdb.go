// Package tstdb is an embeddable, persistent key-set store backed by an
// array-based ternary search tree. A Store owns an in-memory tree plus an
// append-only log that replays on Open to rebuild it.
package tstdb

import (
	"errors"
	"fmt"
	"os"

	"github.com/calvinalkan/tstdb/internal/fs"
	"github.com/calvinalkan/tstdb/internal/tst"
	"github.com/calvinalkan/tstdb/internal/walog"
)

// Sentinel errors surfaced at Open time. Matched with errors.Is.
var (
	// ErrCannotOpen reports that the host file layer refused to open or
	// create the database file.
	ErrCannotOpen = walog.ErrCannotOpen

	// ErrNotADatabase reports a header mismatch on an existing file.
	ErrNotADatabase = walog.ErrNotADatabase

	// ErrCorrupt reports structural log damage beyond a recoverable
	// trailing truncation.
	ErrCorrupt = walog.ErrCorrupt
)

// ErrWriteInvalid is returned by every mutating call once a prior
// log-write failure has invalidated the handle for further writes. Reads
// keep working against the in-memory tree. See DESIGN.md Open Question 2.
var ErrWriteInvalid = errors.New("tstdb: handle invalidated by a prior write failure")

// Store is a persistent key set. The zero value is not usable; use Open.
type Store struct {
	tree    *tst.Tree
	log     *walog.Log
	fsys    fs.FS
	path    string
	invalid error
}

// Open opens (creating if absent) the database at path, replaying its log
// into a fresh in-memory tree. Replay suppresses logging: the log writer
// only starts accepting Append calls once Open returns, so replay never
// doubles the log.
//
// Per DESIGN.md Open Question 1, a `<path>.tmp` left over from a crash
// mid-Optimize is only consulted when the primary is missing or fails
// header validation; if the primary opens cleanly, the stale `.tmp` is
// left alone.
func Open(fsys fs.FS, path string) (*Store, error) {
	tree := tst.New()

	replayInto := func(t *tst.Tree) walog.Apply {
		return func(rec walog.Record) error {
			if rec.Tombstone {
				t.Remove(rec.Key)
			} else {
				t.Put(rec.Key)
			}

			return nil
		}
	}

	tmpPath := path + ".tmp"

	// A crash mid-rotation can leave only the .tmp behind; restore it
	// before walog.Open would create an empty primary in its place.
	if exists, existsErr := fsys.Exists(path); existsErr == nil && !exists {
		if tmpExists, tmpErr := fsys.Exists(tmpPath); tmpErr == nil && tmpExists {
			_ = fsys.Rename(tmpPath, path)
		}
	}

	lg, err := walog.Open(fsys, path, tst.MaxKeyLen, replayInto(tree))
	if err != nil && isRecoverableByTmp(err) {
		if exists, existsErr := fsys.Exists(tmpPath); existsErr == nil && exists {
			tree = tst.New()

			if restoreErr := fsys.Rename(tmpPath, path); restoreErr == nil {
				lg, err = walog.Open(fsys, path, tst.MaxKeyLen, replayInto(tree))
			}
		}
	}

	if err != nil {
		return nil, err
	}

	return &Store{tree: tree, log: lg, fsys: fsys, path: path}, nil
}

// isRecoverableByTmp reports whether a failed primary open is the kind of
// failure a surviving `.tmp` from a crashed rotation could resolve: the
// primary missing its header entirely, or outright unopenable. A corrupt
// (but header-valid) primary is never overridden by `.tmp` — that failure
// is reported as-is.
func isRecoverableByTmp(err error) bool {
	return errors.Is(err, walog.ErrNotADatabase) || errors.Is(err, walog.ErrCannotOpen)
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.log.Close()
}

// Contains reports whether key is live.
func (s *Store) Contains(key []byte) bool {
	return s.tree.Contains(key)
}

// Put inserts key, appending an insertion record to the log. Returns
// (false, nil) if key was already present (no change, no log record). A
// non-nil error means the in-memory tree may have changed but the log
// record did not make it to disk; the handle is now write-invalid (see
// ErrWriteInvalid).
func (s *Store) Put(key []byte) (bool, error) {
	if err := s.writeGuard(); err != nil {
		return false, err
	}

	if !s.tree.Put(key) {
		return false, nil
	}

	if err := s.log.AppendInsert(key); err != nil {
		return true, fmt.Errorf("tstdb: put %q: %w", key, err)
	}

	return true, nil
}

// Remove tombstones key, appending a tombstone record to the log.
func (s *Store) Remove(key []byte) (bool, error) {
	if err := s.writeGuard(); err != nil {
		return false, err
	}

	if !s.tree.Remove(key) {
		return false, nil
	}

	if err := s.log.AppendTombstone(key); err != nil {
		return true, fmt.Errorf("tstdb: remove %q: %w", key, err)
	}

	return true, nil
}

// Search performs a wildcard search; see tst.Tree.Search.
func (s *Store) Search(pattern []byte, sink tst.Sink, opts tst.SearchOptions) error {
	return s.tree.Search(pattern, sink, opts)
}

// Keys performs an ordered traversal; see tst.Tree.Keys.
func (s *Store) Keys(sink tst.Sink, desc bool) error {
	return s.tree.Keys(sink, desc)
}

// Clear empties the tree and, per spec.md §4.7, closes the log, deletes
// the file, and opens a fresh one with just the header written.
func (s *Store) Clear() error {
	if err := s.writeGuard(); err != nil {
		return err
	}

	s.tree.Clear()

	if err := s.log.Close(); err != nil {
		s.invalidate(fmt.Errorf("tstdb: close log before clear: %w", err))

		return s.invalid
	}

	if err := s.fsys.Remove(s.path); err != nil && !isNotExist(err) {
		s.invalidate(fmt.Errorf("tstdb: delete log on clear: %w", err))

		return s.invalid
	}

	lg, err := walog.Open(s.fsys, s.path, tst.MaxKeyLen, func(walog.Record) error {
		return errors.New("tstdb: unexpected replay against fresh log")
	})
	if err != nil {
		s.invalidate(fmt.Errorf("tstdb: open fresh log after clear: %w", err))

		return s.invalid
	}

	s.log = lg

	return nil
}

// Optimize rebuilds the tree in shuffled order for better balance, then
// rewrites the log from scratch against the new key set following the
// spec's 4-step rotation (§4.8): rename the current log to `<path>.tmp`,
// open a fresh log at the primary path, re-insert every key, delete
// `<path>.tmp` on success. A `.tmp` left over from a crash mid-rotation is
// picked up on the next Open only if the primary itself fails to open
// (see DESIGN.md Open Question 1).
func (s *Store) Optimize(entropy tst.EntropySource) error {
	if err := s.writeGuard(); err != nil {
		return err
	}

	// keys is the exact shuffled re-insert order tree.Optimize used to
	// rebuild the tree. The fresh log must replay that same order, not a
	// freshly-collected ascending one — Keys always returns sorted order
	// regardless of insertion history, which would silently re-flatten the
	// tree on the next Open.
	keys, err := s.tree.Optimize(entropy)
	if err != nil {
		return fmt.Errorf("tstdb: optimize: %w", err)
	}

	return s.rotateLog(keys)
}

// rotateLog implements spec.md §4.8 steps 1-4, replaying keys into the
// fresh log in the exact order given.
func (s *Store) rotateLog(keys [][]byte) error {
	tmpPath := s.path + ".tmp"

	// Step 1: close and rename the current log to <path>.tmp.
	if err := s.log.Close(); err != nil {
		s.invalidate(fmt.Errorf("tstdb: close log before rotate: %w", err))

		return s.invalid
	}

	if err := s.fsys.Remove(tmpPath); err != nil && !isNotExist(err) {
		s.invalidate(fmt.Errorf("tstdb: remove stale tmp log: %w", err))

		return s.invalid
	}

	if err := s.fsys.Rename(s.path, tmpPath); err != nil {
		s.invalidate(fmt.Errorf("tstdb: rename log to tmp: %w", err))

		return s.invalid
	}

	// Step 2: open a fresh log file with header at the primary path.
	lg, err := walog.Open(s.fsys, s.path, tst.MaxKeyLen, func(walog.Record) error {
		return errors.New("tstdb: unexpected replay against fresh log")
	})
	if err != nil {
		s.invalidate(fmt.Errorf("tstdb: open fresh log: %w", err))

		return s.invalid
	}

	// Step 3: re-insert every key.
	for _, k := range keys {
		if err := lg.AppendInsert(k); err != nil {
			s.invalidate(fmt.Errorf("tstdb: write fresh log: %w", err))

			return s.invalid
		}
	}

	s.log = lg

	// Step 4: delete <path>.tmp on success.
	if err := s.fsys.Remove(tmpPath); err != nil {
		s.invalidate(fmt.Errorf("tstdb: delete tmp log after rotate: %w", err))

		return s.invalid
	}

	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// writeGuard is the write-invalidation check shared by every mutating
// call; see Open Question 2 in DESIGN.md.
func (s *Store) writeGuard() error {
	if s.invalid != nil {
		return fmt.Errorf("%w: %w", ErrWriteInvalid, s.invalid)
	}

	if err := s.log.Invalid(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteInvalid, err)
	}

	return nil
}

func (s *Store) invalidate(err error) {
	s.invalid = err
}

// KeyCount returns the number of live keys.
func (s *Store) KeyCount() uint64 {
	return s.tree.KeyCount()
}

// NodeCount returns the raw arena node count (including the sentinel).
func (s *Store) NodeCount() uint32 {
	return s.tree.NodeCount()
}

// State returns the balance metric; see tst.Tree.State.
func (s *Store) State() float64 {
	return s.tree.State()
}

// Separator returns the current segment delimiter.
func (s *Store) Separator() byte {
	return s.tree.Separator()
}

// SetSeparator changes the segment delimiter used by Search's Segment
// projection.
func (s *Store) SetSeparator(b byte) {
	s.tree.SetSeparator(b)
}

// Dump writes a diagnostic listing of every reserved arena node.
func (s *Store) Dump(sink func(line string) error) error {
	return s.tree.Dump(sink)
}
