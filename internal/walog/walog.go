// Package walog implements the append-only text log that backs a
// persistent tree: a "TSTDB\n" header followed by one "<len>\t<key>\n"
// record per mutation, replayed on open to rebuild the in-memory index.
package walog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/calvinalkan/tstdb/internal/fs"
)

const header = "TSTDB\n"

// Sentinel errors surfaced at open time. Wrapped with fmt.Errorf("...: %w", ...)
// at each layer so callers can errors.Is regardless of which layer produced
// the failure.
var (
	// ErrCannotOpen reports that the host file layer refused to open or
	// create the log (permissions, missing directory, and so on).
	ErrCannotOpen = errors.New("walog: cannot open")

	// ErrNotADatabase reports a header mismatch: the file exists but does
	// not start with the "TSTDB\n" magic.
	ErrNotADatabase = errors.New("walog: not a database")

	// ErrCorrupt reports structural damage beyond a recoverable trailing
	// truncation.
	ErrCorrupt = errors.New("walog: corrupt")
)

// maxSnippet bounds the key snippet included in an ErrCorrupt diagnostic.
const maxSnippet = 40

// Record is one decoded log entry.
type Record struct {
	// Key is the raw key bytes, exactly abs(Len) long.
	Key []byte
	// Tombstone is true when Len was negative (a removal).
	Tombstone bool
}

// Log owns an open log file handle and appends records to it.
//
// Log has no in-memory index of its own; Open replays records into a sink
// supplied by the caller and the returned Log is only good for appending
// from then on.
type Log struct {
	file      fs.File
	maxKeyLen int
	invalid   error
}

// Apply receives one decoded record during replay. It must not perform any
// I/O through the Log being opened (logging is suppressed during replay by
// construction: the Log is not handed to the caller until Open returns).
type Apply func(Record) error

// Open opens path for read+write, creating it with a bare header if
// absent, then replays every record into apply before returning. maxKeyLen
// bounds how far the repair heuristic (see §6.3) will look for a trailing
// partial record.
func Open(fsys fs.FS, path string, maxKeyLen int, apply Apply) (*Log, error) {
	file, created, err := openOrCreate(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotOpen, err)
	}

	if created {
		return &Log{file: file, maxKeyLen: maxKeyLen}, nil
	}

	if err := replay(file, maxKeyLen, apply); err != nil {
		_ = file.Close()

		return nil, err
	}

	return &Log{file: file, maxKeyLen: maxKeyLen}, nil
}

// openOrCreate implements §6.3 step 1: open for read+write, or create a
// fresh header-only file if the path does not exist.
func openOrCreate(fsys fs.FS, path string) (fs.File, bool, error) {
	exists, err := fsys.Exists(path)
	if err != nil {
		return nil, false, fmt.Errorf("stat %q: %w", path, err)
	}

	if !exists {
		file, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return nil, false, fmt.Errorf("create %q: %w", path, err)
		}

		if _, err := file.Write([]byte(header)); err != nil {
			_ = file.Close()

			return nil, false, fmt.Errorf("write header %q: %w", path, err)
		}

		if err := file.Sync(); err != nil {
			_ = file.Close()

			return nil, false, fmt.Errorf("sync %q: %w", path, err)
		}

		return file, true, nil
	}

	file, err := fsys.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open %q: %w", path, err)
	}

	return file, false, nil
}

// replay implements §6.3 steps 2-4: validate the header, then read and
// apply records until a clean EOF, a recoverable partial trailing record,
// or unrecoverable corruption.
func replay(file fs.File, maxKeyLen int, apply Apply) error {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek start: %w", err)
	}

	r := bufio.NewReader(file)

	magic := make([]byte, len(header))
	if _, err := io.ReadFull(r, magic); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: empty file", ErrNotADatabase)
		}

		return fmt.Errorf("read header: %w", err)
	}

	if string(magic) != header {
		return fmt.Errorf("%w: bad magic %q", ErrNotADatabase, magic)
	}

	line := 1
	pos := int64(len(header))

	for {
		n, tail, readErr := readRecordHeader(r)

		if readErr != nil {
			if errors.Is(readErr, io.EOF) && tail == 0 {
				// Clean end of file: append a trailing LF if the last
				// record didn't end with one.
				return ensureTrailingLF(file)
			}

			if !errors.Is(readErr, io.EOF) {
				return corruptErr(file, pos, line)
			}

			return repair(file, pos, maxKeyLen, line)
		}

		keyLen := n
		tombstone := false

		if keyLen < 0 {
			keyLen = -keyLen
			tombstone = true
		}

		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return repair(file, pos, maxKeyLen, line)
		}

		lf := make([]byte, 1)
		if _, err := io.ReadFull(r, lf); err != nil {
			return repair(file, pos, maxKeyLen, line)
		}

		if lf[0] != '\n' {
			return corruptErr(file, pos, line)
		}

		if err := apply(Record{Key: key, Tombstone: tombstone}); err != nil {
			return fmt.Errorf("replay line %d: %w", line, err)
		}

		pos += int64(tail) + int64(keyLen) + 1
		line++
	}
}

// readRecordHeader reads a decimal integer followed by a literal tab,
// returning the parsed integer and the number of header bytes consumed
// (skipped filler + digits + sign + tab). Spaces and LFs before the length
// field are the blank filler left by repair and are skipped. io.EOF with
// tail==0 means a clean end of stream; io.EOF with tail>0 means the record
// header itself was truncated mid-write; any other error means the header
// is malformed or unreadable.
func readRecordHeader(r *bufio.Reader) (n int, tail int, err error) {
	var digits []byte

	skipped := 0

	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, len(digits), io.EOF
			}

			return 0, skipped + len(digits), err
		}

		if len(digits) == 0 && (b == ' ' || b == '\n') {
			skipped++

			continue
		}

		if b == '\t' {
			tail = skipped + len(digits) + 1

			break
		}

		digits = append(digits, b)

		if len(digits) > 32 {
			return 0, len(digits), fmt.Errorf("runaway length field")
		}
	}

	if len(digits) == 0 {
		return 0, tail, fmt.Errorf("empty length field")
	}

	v, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, tail, fmt.Errorf("parse length %q: %w", digits, err)
	}

	return v, tail, nil
}

// ensureTrailingLF appends an LF if the file does not already end with
// one, matching §6.2's "ends with LF after the last record" invariant.
func ensureTrailingLF(file fs.File) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	size := info.Size()
	if size == 0 {
		return nil
	}

	buf := make([]byte, 1)
	if _, err := file.Seek(size-1, io.SeekStart); err != nil {
		return fmt.Errorf("seek tail: %w", err)
	}

	if _, err := io.ReadFull(file, buf); err != nil {
		return fmt.Errorf("read tail: %w", err)
	}

	if buf[0] == '\n' {
		return nil
	}

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek end: %w", err)
	}

	if _, err := file.Write([]byte("\n")); err != nil {
		return fmt.Errorf("append trailing LF: %w", err)
	}

	return file.Sync()
}

// repair implements §6.3 step 4 for a record cut short by the end of the
// file: a partial trailing record within maxKeyLen bytes of pos is
// overwritten with spaces and a trailing LF, and the handle is left
// positioned at the end of the file. A longer tail is unrecoverable
// corruption; replay reports structurally wrong records through corruptErr
// without calling repair.
func repair(file fs.File, pos int64, maxKeyLen int, line int) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	end := info.Size()

	if end < pos {
		return corruptErr(file, pos, line)
	}

	span := end - pos
	if span > int64(maxKeyLen) {
		return corruptErr(file, pos, line)
	}

	blank := make([]byte, span)
	for i := range blank {
		blank[i] = ' '
	}

	if span > 0 {
		blank[span-1] = '\n'
	}

	if _, err := file.WriteAt(blank, pos); err != nil {
		return fmt.Errorf("repair write: %w", err)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("repair sync: %w", err)
	}

	if _, err := file.Seek(pos+int64(len(blank)), io.SeekStart); err != nil {
		return fmt.Errorf("repair seek: %w", err)
	}

	return nil
}

// corruptErr builds the *corrupt at line L near "<snippet>"* diagnostic,
// reading up to maxSnippet bytes starting at pos for context.
func corruptErr(file fs.File, pos int64, line int) error {
	snippet := make([]byte, maxSnippet)

	n, _ := file.ReadAt(snippet, pos)
	snippet = snippet[:n]

	if err := closeQuietly(file); err != nil {
		return fmt.Errorf("%w at line %d near %q (close failed: %v)", ErrCorrupt, line, snippet, err)
	}

	return fmt.Errorf("%w at line %d near %q", ErrCorrupt, line, snippet)
}

func closeQuietly(file fs.File) error {
	return file.Close()
}

// AppendInsert appends an insertion record for key. It returns an error
// (without panicking or retrying) on any write or sync failure; the
// caller is responsible for invalidating further writes, per the
// log-write-failure resolution documented alongside the Store type.
func (l *Log) AppendInsert(key []byte) error {
	return l.append(key, false)
}

// AppendTombstone appends a removal record for key.
func (l *Log) AppendTombstone(key []byte) error {
	return l.append(key, true)
}

func (l *Log) append(key []byte, tombstone bool) error {
	if l.invalid != nil {
		return l.invalid
	}

	sign := ""
	if tombstone {
		sign = "-"
	}

	line := fmt.Sprintf("%s%d\t", sign, len(key))

	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		l.invalid = fmt.Errorf("walog: append seek: %w", err)

		return l.invalid
	}

	record := make([]byte, 0, len(line)+len(key)+1)
	record = append(record, line...)
	record = append(record, key...)
	record = append(record, '\n')

	if _, err := l.file.Write(record); err != nil {
		l.invalid = fmt.Errorf("walog: append record: %w", err)

		return l.invalid
	}

	if err := l.file.Sync(); err != nil {
		l.invalid = fmt.Errorf("walog: append sync: %w", err)

		return l.invalid
	}

	return nil
}

// Invalid reports the error that disabled further writes, if any.
func (l *Log) Invalid() error {
	return l.invalid
}

// Close closes the underlying file handle.
func (l *Log) Close() error {
	return l.file.Close()
}

// File exposes the underlying handle, for rotation during optimize.
func (l *Log) File() fs.File {
	return l.file
}
