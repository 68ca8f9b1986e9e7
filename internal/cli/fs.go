package cli

import (
	"time"

	"github.com/calvinalkan/tstdb"
	"github.com/calvinalkan/tstdb/internal/fs"
)

const lockTimeout = 5 * time.Second

// realFS returns the production filesystem used by every subcommand that
// opens a Store.
func realFS() fs.FS {
	return fs.NewReal()
}

// lockedStore pairs a Store with the advisory lock held alongside it, if
// any, so both are released together on Close.
type lockedStore struct {
	*tstdb.Store
	lock *fs.Lock
}

func (ls *lockedStore) Close() error {
	dbErr := ls.Store.Close()

	if ls.lock == nil {
		return dbErr
	}

	if lockErr := ls.lock.Close(); lockErr != nil && dbErr == nil {
		return lockErr
	}

	return dbErr
}

// openStore opens the database at cfg.Path using the real host filesystem,
// taking an advisory lock on "<path>.lock" first when cfg.AdvisoryLock is
// set, per SPEC_FULL.md §4.10.
func openStore(cfg tstdb.Config) (*lockedStore, error) {
	fsys := realFS()

	var lock *fs.Lock

	if cfg.AdvisoryLock {
		l, err := fs.NewLocker(fsys).LockWithTimeout(cfg.Path+".lock", lockTimeout)
		if err != nil {
			return nil, err
		}

		lock = l
	}

	db, err := tstdb.Open(fsys, cfg.Path)
	if err != nil {
		if lock != nil {
			_ = lock.Close()
		}

		return nil, err
	}

	db.SetSeparator(cfg.Separator)

	return &lockedStore{Store: db, lock: lock}, nil
}
