package cli

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"github.com/calvinalkan/tstdb"

	flag "github.com/spf13/pflag"
)

// cryptoEntropy draws shuffle entropy from crypto/rand, grounded on the
// same "host supplies entropy" seam tst.EntropySource exists for.
type cryptoEntropy struct{}

func (cryptoEntropy) Uint64() uint64 {
	var buf [8]byte

	_, _ = rand.Read(buf[:])

	return binary.LittleEndian.Uint64(buf[:])
}

// OptimizeCmd returns the optimize command.
func OptimizeCmd(cfg tstdb.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("optimize", flag.ContinueOnError),
		Usage: "optimize",
		Short: "Rebuild the tree in shuffled order and rotate the log",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execOptimize(o, cfg)
		},
	}
}

func execOptimize(o *IO, cfg tstdb.Config) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	if err := db.Optimize(cryptoEntropy{}); err != nil {
		return err
	}

	o.Println("optimized")

	return nil
}
