package cli

import (
	"context"
	"errors"

	"github.com/calvinalkan/tstdb"

	flag "github.com/spf13/pflag"
)

var errSeparatorNotOneByte = errors.New("separator must be exactly one byte")

// SeparatorCmd returns the separator command.
func SeparatorCmd(cfg tstdb.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("separator", flag.ContinueOnError),
		Usage: "separator [byte]",
		Short: "Get or set the segment delimiter used by search --segment",
		Long: "Without an argument, print the segment delimiter. With a one-byte argument, " +
			"set it on the store opened for this invocation only; the value is not saved, " +
			"so later commands keep using the configured separator.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execSeparator(o, cfg, args)
		},
	}
}

func execSeparator(o *IO, cfg tstdb.Config, args []string) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	if len(args) == 0 {
		o.Println(string(db.Separator()))

		return nil
	}

	if len(args[0]) != 1 {
		return errSeparatorNotOneByte
	}

	db.SetSeparator(args[0][0])
	o.Println("ok")

	return nil
}
