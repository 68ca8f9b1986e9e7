package cli

import (
	"context"

	"github.com/calvinalkan/tstdb"

	flag "github.com/spf13/pflag"
)

// DumpCmd returns the dump command.
func DumpCmd(cfg tstdb.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("dump", flag.ContinueOnError),
		Usage: "dump",
		Short: "Print a diagnostic listing of every reserved arena node",
		Long:  "Print a one-shot diagnostic listing of every reserved arena node to stdout. Not an interactive pager.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execDump(o, cfg)
		},
	}
}

func execDump(o *IO, cfg tstdb.Config) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	return db.Dump(func(line string) error {
		o.Println(line)

		return nil
	})
}
