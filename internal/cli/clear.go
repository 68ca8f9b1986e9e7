package cli

import (
	"context"

	"github.com/calvinalkan/tstdb"

	flag "github.com/spf13/pflag"
)

// ClearCmd returns the clear command.
func ClearCmd(cfg tstdb.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("clear", flag.ContinueOnError),
		Usage: "clear",
		Short: "Remove every key and truncate the log",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execClear(o, cfg)
		},
	}
}

func execClear(o *IO, cfg tstdb.Config) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	if err := db.Clear(); err != nil {
		return err
	}

	o.Println("cleared")

	return nil
}
