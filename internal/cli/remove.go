package cli

import (
	"context"

	"github.com/calvinalkan/tstdb"

	flag "github.com/spf13/pflag"
)

// RemoveCmd returns the remove command.
func RemoveCmd(cfg tstdb.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("remove", flag.ContinueOnError),
		Usage: "remove <key>",
		Short: "Remove a key",
		Long:  "Remove a key from the database. Exit code reflects whether the key set changed.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execRemove(o, cfg, args)
		},
	}
}

func execRemove(o *IO, cfg tstdb.Config, args []string) error {
	if len(args) == 0 {
		return errKeyRequired
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	changed, err := db.Remove([]byte(args[0]))
	if err != nil {
		return err
	}

	if changed {
		o.Println("removed")
	} else {
		o.Println("not present")

		return silentExit(1)
	}

	return nil
}
