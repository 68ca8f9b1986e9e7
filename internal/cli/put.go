package cli

import (
	"context"

	"github.com/calvinalkan/tstdb"

	flag "github.com/spf13/pflag"
)

// PutCmd returns the put command.
func PutCmd(cfg tstdb.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("put", flag.ContinueOnError),
		Usage: "put <key>",
		Short: "Insert a key",
		Long:  "Insert a key into the database. Exit code reflects whether the key set changed.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execPut(o, cfg, args)
		},
	}
}

func execPut(o *IO, cfg tstdb.Config, args []string) error {
	if len(args) == 0 {
		return errKeyRequired
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	changed, err := db.Put([]byte(args[0]))
	if err != nil {
		return err
	}

	if changed {
		o.Println("inserted")
	} else {
		o.Println("already present")

		return silentExit(1)
	}

	return nil
}
