package cli

import (
	"context"

	"github.com/calvinalkan/tstdb"

	flag "github.com/spf13/pflag"
)

// ContainsCmd returns the contains command.
func ContainsCmd(cfg tstdb.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("contains", flag.ContinueOnError),
		Usage: "contains <key>",
		Short: "Test key membership",
		Long:  "Report whether a key is present. Exit code 0 if present, 1 if not.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execContains(o, cfg, args)
		},
	}
}

func execContains(o *IO, cfg tstdb.Config, args []string) error {
	if len(args) == 0 {
		return errKeyRequired
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	if !db.Contains([]byte(args[0])) {
		o.Println("false")

		return silentExit(1)
	}

	o.Println("true")

	return nil
}
