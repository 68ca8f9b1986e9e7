package cli

import (
	"context"

	"github.com/calvinalkan/tstdb"

	flag "github.com/spf13/pflag"
)

// StateCmd returns the state command.
func StateCmd(cfg tstdb.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("state", flag.ContinueOnError),
		Usage: "state",
		Short: "Print the balance metric and key/node counts",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execState(o, cfg)
		},
	}
}

func execState(o *IO, cfg tstdb.Config) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	o.Printf("key_count=%d node_count=%d state=%f\n", db.KeyCount(), db.NodeCount(), db.State())

	return nil
}
