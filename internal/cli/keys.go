package cli

import (
	"context"

	"github.com/calvinalkan/tstdb"

	flag "github.com/spf13/pflag"
)

// KeysCmd returns the keys command.
func KeysCmd(cfg tstdb.Config) *Command {
	fs := flag.NewFlagSet("keys", flag.ContinueOnError)
	fs.Bool("desc", false, "list in descending order instead of ascending")

	return &Command{
		Flags: fs,
		Usage: "keys [flags]",
		Short: "List all keys in order",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			desc, _ := fs.GetBool("desc")

			return execKeys(o, cfg, desc)
		},
	}
}

func execKeys(o *IO, cfg tstdb.Config, desc bool) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	return db.Keys(func(key []byte) error {
		o.Println(string(key))

		return nil
	}, desc)
}
