package cli

import (
	"context"

	"github.com/calvinalkan/tstdb"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg tstdb.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Print the effective configuration as JSON",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execPrintConfig(o, cfg)
		},
	}
}

func execPrintConfig(o *IO, cfg tstdb.Config) error {
	out, err := tstdb.FormatConfig(cfg)
	if err != nil {
		return err
	}

	o.Println(out)

	return nil
}
