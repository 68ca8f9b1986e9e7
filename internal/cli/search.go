package cli

import (
	"context"
	"errors"

	"github.com/calvinalkan/tstdb"
	"github.com/calvinalkan/tstdb/internal/tst"

	flag "github.com/spf13/pflag"
)

var errPatternRequired = errors.New("a pattern argument is required")

// SearchCmd returns the search command.
func SearchCmd(cfg tstdb.Config) *Command {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.Int("segment", 0, "project each match onto its 1-based segment number, instead of printing the whole key")

	return &Command{
		Flags: fs,
		Usage: "search <pattern> [flags]",
		Short: "Wildcard search",
		Long:  "Search for keys matching a pattern containing '*' wildcards, printing one match per line.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			segment, _ := fs.GetInt("segment")

			return execSearch(o, cfg, args, segment)
		},
	}
}

func execSearch(o *IO, cfg tstdb.Config, args []string, segment int) error {
	if len(args) == 0 {
		return errPatternRequired
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	opts := tst.SearchOptions{Segment: segment}

	return db.Search([]byte(args[0]), func(match []byte) error {
		o.Println(string(match))

		return nil
	}, opts)
}
