package cli

import (
	"context"

	"github.com/calvinalkan/jifdb/internal/config"
	"github.com/calvinalkan/jifdb/pkg/jifdb"

	flag "github.com/spf13/pflag"
)

// GetCmd returns the get command.
func GetCmd(cfg *config.Config) *Command {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.Bool("pretty", false, "Indent printed documents")

	return &Command{
		Flags: fs,
		Usage: "get <collection> [id]",
		Short: "Print one or all documents",
		Long: `Print the document with the given id, or every document in insertion
order, one JSON object per line.`,
		MinArgs: 1,
		MaxArgs: 2,
		Exec: func(_ context.Context, io *IO, args []string) error {
			pretty, _ := fs.GetBool("pretty")

			return execGet(io, cfg, args, pretty)
		},
	}
}

func execGet(io *IO, cfg *config.Config, args []string, pretty bool) error {
	var id int64

	if len(args) == 2 {
		var err error

		id, err = parseID(args[1])
		if err != nil {
			return err
		}
	}

	return withDB(cfg, io, func(db *jifdb.DB) error {
		c, err := existingCollection(db, args[0])
		if err != nil {
			return err
		}

		if id != 0 {
			doc, err := c.ReadID(id)
			if err != nil {
				return err
			}

			return io.PrintJSON(doc, pretty)
		}

		docs, err := c.Read()
		if err != nil {
			return err
		}

		for _, doc := range docs {
			err = io.PrintJSON(doc, pretty)
			if err != nil {
				return err
			}
		}

		return nil
	})
}
