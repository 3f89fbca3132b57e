package cli

import (
	"context"

	"github.com/calvinalkan/jifdb/internal/config"
	"github.com/calvinalkan/jifdb/pkg/jifdb"

	flag "github.com/spf13/pflag"
)

// CreateCmd returns the create command.
func CreateCmd(cfg *config.Config) *Command {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.Bool("pretty", false, "Indent the printed document")

	return &Command{
		Flags: fs,
		Usage: "create <collection> [json]",
		Short: "Create document, prints it with its id",
		Long: `Create a document in a collection and print it with its assigned id.

The document is a JSON object given as argument, or read from stdin when the
argument is missing or "-". The collection is created if it does not exist.
Any "id" field in the input is replaced.`,
		MinArgs: 1,
		MaxArgs: -1,
		Exec: func(_ context.Context, io *IO, args []string) error {
			pretty, _ := fs.GetBool("pretty")

			return execCreate(io, cfg, args, pretty)
		},
	}
}

func execCreate(io *IO, cfg *config.Config, args []string, pretty bool) error {
	data, err := documentArg(io, args[1:])
	if err != nil {
		return err
	}

	// Parse before opening so bad input never creates a collection file.
	doc, err := jifdb.ParseDocument(data)
	if err != nil {
		return err
	}

	return withDB(cfg, io, func(db *jifdb.DB) error {
		c, err := db.OpenCollection(args[0])
		if err != nil {
			return err
		}

		created, err := c.Create(doc)
		if err != nil {
			return err
		}

		return io.PrintJSON(created, pretty)
	})
}
