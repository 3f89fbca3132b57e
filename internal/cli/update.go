package cli

import (
	"context"

	"github.com/calvinalkan/jifdb/internal/config"
	"github.com/calvinalkan/jifdb/pkg/jifdb"

	flag "github.com/spf13/pflag"
)

// UpdateCmd returns the update command.
func UpdateCmd(cfg *config.Config) *Command {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.BoolP("replace", "r", false, "Replace all fields instead of merging")
	fs.Bool("pretty", false, "Indent the printed document")

	return &Command{
		Flags: fs,
		Usage: "update <collection> <id> [json]",
		Short: "Merge fields into a document",
		Long: `Merge the top-level fields of a JSON object into the document with the
given id and print the result. With --replace the document's fields are
replaced wholesale. The id never changes.

The JSON is read from stdin when the argument is missing or "-".`,
		MinArgs: 2,
		MaxArgs: -1,
		Exec: func(_ context.Context, io *IO, args []string) error {
			replace, _ := fs.GetBool("replace")
			pretty, _ := fs.GetBool("pretty")

			return execUpdate(io, cfg, args, replace, pretty)
		},
	}
}

func execUpdate(io *IO, cfg *config.Config, args []string, replace, pretty bool) error {
	id, err := parseID(args[1])
	if err != nil {
		return err
	}

	data, err := documentArg(io, args[2:])
	if err != nil {
		return err
	}

	doc, err := jifdb.ParseDocument(data)
	if err != nil {
		return err
	}

	return withDB(cfg, io, func(db *jifdb.DB) error {
		c, err := existingCollection(db, args[0])
		if err != nil {
			return err
		}

		var updated jifdb.Document

		if replace {
			updated, err = c.Replace(id, doc)
		} else {
			updated, err = c.Update(id, doc)
		}

		if err != nil {
			return err
		}

		return io.PrintJSON(updated, pretty)
	})
}
