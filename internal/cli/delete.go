package cli

import (
	"context"

	"github.com/calvinalkan/jifdb/internal/config"
	"github.com/calvinalkan/jifdb/pkg/jifdb"

	flag "github.com/spf13/pflag"
)

// DeleteCmd returns the delete command.
func DeleteCmd(cfg *config.Config) *Command {
	return &Command{
		Flags:   flag.NewFlagSet("delete", flag.ContinueOnError),
		Usage:   "delete <collection> <id>",
		Short:   "Delete a document, prints it",
		Long:    "Delete the document with the given id and print it. Ids are never reused.",
		MinArgs: 2,
		MaxArgs: 2,
		Exec: func(_ context.Context, io *IO, args []string) error {
			return execDelete(io, cfg, args)
		},
	}
}

func execDelete(io *IO, cfg *config.Config, args []string) error {
	id, err := parseID(args[1])
	if err != nil {
		return err
	}

	return withDB(cfg, io, func(db *jifdb.DB) error {
		c, err := existingCollection(db, args[0])
		if err != nil {
			return err
		}

		removed, err := c.Delete(id)
		if err != nil {
			return err
		}

		return io.PrintJSON(removed, false)
	})
}
