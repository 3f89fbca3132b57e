package cli

import (
	"context"

	"github.com/calvinalkan/jifdb/internal/config"
	"github.com/calvinalkan/jifdb/pkg/jifdb"

	flag "github.com/spf13/pflag"
)

// CollectionsCmd returns the collections command.
func CollectionsCmd(cfg *config.Config) *Command {
	fs := flag.NewFlagSet("collections", flag.ContinueOnError)
	fs.BoolP("count", "n", false, "Also print the number of documents")

	return &Command{
		Flags: fs,
		Usage: "collections",
		Short: "List collections",
		Long:  "List the collection files in the database root, one name per line.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			count, _ := fs.GetBool("count")

			return withDB(cfg, io, func(db *jifdb.DB) error {
				return execCollections(io, db, count)
			})
		},
	}
}

func execCollections(io *IO, db *jifdb.DB, count bool) error {
	names, err := db.ListCollections()
	if err != nil {
		return err
	}

	for _, name := range names {
		if !count {
			io.Println(name)

			continue
		}

		c, err := db.OpenCollection(name)
		if err != nil {
			return err
		}

		io.Printf("%s\t%d\n", name, c.Len())
	}

	return nil
}
