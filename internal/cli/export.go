package cli

import (
	"context"
	"path/filepath"

	"github.com/calvinalkan/jifdb/internal/config"
	"github.com/calvinalkan/jifdb/internal/export"
	"github.com/calvinalkan/jifdb/pkg/jifdb"

	flag "github.com/spf13/pflag"
)

// ExportCmd returns the export command.
func ExportCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("export", flag.ContinueOnError),
		Usage: "export <file> [collection...]",
		Short: "Export collections to SQLite",
		Long: `Write collections into a SQLite database file, one table per collection
with columns (id INTEGER PRIMARY KEY, doc TEXT). Without collection names
every collection is exported. Existing tables of the same name are replaced.`,
		MinArgs: 1,
		MaxArgs: -1,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			return execExport(ctx, io, cfg, args[0], args[1:])
		},
	}
}

func execExport(ctx context.Context, io *IO, cfg *config.Config, file string, names []string) error {
	if !filepath.IsAbs(file) {
		file = filepath.Join(cfg.EffectiveCwd, file)
	}

	return withDB(cfg, io, func(db *jifdb.DB) error {
		for _, name := range names {
			_, err := existingCollection(db, name)
			if err != nil {
				return err
			}
		}

		tables, err := export.ToSQLite(ctx, db, file, export.Options{Collections: names})
		if err != nil {
			return err
		}

		if len(tables) == 0 {
			io.Warn("no collections in "+cfg.DBPathAbs, "nothing was exported")
		}

		for _, t := range tables {
			io.Printf("%s\t%d documents\n", t.Name, t.Documents)
		}

		return nil
	})
}
