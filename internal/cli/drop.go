package cli

import (
	"context"

	"github.com/calvinalkan/jifdb/internal/config"
	"github.com/calvinalkan/jifdb/pkg/jifdb"

	flag "github.com/spf13/pflag"
)

// DropCmd returns the drop command.
func DropCmd(cfg *config.Config) *Command {
	fs := flag.NewFlagSet("drop", flag.ContinueOnError)
	fs.Bool("backup", false, "Rename the file to <name>.json.<unix>.bak instead of removing it (default from backup_on_delete)")

	return &Command{
		Flags:   fs,
		Usage:   "drop <collection>",
		Short:   "Delete a collection and its file",
		Long:    "Delete a collection file. With --backup (or backup_on_delete in config) the file is kept as a timestamped .bak.",
		MinArgs: 1,
		MaxArgs: 1,
		Exec: func(_ context.Context, io *IO, args []string) error {
			local := *cfg
			if fs.Changed("backup") {
				local.BackupOnDelete, _ = fs.GetBool("backup")
			}

			return execDrop(io, &local, args[0])
		},
	}
}

func execDrop(io *IO, cfg *config.Config, name string) error {
	return withDB(cfg, io, func(db *jifdb.DB) error {
		_, err := existingCollection(db, name)
		if err != nil {
			return err
		}

		err = db.DeleteCollection(name)
		if err != nil {
			return err
		}

		io.Println("dropped", name)

		return nil
	})
}
