package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/calvinalkan/jifdb/internal/config"
	"github.com/calvinalkan/jifdb/internal/server"
	"github.com/calvinalkan/jifdb/pkg/jifdb"

	flag "github.com/spf13/pflag"
)

// ServeCmd returns the serve command.
func ServeCmd(cfg *config.Config) *Command {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringP("addr", "a", "127.0.0.1:8080", "Listen `address`")
	fs.Bool("no-autosave", false, "Keep changes in memory until POST /collections/{name}/save or shutdown")

	return &Command{
		Flags: fs,
		Usage: "serve",
		Short: "Serve the database over HTTP",
		Long: `Serve the database over HTTP until interrupted. The API is described by
the OpenAPI document at /openapi.json. Changes are saved after every request
unless --no-autosave is set; all pending changes are saved on shutdown.`,
		MaxArgs: 0,
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			addr, _ := fs.GetString("addr")
			noAutoSave, _ := fs.GetBool("no-autosave")

			return execServe(ctx, io, cfg, addr, !noAutoSave)
		},
	}
}

func execServe(ctx context.Context, io *IO, cfg *config.Config, addr string, autoSave bool) error {
	if addr == "" {
		return errors.New("--addr cannot be empty")
	}

	return withDB(cfg, io, func(db *jifdb.DB) error {
		opts := server.Options{AutoSave: autoSave}
		if cfg.Verbose {
			opts.Logger = slog.New(slog.NewTextHandler(io.errOut, nil))
		}

		srv, err := server.New(db, opts)
		if err != nil {
			return err
		}

		var lc net.ListenConfig

		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}

		io.Println("listening on http://" + ln.Addr().String())

		return srv.Serve(ctx, ln)
	})
}
