package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/calvinalkan/jifdb/internal/config"
	"github.com/calvinalkan/jifdb/pkg/jifdb"
)

var (
	errInvalidID        = errors.New("invalid document id")
	errNoDocument       = errors.New("no document given")
	errNoSuchCollection = errors.New("collection not found")
)

// newDB builds a closed database from the resolved config. Diagnostics go
// to errOut and are only emitted when the config asks for verbose output.
func newDB(cfg *config.Config, errOut io.Writer) *jifdb.DB {
	return jifdb.New(jifdb.Config{
		Logger:         slog.New(slog.NewTextHandler(errOut, nil)),
		BackupOnDelete: cfg.BackupOnDelete,
	})
}

// withDB opens the configured database, runs fn and closes it again.
// Close saves whatever fn changed, so a failed close is reported even
// when fn succeeded.
func withDB(cfg *config.Config, o *IO, fn func(db *jifdb.DB) error) error {
	db := newDB(cfg, o.errOut)

	err := db.Open(cfg.DBPathAbs, jifdb.OpenOptions{Verbose: cfg.Verbose})
	if err != nil {
		return err
	}

	fnErr := fn(db)

	closeErr := db.Close()
	if closeErr != nil {
		return errors.Join(fnErr, closeErr)
	}

	return fnErr
}

// existingCollection opens name only if it is registered or its file is
// already on disk. Commands that read or remove use it so a typo does not
// create a file.
func existingCollection(db *jifdb.DB, name string) (*jifdb.Collection, error) {
	ok, err := db.HasCollection(name)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", errNoSuchCollection, name)
	}

	return db.OpenCollection(name)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidID, arg)
	}

	return id, nil
}

// documentArg returns the JSON document from args, or from stdin when the
// argument is missing or "-".
func documentArg(o *IO, args []string) ([]byte, error) {
	if len(args) > 0 && args[0] != "-" {
		return []byte(strings.Join(args, " ")), nil
	}

	if o.in == nil {
		return nil, errNoDocument
	}

	data, err := io.ReadAll(o.in)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}

	if strings.TrimSpace(string(data)) == "" {
		return nil, errNoDocument
	}

	return data, nil
}
