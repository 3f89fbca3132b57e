package jifdb

import (
	"log/slog"
	"time"

	"github.com/calvinalkan/jifdb/pkg/fs"
)

// DefaultRootPath is the root directory used when [DB.Open] gets a blank path.
const DefaultRootPath = "jifdb"

// File and directory permissions for everything the database creates.
const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// fileExt is appended to a collection name to form its file name.
const fileExt = ".json"

// Config holds the settings a [DB] keeps across open/close cycles.
//
// The zero value is ready to use.
type Config struct {
	// FS performs all file I/O. Default: [fs.NewReal].
	FS fs.FS

	// Logger receives diagnostics while [OpenOptions.Verbose] is set.
	// Default: discards everything.
	Logger *slog.Logger

	// BackupOnDelete makes [DB.DeleteCollection] rename the collection file
	// to "<name>.json.<unix-seconds>.bak" instead of removing it.
	BackupOnDelete bool

	// Now returns the current time, used for backup file names.
	// Default: [time.Now].
	Now func() time.Time
}

// OpenOptions configures one [DB.Open] session.
type OpenOptions struct {
	// Verbose enables diagnostic logging through [Config.Logger] until [DB.Close].
	Verbose bool
}

func (cfg Config) withDefaults() Config {
	if cfg.FS == nil {
		cfg.FS = fs.NewReal()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return cfg
}
