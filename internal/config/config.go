// Package config loads jifdb CLI settings from JSONC files and flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config errors.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrDBPathEmpty        = errors.New("db_path cannot be empty")
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	DBPath         string `json:"db_path"`
	Verbose        bool   `json:"verbose"`
	BackupOnDelete bool   `json:"backup_on_delete"`

	// Resolved paths (computed, not serialized)
	EffectiveCwd string `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	DBPathAbs    string `json:"-"` // Absolute path to the database root

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// FileName is the default project config file name.
const FileName = ".jifdb.json"

// Default returns the default configuration.
func Default() Config {
	return Config{
		DBPath: "jifdb",
	}
}

// fileConfig is one config file as written. Pointers distinguish an absent
// key from an explicit false.
type fileConfig struct {
	DBPath         *string `json:"db_path"`
	Verbose        *bool   `json:"verbose"`
	BackupOnDelete *bool   `json:"backup_on_delete"`
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	DBPathOverride  *string           // --db flag value; nil means no override
	VerboseOverride *bool             // --verbose flag value; nil means no override
	Env             map[string]string // environment variables
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config (~/.config/jifdb/config.json or $XDG_CONFIG_HOME/jifdb/config.json)
// 3. Project config file at default location (.jifdb.json, if exists)
// 4. Explicit config file via ConfigPath (if non-empty), replacing 3
// 5. CLI overrides.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	globalPath := globalConfigPath(input.Env)
	if globalPath != "" {
		overlay, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = globalPath
			cfg = merge(cfg, overlay)
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false

	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}

	overlay, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
		cfg = merge(cfg, overlay)
	}

	if input.DBPathOverride != nil {
		if *input.DBPathOverride == "" {
			return Config{}, errors.New("--db cannot be empty")
		}

		cfg.DBPath = *input.DBPathOverride
	}

	if input.VerboseOverride != nil {
		cfg.Verbose = *input.VerboseOverride
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.DBPath) {
		cfg.DBPathAbs = cfg.DBPath
	} else {
		cfg.DBPathAbs = filepath.Join(workDir, cfg.DBPath)
	}

	return cfg, nil
}

// globalConfigPath returns $XDG_CONFIG_HOME/jifdb/config.json if set,
// otherwise ~/.config/jifdb/config.json, or "" without a home directory.
func globalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "jifdb", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "jifdb", "config.json")
	}

	return ""
}

// loadFile reads one config file. A missing optional file is not an error
// and reports loaded=false.
func loadFile(path string, mustExist bool) (fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !mustExist {
			if os.IsNotExist(err) {
				return fileConfig{}, false, nil
			}

			return fileConfig{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
		}

		if os.IsNotExist(err) {
			return fileConfig{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}

		return fileConfig{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	fc, err := parse(data)
	if err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return fc, true, nil
}

func parse(data []byte) (fileConfig, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var fc fileConfig

	err = json.Unmarshal(standardized, &fc)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if fc.DBPath != nil && *fc.DBPath == "" {
		return fileConfig{}, ErrDBPathEmpty
	}

	return fc, nil
}

func merge(base Config, overlay fileConfig) Config {
	if overlay.DBPath != nil {
		base.DBPath = *overlay.DBPath
	}

	if overlay.Verbose != nil {
		base.Verbose = *overlay.Verbose
	}

	if overlay.BackupOnDelete != nil {
		base.BackupOnDelete = *overlay.BackupOnDelete
	}

	return base
}
