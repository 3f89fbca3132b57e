package jifdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// DB is a file-backed document database rooted at one directory.
//
// Each collection lives in "<root>/<name>.json". The DB owns the registry of
// open collections and performs all their file I/O: it loads a collection
// the first time it is opened, and writes it back on [DB.SaveCollection],
// [DB.CloseCollection], [DB.DeleteCollection], [DB.SaveAll] and [DB.Close].
//
// A DB starts closed; call [DB.Open]. Every other method returns
// [ErrNotOpen] while closed. After [DB.Close] the same value may be opened
// again, possibly on another root.
//
// # Concurrency
//
// Safe for concurrent use. One mutex guards the registry and lifecycle, and
// each [Collection] guards its own documents. The DB assumes it is the only
// writer of its root directory; there is no cross-process locking.
type DB struct {
	cfg Config

	mu          sync.Mutex
	open        bool
	verbose     bool
	root        string
	collections map[string]*Collection
}

// New returns a closed DB using cfg. Zero fields in cfg get defaults.
func New(cfg Config) *DB {
	return &DB{
		cfg:         cfg.withDefaults(),
		collections: make(map[string]*Collection),
	}
}

// Open opens the database at rootPath, creating the directory if needed.
// A blank rootPath means [DefaultRootPath]. No collection file is touched.
//
// Returns [ErrAlreadyOpen] if already open (nothing changes), or
// [ErrDirectoryCreate] if the directory cannot be created.
func (db *DB) Open(rootPath string, opts OpenOptions) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.open {
		return withContext(ErrAlreadyOpen, "", db.root)
	}

	root := rootPath
	if strings.TrimSpace(root) == "" {
		root = DefaultRootPath
	}

	existed, err := db.cfg.FS.Exists(root)
	if err != nil {
		return withContext(fmt.Errorf("%w: %w", ErrDirectoryCreate, err), "", root)
	}

	err = db.cfg.FS.MkdirAll(root, dirPerm)
	if err != nil {
		return withContext(fmt.Errorf("%w: %w", ErrDirectoryCreate, err), "", root)
	}

	db.open = true
	db.verbose = opts.Verbose
	db.root = root
	db.collections = make(map[string]*Collection)

	if !existed {
		db.logf("created database directory", "path", root)
	}

	db.logf("opened database", "path", root)

	return nil
}

// Close saves every dirty collection in name order, then closes the database.
//
// Close is all or nothing: if a save fails it stops there and returns an
// [*Error] wrapping [ErrSave] that names the failing collection. The database
// stays open with its registry intact. Collections saved before the failure
// stay saved.
//
// On success all collection handles become invalid.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.open {
		return withContext(ErrNotOpen, "", "")
	}

	err := db.saveAllLocked()
	if err != nil {
		return err
	}

	for _, c := range db.collections {
		c.detach()
	}

	db.logf("closed database", "path", db.root, "collections", len(db.collections))

	db.open = false
	db.verbose = false
	db.root = ""
	db.collections = make(map[string]*Collection)

	return nil
}

// IsOpen reports whether the database is open.
func (db *DB) IsOpen() bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.open
}

// RootPath returns the root directory, or "" while closed.
func (db *DB) RootPath() string {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.root
}

// OpenCollection returns the collection called name, loading it on first use.
//
// If name is already registered the existing handle is returned without
// rereading the file. Otherwise an existing file is read and checked; a
// missing file is created with an empty collection (next_id 1, empty list).
//
// Errors: [ErrNotOpen], [ErrInvalidName], [ErrCorrupted] if the file is
// unreadable or malformed, [ErrCreate] if a new file cannot be written or
// appeared concurrently. On error nothing is registered.
func (db *DB) OpenCollection(name string) (*Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	err := db.checkLocked(name)
	if err != nil {
		return nil, err
	}

	if c, ok := db.collections[name]; ok {
		return c, nil
	}

	path := db.pathFor(name)

	exists, err := db.cfg.FS.Exists(path)
	if err != nil {
		return nil, withContext(fmt.Errorf("%w: %w", ErrCreate, err), name, path)
	}

	var c *Collection

	if exists {
		c, err = db.loadCollection(name, path)
	} else {
		c, err = db.createCollection(name, path)
	}

	if err != nil {
		return nil, withContext(err, name, path)
	}

	db.collections[name] = c

	return c, nil
}

// CloseCollection saves name if dirty and removes it from the registry.
// The handle returned by [DB.OpenCollection] becomes invalid.
//
// Errors: [ErrNotOpen], [ErrInvalidName], [ErrUnknownCollection], or
// [ErrSave], in which case the collection stays registered and dirty.
func (db *DB) CloseCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, err := db.registeredLocked(name)
	if err != nil {
		return err
	}

	err = db.saveLocked(c)
	if err != nil {
		return err
	}

	delete(db.collections, name)
	c.detach()

	db.logf("closed collection", "collection", name)

	return nil
}

// SaveCollection rewrites the whole collection file if the collection is
// dirty, and is a successful no-op otherwise.
//
// Errors: [ErrNotOpen], [ErrInvalidName], [ErrUnknownCollection], or
// [ErrSave], in which case the collection stays dirty.
func (db *DB) SaveCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, err := db.registeredLocked(name)
	if err != nil {
		return err
	}

	return db.saveLocked(c)
}

// SaveAll saves every dirty collection in name order, stopping at the first
// failure like [DB.Close] does, but leaves everything open.
func (db *DB) SaveAll() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.open {
		return withContext(ErrNotOpen, "", "")
	}

	return db.saveAllLocked()
}

// DeleteCollection saves name if dirty, then deletes its file and removes
// it from the registry. With [Config.BackupOnDelete] the file is renamed to
// "<name>.json.<unix-seconds>.bak" instead.
//
// Errors: [ErrNotOpen], [ErrInvalidName], [ErrUnknownCollection], [ErrSave]
// or [ErrDelete]. On error the collection stays registered.
func (db *DB) DeleteCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, err := db.registeredLocked(name)
	if err != nil {
		return err
	}

	err = db.saveLocked(c)
	if err != nil {
		return err
	}

	if db.cfg.BackupOnDelete {
		backup := c.path + "." + strconv.FormatInt(db.cfg.Now().Unix(), 10) + ".bak"

		err = db.cfg.FS.Rename(c.path, backup)
		if err != nil {
			return withContext(fmt.Errorf("%w: %w", ErrDelete, err), name, c.path)
		}

		db.logf("renamed collection file", "collection", name, "path", c.path, "backup", backup)
	} else {
		err = db.cfg.FS.Remove(c.path)
		if err != nil {
			return withContext(fmt.Errorf("%w: %w", ErrDelete, err), name, c.path)
		}

		db.logf("deleted collection file", "collection", name, "path", c.path)
	}

	delete(db.collections, name)
	c.detach()

	return nil
}

// Collections returns the sorted names of the registered (open) collections.
func (db *DB) Collections() []string {
	db.mu.Lock()
	defer db.mu.Unlock()

	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// ListCollections returns the sorted names of all collection files in the
// root directory, open or not. Files whose names fail [ValidateName] are skipped.
func (db *DB) ListCollections() ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.open {
		return nil, withContext(ErrNotOpen, "", "")
	}

	entries, err := db.cfg.FS.ReadDir(db.root)
	if err != nil {
		return nil, withContext(fmt.Errorf("list collections: %w", err), "", db.root)
	}

	var names []string

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		name, ok := strings.CutSuffix(entry.Name(), fileExt)
		if !ok || ValidateName(name) != nil {
			continue
		}

		names = append(names, name)
	}

	slices.Sort(names)

	return names, nil
}

// HasCollection reports whether name is registered or its file exists in the
// root directory. Unlike [DB.OpenCollection] it never creates a file.
//
// Errors: [ErrNotOpen], [ErrInvalidName], or a wrapped stat error.
func (db *DB) HasCollection(name string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	err := db.checkLocked(name)
	if err != nil {
		return false, err
	}

	if _, ok := db.collections[name]; ok {
		return true, nil
	}

	path := db.pathFor(name)

	exists, err := db.cfg.FS.Exists(path)
	if err != nil {
		return false, withContext(fmt.Errorf("stat collection: %w", err), name, path)
	}

	return exists, nil
}

// --- Private ---

func (db *DB) pathFor(name string) string {
	return filepath.Join(db.root, name+fileExt)
}

func (db *DB) checkLocked(name string) error {
	if !db.open {
		return withContext(ErrNotOpen, name, "")
	}

	err := ValidateName(name)
	if err != nil {
		return withContext(err, "", "")
	}

	return nil
}

func (db *DB) registeredLocked(name string) (*Collection, error) {
	err := db.checkLocked(name)
	if err != nil {
		return nil, err
	}

	c, ok := db.collections[name]
	if !ok {
		return nil, withContext(ErrUnknownCollection, name, "")
	}

	return c, nil
}

func (db *DB) loadCollection(name, path string) (*Collection, error) {
	data, err := db.cfg.FS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrCorrupted, err)
	}

	nextID, docs, err := decodeCollection(data)
	if err != nil {
		return nil, err
	}

	db.logf("loaded collection", "collection", name, "path", path, "documents", len(docs), "next_id", nextID)

	return newCollection(name, path, nextID, docs), nil
}

// createCollection writes the empty shape to a file that must not exist yet.
// O_EXCL catches a file that appeared since the existence check.
func (db *DB) createCollection(name, path string) (*Collection, error) {
	data, err := encodeCollection(1, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreate, err)
	}

	file, err := db.cfg.FS.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreate, err)
	}

	_, writeErr := file.Write(data)
	if writeErr == nil {
		writeErr = file.Sync()
	}

	closeErr := file.Close()

	err = errors.Join(writeErr, closeErr)
	if err != nil {
		// Leave no half-written file behind; it would read as corrupted.
		removeErr := db.cfg.FS.Remove(path)

		return nil, fmt.Errorf("%w: %w", ErrCreate, errors.Join(err, removeErr))
	}

	db.logf("created collection file", "collection", name, "path", path)

	return newCollection(name, path, 1, nil), nil
}

func (db *DB) saveLocked(c *Collection) error {
	wrote, err := c.flush(func(data []byte) error {
		return db.cfg.FS.WriteFileAtomic(c.path, data, filePerm)
	})
	if err != nil {
		return withContext(fmt.Errorf("%w: %w", ErrSave, err), c.name, c.path)
	}

	if wrote {
		db.logf("saved collection", "collection", c.name, "path", c.path)
	}

	return nil
}

func (db *DB) saveAllLocked() error {
	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}

	slices.Sort(names)

	for _, name := range names {
		err := db.saveLocked(db.collections[name])
		if err != nil {
			return err
		}
	}

	return nil
}

// logf emits a diagnostic when the session was opened verbose.
func (db *DB) logf(msg string, args ...any) {
	if db.verbose {
		db.cfg.Logger.Info(msg, args...)
	}
}
