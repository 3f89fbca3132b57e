// Package export copies jifdb collections into a SQLite database file.
//
// Each collection becomes one table named after it:
//
//	CREATE TABLE "<name>" (id INTEGER PRIMARY KEY, doc TEXT NOT NULL)
//
// where doc is the document's JSON. A jifdb_collections table records the
// next_id of every exported collection. Re-exporting a collection replaces
// its table.
package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/calvinalkan/jifdb/pkg/jifdb"
)

// metaTable records next_id and document count per exported collection.
const metaTable = "jifdb_collections"

// ErrTableName is returned for collections whose name cannot be a table in
// the export: the metadata table, names SQLite reserves ("sqlite_" prefix),
// and names that differ from another exported collection only in case.
var ErrTableName = errors.New("collection name not usable as sqlite table")

// Table is the summary of one exported collection.
type Table struct {
	Name      string
	Documents int
	NextID    int64
}

// Options controls an export.
type Options struct {
	// Collections to export. Empty means every collection file in the root.
	Collections []string

	// Now stamps jifdb_collections.exported_at. Default: time.Now.
	Now func() time.Time
}

// ToSQLite writes the selected collections of db into the SQLite file at path,
// creating it if needed. All tables are written in one transaction: on error
// the SQLite file keeps its previous contents.
//
// Collections that were not open are opened (and stay registered on db);
// unsaved changes in open collections are exported as they are in memory.
func ToSQLite(ctx context.Context, db *jifdb.DB, path string, opts Options) ([]Table, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	names := opts.Collections
	if len(names) == 0 {
		var err error

		names, err = db.ListCollections()
		if err != nil {
			return nil, err
		}
	}

	err := checkTableNames(names)
	if err != nil {
		return nil, err
	}

	snapshots := make([]snapshot, 0, len(names))

	for _, name := range names {
		snap, err := take(db, name)
		if err != nil {
			return nil, err
		}

		snapshots = append(snapshots, snap)
	}

	sqlDB, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}

	defer func() { _ = sqlDB.Close() }()

	return writeTables(ctx, sqlDB, snapshots, opts.Now())
}

// checkTableNames runs before anything is opened or written. SQLite table
// names are case-insensitive.
func checkTableNames(names []string) error {
	seen := make(map[string]string, len(names))

	for _, name := range names {
		folded := strings.ToLower(name)

		switch {
		case folded == metaTable:
			return fmt.Errorf("%w: %q is the export metadata table", ErrTableName, name)
		case strings.HasPrefix(folded, "sqlite_"):
			return fmt.Errorf("%w: %q uses the reserved sqlite_ prefix", ErrTableName, name)
		}

		if other, dup := seen[folded]; dup {
			if other == name {
				continue
			}

			return fmt.Errorf("%w: %q and %q are the same table", ErrTableName, other, name)
		}

		seen[folded] = name
	}

	return nil
}

type snapshot struct {
	name   string
	nextID int64
	docs   []jifdb.Document
}

func take(db *jifdb.DB, name string) (snapshot, error) {
	c, err := db.OpenCollection(name)
	if err != nil {
		return snapshot{}, err
	}

	docs, err := c.Read()
	if err != nil {
		return snapshot{}, fmt.Errorf("read %s: %w", name, err)
	}

	// After Read, so every exported id stays below next_id.
	nextID := c.NextID()

	return snapshot{name: name, nextID: nextID, docs: docs}, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("open sqlite: path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

func writeTables(ctx context.Context, db *sql.DB, snapshots []snapshot, now time.Time) ([]Table, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin export txn: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+metaTable+` (
			name        TEXT PRIMARY KEY,
			next_id     INTEGER NOT NULL,
			documents   INTEGER NOT NULL,
			exported_at INTEGER NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metaTable, err)
	}

	tables := make([]Table, 0, len(snapshots))

	for _, snap := range snapshots {
		err = writeTable(ctx, tx, snap)
		if err != nil {
			return nil, err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO `+metaTable+` (name, next_id, documents, exported_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				next_id = excluded.next_id,
				documents = excluded.documents,
				exported_at = excluded.exported_at`,
			snap.name, snap.nextID, len(snap.docs), now.Unix())
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", snap.name, err)
		}

		tables = append(tables, Table{Name: snap.name, Documents: len(snap.docs), NextID: snap.nextID})
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("commit export txn: %w", err)
	}

	committed = true

	return tables, nil
}

func writeTable(ctx context.Context, tx *sql.Tx, snap snapshot) error {
	table := quoteIdent(snap.name)

	_, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table)
	if err != nil {
		return fmt.Errorf("drop %s: %w", snap.name, err)
	}

	_, err = tx.ExecContext(ctx, "CREATE TABLE "+table+" (id INTEGER PRIMARY KEY, doc TEXT NOT NULL)")
	if err != nil {
		return fmt.Errorf("create %s: %w", snap.name, err)
	}

	insert, err := tx.PrepareContext(ctx, "INSERT INTO "+table+" (id, doc) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", snap.name, err)
	}

	defer func() { _ = insert.Close() }()

	for _, doc := range snap.docs {
		id, _ := doc.ID()

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode %s id %d: %w", snap.name, id, err)
		}

		_, err = insert.ExecContext(ctx, id, string(data))
		if err != nil {
			return fmt.Errorf("insert %s id %d: %w", snap.name, id, err)
		}
	}

	return nil
}

// quoteIdent quotes a collection name for use as a SQL table name.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
