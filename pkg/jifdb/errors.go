package jifdb

import (
	"errors"
	"strings"
)

// Lifecycle errors.
var (
	// ErrAlreadyOpen is returned by [DB.Open] when the database is already open.
	ErrAlreadyOpen = errors.New("database already open")

	// ErrNotOpen is returned by every operation except [DB.Open] while the database is closed.
	ErrNotOpen = errors.New("database not open")

	// ErrInvalidName is returned when a collection name is blank or contains
	// characters outside [A-Za-z0-9 .,_-].
	ErrInvalidName = errors.New("invalid collection name")

	// ErrUnknownCollection is returned when a name is not registered as open.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrCollectionClosed is returned by CRUD calls on a handle whose
	// collection was closed, deleted, or whose database was closed.
	ErrCollectionClosed = errors.New("collection closed")
)

// Filesystem errors. The underlying OS error is wrapped alongside.
var (
	ErrDirectoryCreate = errors.New("create directory failed")
	ErrCreate          = errors.New("create collection file failed")
	ErrSave            = errors.New("save collection failed")
	ErrDelete          = errors.New("delete collection file failed")

	// ErrCorrupted is returned when a collection file exists but is not valid
	// JSON or lacks the required next_id/list shape.
	ErrCorrupted = errors.New("collection file corrupted")
)

// Document errors.
var (
	// ErrNotFound is returned when no document has the requested id.
	// It is a normal negative result, not a system failure.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidDocument is returned by create/update/replace when the
	// payload is not a JSON object.
	ErrInvalidDocument = errors.New("invalid document")
)

// Error is the error type returned by all [DB] operations.
//
// It carries the collection the operation was about, appended to the message:
//
//	save collection failed: open /data/users.json: no space left on device (collection=users path=/data/users.json)
//
// Use [errors.As] to learn which collection failed, for example after a
// [DB.Close] that stopped part way:
//
//	var jErr *jifdb.Error
//	if errors.As(err, &jErr) {
//	    fmt.Println("failed on", jErr.Collection)
//	}
//
// Use [errors.Is] to check the kind:
//
//	if errors.Is(err, jifdb.ErrSave) { ... }
type Error struct {
	// Collection is the collection name, empty for database-level errors.
	Collection string

	// Path is the file or directory the operation touched, if any.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error formats as "<cause> (collection=X path=Y)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	var parts []string

	if e.Collection != "" {
		parts = append(parts, "collection="+e.Collection)
	}

	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}

	if len(parts) == 0 {
		return cause
	}

	suffix := "(" + strings.Join(parts, " ") + ")"

	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// withContext attaches collection context at API boundaries and returns *Error.
// If err is already *Error, missing fields are filled in place.
func withContext(err error, collection string, path string) error {
	if err == nil {
		return nil
	}

	existing := &Error{}
	if errors.As(err, &existing) {
		if existing.Collection == "" && collection != "" {
			existing.Collection = collection
		}

		if existing.Path == "" && path != "" {
			existing.Path = path
		}

		return existing
	}

	return &Error{Collection: collection, Path: path, Err: err}
}
