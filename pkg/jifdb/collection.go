package jifdb

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Collection is one named document set held in memory.
//
// CRUD calls change memory only and mark the collection dirty. Nothing is
// written until the owning [DB] saves it: [DB.SaveCollection],
// [DB.CloseCollection], [DB.DeleteCollection] or [DB.Close].
//
// A Collection never touches the filesystem itself. Methods are safe for
// concurrent use.
type Collection struct {
	name string
	path string

	mu     sync.Mutex
	docs   []Document
	nextID int64
	dirty  bool
	closed bool
}

func newCollection(name, path string, nextID int64, docs []Document) *Collection {
	return &Collection{
		name:   name,
		path:   path,
		docs:   docs,
		nextID: nextID,
	}
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Path returns the backing file path.
func (c *Collection) Path() string {
	return c.path
}

// Len returns the number of documents.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.docs)
}

// NextID returns the id the next [Collection.Create] will assign.
func (c *Collection) NextID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.nextID
}

// Dirty reports whether memory has diverged from the last saved state.
func (c *Collection) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dirty
}

// Create assigns the next id to doc and appends it.
//
// Ownership of doc transfers to the collection: its "id" key is overwritten
// with the assigned id and the same map becomes the stored document, which
// is also what Create returns. Callers must not keep mutating it; use
// [Collection.Update] instead.
//
// Returns [ErrInvalidDocument] if doc is nil or holds a value JSON cannot
// encode (NaN, infinities, channels, funcs).
func (c *Collection) Create(doc Document) (Document, error) {
	return c.create(doc, false)
}

// CreateJSON decodes data as a JSON object and creates it. Unlike
// [Collection.Create] it returns a copy of the stored document.
// Returns [ErrInvalidDocument] if data is not a JSON object.
func (c *Collection) CreateJSON(data []byte) (Document, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}

	return c.create(doc, true)
}

func (c *Collection) create(doc Document, copyOut bool) (Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}

	err := checkEncodable(doc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCollectionClosed
	}

	id := c.nextID
	c.nextID++

	doc[IDField] = id
	c.docs = append(c.docs, doc)
	c.dirty = true

	if copyOut {
		return doc.Clone(), nil
	}

	return doc, nil
}

// Read returns a deep copy of all documents in insertion order.
// Mutating the result does not affect the collection.
func (c *Collection) Read() ([]Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCollectionClosed
	}

	out := make([]Document, len(c.docs))
	for i, doc := range c.docs {
		out[i] = doc.Clone()
	}

	return out, nil
}

// ReadID returns a copy of the first document with the given id,
// or [ErrNotFound].
func (c *Collection) ReadID(id int64) (Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCollectionClosed
	}

	idx := c.indexOf(id)
	if idx < 0 {
		return nil, notFound(id)
	}

	return c.docs[idx].Clone(), nil
}

// Update merges the top-level fields of changes into the document with the
// given id and returns a copy of the result. A change to "id" is ignored.
//
// Returns [ErrNotFound] if no document has that id, or [ErrInvalidDocument]
// if changes hold a value JSON cannot encode.
func (c *Collection) Update(id int64, changes Document) (Document, error) {
	if changes == nil {
		return nil, fmt.Errorf("%w: nil changes", ErrInvalidDocument)
	}

	err := checkEncodable(changes)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCollectionClosed
	}

	idx := c.indexOf(id)
	if idx < 0 {
		return nil, notFound(id)
	}

	doc := c.docs[idx]

	for k, v := range changes {
		if k == IDField {
			continue
		}

		doc[k] = cloneValue(v)
	}

	c.dirty = true

	return doc.Clone(), nil
}

// UpdateJSON decodes data as a JSON object and merges it like [Collection.Update].
func (c *Collection) UpdateJSON(id int64, data []byte) (Document, error) {
	changes, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}

	return c.Update(id, changes)
}

// Replace swaps the fields of the document with the given id for a copy
// of doc, keeping the id and its position. Returns a copy of the result.
//
// Returns [ErrNotFound] if no document has that id, or [ErrInvalidDocument]
// if doc holds a value JSON cannot encode.
func (c *Collection) Replace(id int64, doc Document) (Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}

	err := checkEncodable(doc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCollectionClosed
	}

	idx := c.indexOf(id)
	if idx < 0 {
		return nil, notFound(id)
	}

	replacement := doc.Clone()
	replacement[IDField] = id
	c.docs[idx] = replacement
	c.dirty = true

	return replacement.Clone(), nil
}

// ReplaceJSON decodes data as a JSON object and replaces like [Collection.Replace].
func (c *Collection) ReplaceJSON(id int64, data []byte) (Document, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}

	return c.Replace(id, doc)
}

// Delete removes the document with the given id and returns it.
// The id is never reused.
//
// Returns [ErrNotFound] if no document has that id.
func (c *Collection) Delete(id int64) (Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCollectionClosed
	}

	idx := c.indexOf(id)
	if idx < 0 {
		return nil, notFound(id)
	}

	removed := c.docs[idx]
	c.docs = append(c.docs[:idx], c.docs[idx+1:]...)
	c.dirty = true

	return removed, nil
}

// --- Database-facing helpers ---

// flush encodes the collection and hands the bytes to write if dirty.
// The dirty flag is cleared only if write succeeds. The lock is held for the
// whole step so no mutation can slip between encode and clear.
// Reports whether write was called.
func (c *Collection) flush(write func(data []byte) error) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return false, nil
	}

	data, err := encodeCollection(c.nextID, c.docs)
	if err != nil {
		return false, err
	}

	err = write(data)
	if err != nil {
		return true, err
	}

	c.dirty = false

	return true, nil
}

// detach invalidates the handle after its registry entry is gone.
func (c *Collection) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.docs = nil
}

func (c *Collection) indexOf(id int64) int {
	for i, doc := range c.docs {
		if docID, ok := doc.ID(); ok && docID == id {
			return i
		}
	}

	return -1
}

// checkEncodable fails if the file codec could not write doc. Every stored
// document must encode, otherwise each later save of the collection fails.
func checkEncodable(doc Document) error {
	_, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return nil
}

func notFound(id int64) error {
	return fmt.Errorf("%w: id %d", ErrNotFound, id)
}
