package jifdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// On-disk field names.
const (
	fieldNextID = "next_id"
	fieldList   = "list"
)

// fileShape is the on-disk layout of a collection file:
//
//	{
//	  "next_id": 3,
//	  "list": [
//	    {"firstname": "A", "id": 1},
//	    {"firstname": "B", "id": 2}
//	  ]
//	}
type fileShape struct {
	NextID int64      `json:"next_id"`
	List   []Document `json:"list"`
}

// encodeCollection renders the full file contents for a collection.
func encodeCollection(nextID int64, docs []Document) ([]byte, error) {
	if docs == nil {
		docs = []Document{}
	}

	data, err := json.MarshalIndent(fileShape{NextID: nextID, List: docs}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	return append(data, '\n'), nil
}

// decodeCollection parses a collection file and checks its structure.
//
// Any problem is reported as [ErrCorrupted]; nothing is repaired. Besides the
// two required fields, the check enforces the id invariants the rest of the
// package relies on: every entry is an object with a positive integer id,
// ids are unique, and all are below next_id.
//
// Returned documents have their id normalized to int64.
func decodeCollection(data []byte) (int64, []Document, error) {
	top, err := decodeJSON(data)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}

	obj, ok := top.(map[string]any)
	if !ok {
		return 0, nil, fmt.Errorf("%w: want JSON object, got %s", ErrCorrupted, jsonKind(top))
	}

	rawNext, ok := obj[fieldNextID]
	if !ok {
		return 0, nil, fmt.Errorf("%w: missing %q", ErrCorrupted, fieldNextID)
	}

	rawList, ok := obj[fieldList]
	if !ok {
		return 0, nil, fmt.Errorf("%w: missing %q", ErrCorrupted, fieldList)
	}

	nextID, ok := intValue(rawNext)
	if !ok {
		return 0, nil, fmt.Errorf("%w: %q must be a positive integer", ErrCorrupted, fieldNextID)
	}

	items, ok := rawList.([]any)
	if !ok {
		return 0, nil, fmt.Errorf("%w: %q must be an array, got %s", ErrCorrupted, fieldList, jsonKind(rawList))
	}

	docs := make([]Document, 0, len(items))
	seen := make(map[int64]struct{}, len(items))

	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return 0, nil, fmt.Errorf("%w: %s[%d] is %s, want object", ErrCorrupted, fieldList, i, jsonKind(item))
		}

		doc := Document(m)

		id, ok := doc.ID()
		if !ok {
			return 0, nil, fmt.Errorf("%w: %s[%d] has no positive integer id", ErrCorrupted, fieldList, i)
		}

		if id >= nextID {
			return 0, nil, fmt.Errorf("%w: %s[%d] id %d not below %s %d", ErrCorrupted, fieldList, i, id, fieldNextID, nextID)
		}

		if _, dup := seen[id]; dup {
			return 0, nil, fmt.Errorf("%w: %s[%d] duplicate id %d", ErrCorrupted, fieldList, i, id)
		}

		seen[id] = struct{}{}
		doc[IDField] = id
		docs = append(docs, doc)
	}

	return nextID, docs, nil
}

// decodeJSON decodes exactly one JSON value with number preservation.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any

	err := dec.Decode(&v)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file")
		}

		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}

	return v, nil
}
