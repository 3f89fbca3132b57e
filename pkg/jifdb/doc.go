// Package jifdb is an embedded JSON file database.
//
// A [DB] is opened on a root directory. Each named [Collection] is backed by
// one JSON file, "<root>/<name>.json", holding an auto-increment counter and
// the documents in insertion order:
//
//	{
//	  "next_id": 3,
//	  "list": [
//	    {"firstname": "A", "id": 1},
//	    {"firstname": "B", "id": 2}
//	  ]
//	}
//
// Collections are loaded whole into memory. CRUD calls only mark them dirty;
// the DB writes dirty collections back (full-file rewrite) on explicit save,
// on collection close, on delete, and on database close.
//
//	db := jifdb.New(jifdb.Config{})
//	if err := db.Open("data", jifdb.OpenOptions{}); err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	users, err := db.OpenCollection("users")
//	if err != nil {
//	    return err
//	}
//
//	doc, _ := users.Create(jifdb.Document{"firstname": "A"}) // doc["id"] == int64(1)
package jifdb
