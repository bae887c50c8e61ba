// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package intern implements a string interner that hands out dense,
// monotonically increasing identifiers. The empty string always receives
// identifier 0, so callers may compare against the zero value of StringID
// instead of re-interning "" on every hot path.
package intern

import (
	"fmt"

	"github.com/bwoebi/libdatadog-go/internal/table"
)

// StringID identifies a string that has been interned into a Table. The
// zero value always refers to the empty string.
type StringID uint32

// Table interns strings into dense StringIDs. Insert is total: for any two
// inserts of equal content, the same id is returned. A Table's zero value
// is not ready for use; construct one with NewTable.
//
// Go strings are themselves immutable, garbage-collected views over their
// backing bytes, so unlike the arena-backed string table this is ported
// from, there is no separate byte arena here: the backing table.Writer
// stores the strings directly and they never need copying or an unsafe
// reinterpretation of borrowed bytes to get a stable, long-lived view.
type Table struct {
	strings *table.Writer[string]
	ids     map[string]StringID
}

// NewTable creates an empty Table and immediately interns "" at id 0, per
// the StringID zero-value contract.
func NewTable(capacity uint32) *Table {
	t := &Table{
		strings: table.NewWriter[string](capacity),
		ids:     make(map[string]StringID, capacity),
	}
	id, inserted := t.InsertFull("")
	if id != 0 || !inserted {
		panic("intern: empty string must be the first entry in a fresh table")
	}
	return t
}

// Len returns the number of distinct strings interned so far.
func (t *Table) Len() int { return t.strings.Len() }

// Insert interns s, returning its id. Lookups of a string already present
// never allocate or copy.
func (t *Table) Insert(s string) StringID {
	id, _ := t.InsertFull(s)
	return id
}

// InsertFull interns s like Insert, additionally reporting whether this
// call performed the insertion (true) or the string already existed
// (false).
func (t *Table) InsertFull(s string) (StringID, bool) {
	if id, ok := t.ids[s]; ok {
		return id, false
	}
	offset := t.strings.Add(s)
	id := StringID(offset)
	t.ids[s] = id
	return id, true
}

// Get returns the string associated with id.
//
// Panics if id does not exist in the table; callers within this module
// only ever pass ids that were returned from Insert on the same table, so
// this should never fire outside of a programming error.
func (t *Table) Get(id StringID) string {
	s, err := t.strings.TryFetch(uint32(id))
	if err != nil {
		panic(fmt.Sprintf("intern: string id %d does not exist in the table", id))
	}
	return s
}

// Iter returns every interned string, in insertion order, matching the
// order of their StringIDs.
func (t *Table) Iter() []string { return t.strings.Iter() }

// Reader returns a read-only handle that may be shared with other
// goroutines for concurrent lookups while this Table continues to accept
// inserts.
func (t *Table) Reader() Reader { return Reader{r: t.strings.Reader()} }

// Reader offers concurrency-safe, read-only access to a Table's contents
// from a goroutine other than the one inserting into it.
type Reader struct {
	r table.Reader[string]
}

// TryGet returns the string for id if it has been published, or an error
// if id is not yet visible to this reader.
func (r Reader) TryGet(id StringID) (string, error) { return r.r.TryFetch(uint32(id)) }
