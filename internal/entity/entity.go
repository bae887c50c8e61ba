// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package entity implements a deduplicating table for structured, fixed-
// shape values such as pprof Functions, Locations and Mappings. Equal
// values collapse to the same dense offset identifier, and iteration
// yields values in insertion order, which is also identifier order.
package entity

import "github.com/bwoebi/libdatadog-go/internal/table"

// Table deduplicates values of type T by full equality, handing out dense
// uint32 offsets as identifiers. T must be comparable, which every entity
// in the profile data model (Function, Location, Mapping) is: each is a
// small struct of interned string ids and integers.
//
// Unlike the arena-backed table this is ported from, Go values of a
// comparable struct type can be used directly as map keys without needing
// a pointer into owned backing memory, so this table does not need the
// arena-allocate-then-key-by-reference trick: the map simply keys on the
// value itself.
type Table[T comparable] struct {
	items *table.Writer[T]
	ids   map[T]uint32
}

// New creates an empty Table with room for capacity distinct items.
func New[T comparable](capacity uint32) *Table[T] {
	return &Table[T]{
		items: table.NewWriter[T](capacity),
		ids:   make(map[T]uint32, capacity),
	}
}

// Len returns the number of distinct items inserted so far.
func (t *Table[T]) Len() int { return t.items.Len() }

// Insert inserts item if it is not already present, returning its
// identifier either way.
func (t *Table[T]) Insert(item T) uint32 {
	id, _ := t.InsertFull(item)
	return id
}

// InsertFull inserts item like Insert, additionally reporting whether this
// call performed the insertion (true) or item already existed (false).
func (t *Table[T]) InsertFull(item T) (uint32, bool) {
	if id, ok := t.ids[item]; ok {
		return id, false
	}
	id := t.items.Add(item)
	t.ids[item] = id
	return id, true
}

// GetID returns a copy of the item stored at id.
//
// Panics if id does not exist in the table.
func (t *Table[T]) GetID(id uint32) T {
	v, err := t.items.TryFetch(id)
	if err != nil {
		panic(err)
	}
	return v
}

// Iter returns every item in insertion order, matching identifier order.
func (t *Table[T]) Iter() []T { return t.items.Iter() }
