// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package table implements a fixed-capacity, append-only collection shared
// between a single writer and any number of cloneable readers. The writer
// appends items and publishes the new length with a release-store; readers
// check an offset against an acquire-load of that length before touching
// the backing array, so a reader can never observe a torn or partially
// written element.
package table

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrFull describes a table whose capacity is exhausted. No function in
// this package returns it: Add and AddSlice panic when an append would
// exceed the table's capacity.
var ErrFull = errors.New("table: capacity exceeded")

// Table is the shared backing store for a Writer and its Readers. It is not
// meant to be used directly; construct one with New.
type Table[T any] struct {
	data []T
	len  atomic.Uint32
}

// New allocates a Table with room for capacity items. NewWriter wraps a
// fresh Table in a Writer; Readers are obtained from the Writer via Reader.
func New[T any](capacity uint32) *Table[T] {
	return &Table[T]{data: make([]T, capacity)}
}

// Writer appends items to a Table. There must be exactly one Writer per
// Table; concurrent writers are not supported.
type Writer[T any] struct {
	t *Table[T]
}

// Reader offers read-only, concurrency-safe access to a Table shared with
// its Writer. Reader is cheap to copy and safe to hand to other
// goroutines.
type Reader[T any] struct {
	t *Table[T]
}

// NewWriter constructs a Writer over a freshly allocated Table with the
// given capacity.
func NewWriter[T any](capacity uint32) *Writer[T] {
	return &Writer[T]{t: New[T](capacity)}
}

// Len returns the number of items appended so far.
func (w *Writer[T]) Len() int { return int(w.t.len.Load()) }

// Reader returns a new reader handle sharing this Writer's backing Table.
func (w *Writer[T]) Reader() Reader[T] { return Reader[T]{t: w.t} }

// Add appends item, returning the offset it was written at.
//
// Panics if the table's capacity has been exceeded; callers are expected
// to size the table generously enough that this never happens in
// practice, per the single-writer, pre-sized-capacity design of the
// profile aggregator.
func (w *Writer[T]) Add(item T) uint32 {
	offset := w.t.len.Load()
	if int(offset) == len(w.t.data) {
		panic("table: capacity exceeded")
	}
	w.t.data[offset] = item
	// Release-store: published after the element is visible in the backing
	// array, so a reader that observes the new length also observes the
	// element.
	w.t.len.Store(offset + 1)
	return offset
}

// AddSlice appends items as a contiguous run and returns a slice pointing
// into the table's own backing array at that run.
//
// Panics if the table's capacity has been exceeded.
func (w *Writer[T]) AddSlice(items []T) []T {
	offset := w.t.len.Load()
	end := offset + uint32(len(items))
	if end < offset || int(end) > len(w.t.data) {
		panic("table: capacity exceeded")
	}
	copy(w.t.data[offset:end], items)
	w.t.len.Store(end)
	return w.t.data[offset:end:end]
}

// TryFetch returns the element at offset, iff offset is within the
// published length.
func (w *Writer[T]) TryFetch(offset uint32) (T, error) { return w.t.tryFetch(offset) }

// TryFetchRange returns a slice of n elements starting at offset, iff the
// whole range is within the published length.
func (w *Writer[T]) TryFetchRange(offset, n uint32) ([]T, error) {
	return w.t.tryFetchRange(offset, n)
}

// Iter returns every published item, in the order it was appended.
func (w *Writer[T]) Iter() []T {
	n := w.t.len.Load()
	return w.t.data[:n]
}

// TryFetch returns the element at offset, iff offset is within the
// published length observed at call time.
func (r Reader[T]) TryFetch(offset uint32) (T, error) { return r.t.tryFetch(offset) }

// TryFetchRange returns a slice of n elements starting at offset, iff the
// whole range is within the published length observed at call time.
func (r Reader[T]) TryFetchRange(offset, n uint32) ([]T, error) {
	return r.t.tryFetchRange(offset, n)
}

func (t *Table[T]) tryFetch(offset uint32) (T, error) {
	var zero T
	// Acquire-load: pairs with the writer's release-store, so everything
	// written before the length bump is visible here.
	length := t.len.Load()
	if offset < length {
		return t.data[offset], nil
	}
	return zero, fmt.Errorf("table: offset %d is out of bounds (len %d)", offset, length)
}

func (t *Table[T]) tryFetchRange(offset, n uint32) ([]T, error) {
	end := offset + n
	if end < offset {
		return nil, fmt.Errorf("table: offset %d + len %d overflowed", offset, n)
	}
	length := t.len.Load()
	if end > length {
		return nil, fmt.Errorf("table: offset %d is out of bounds (len %d)", offset, length)
	}
	return t.data[offset:end:end], nil
}
