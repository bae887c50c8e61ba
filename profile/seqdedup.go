// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package profile

import (
	"encoding/binary"

	"github.com/bwoebi/libdatadog-go/internal/table"
)

// seqTable deduplicates variable-length sequences of dense ids by full
// value equality, handing out dense uint32 identifiers — the StackTrace
// and LabelSet analogue of internal/entity.Table, which only handles
// fixed-shape comparable values. A []ID is not itself comparable, so it
// cannot be a Go map key directly; seqTable instead keys on a byte string
// built from the sequence's contents, which is comparable and hashable,
// the same structural-equality trick entity.Table gets for free from Go's
// comparable constraint.
type seqTable[ID ~uint32] struct {
	items *table.Writer[[]ID]
	ids   map[string]uint32
}

func newSeqTable[ID ~uint32](capacity uint32) *seqTable[ID] {
	return &seqTable[ID]{
		items: table.NewWriter[[]ID](capacity),
		ids:   make(map[string]uint32, capacity),
	}
}

// insert dedups seq by content, returning its dense id. seq is copied
// before being retained.
func (t *seqTable[ID]) insert(seq []ID) uint32 {
	key := seqKey(seq)
	if id, ok := t.ids[key]; ok {
		return id
	}
	stored := append([]ID(nil), seq...)
	id := t.items.Add(stored)
	t.ids[key] = id
	return id
}

// get returns the sequence stored at id. The returned slice is the
// table's own stored copy, not a fresh one.
//
// Panics if id does not exist in the table.
func (t *seqTable[ID]) get(id uint32) []ID {
	v, err := t.items.TryFetch(id)
	if err != nil {
		panic(err)
	}
	return v
}

func (t *seqTable[ID]) len() int { return t.items.Len() }

// seqKey builds a comparable map key from a sequence of dense ids. Each id
// is encoded as a fixed 4-byte field, so there is no ambiguity between
// different sequences of the same total length.
func seqKey[ID ~uint32](seq []ID) string {
	buf := make([]byte, len(seq)*4)
	for i, id := range seq {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(id))
	}
	return string(buf)
}
