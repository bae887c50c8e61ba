// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package pprofencoding is a minimal, allocation-conscious protobuf
// encoder for the pprof wire format (profile.proto). It only implements
// the subset of the wire format pprof actually uses: varints,
// length-delimited bytes/strings, and length-delimited submessages. There
// is no reflection and no dependency on a general-purpose protobuf
// runtime, matching how the profiler's hot path builds its own encoder
// rather than pulling in descriptor-driven marshaling.
package pprofencoding

// wire types, per the protobuf encoding spec.
const (
	wireVarint = 0
	wireBytes  = 2
)

// Buffer accumulates an encoded protobuf message.
type Buffer struct {
	Data []byte
}

// Bytes returns the encoded message built so far.
func (b *Buffer) Bytes() []byte { return b.Data }

// Reset discards any previously encoded content, retaining the backing
// array for reuse.
func (b *Buffer) Reset() { b.Data = b.Data[:0] }

func (b *Buffer) fieldHeader(tag int, wire int) {
	b.varint(uint64(tag)<<3 | uint64(wire))
}

func (b *Buffer) varint(x uint64) {
	for x >= 0x80 {
		b.Data = append(b.Data, byte(x)|0x80)
		x >>= 7
	}
	b.Data = append(b.Data, byte(x))
}

// Int64 writes a required/repeated int64 field unconditionally.
func (b *Buffer) Int64(tag int, v int64) {
	b.fieldHeader(tag, wireVarint)
	b.varint(uint64(v))
}

// Int64Opt writes an optional int64 field, omitting it entirely when v is
// the zero value, matching proto2 optional-field semantics.
func (b *Buffer) Int64Opt(tag int, v int64) {
	if v == 0 {
		return
	}
	b.Int64(tag, v)
}

// Uint64 writes a required/repeated uint64 field unconditionally.
func (b *Buffer) Uint64(tag int, v uint64) {
	b.fieldHeader(tag, wireVarint)
	b.varint(v)
}

// Uint64Opt writes an optional uint64 field, omitting it when v is zero.
func (b *Buffer) Uint64Opt(tag int, v uint64) {
	if v == 0 {
		return
	}
	b.Uint64(tag, v)
}

// Bool writes a bool field. The pprof schema only ever sets these to
// true; false is the implicit default and is omitted.
func (b *Buffer) Bool(tag int, v bool) {
	if !v {
		return
	}
	b.fieldHeader(tag, wireVarint)
	b.varint(1)
}

// Int64s writes a repeated int64 field using protobuf's packed encoding:
// one length-delimited run of varints rather than one tag per element.
// pprof's Sample.value and Sample.label_id use this encoding.
func (b *Buffer) Int64s(tag int, vs []int64) {
	if len(vs) == 0 {
		return
	}
	b.fieldHeader(tag, wireBytes)
	start := len(b.Data)
	b.Data = append(b.Data, 0) // placeholder, patched below
	contentStart := len(b.Data)
	for _, v := range vs {
		b.varint(uint64(v))
	}
	b.patchLength(start, contentStart)
}

// Uint64s writes a repeated uint64 field using packed encoding, as used
// for pprof's Sample.location_id.
func (b *Buffer) Uint64s(tag int, vs []uint64) {
	if len(vs) == 0 {
		return
	}
	b.fieldHeader(tag, wireBytes)
	start := len(b.Data)
	b.Data = append(b.Data, 0)
	contentStart := len(b.Data)
	for _, v := range vs {
		b.varint(v)
	}
	b.patchLength(start, contentStart)
}

// patchLength rewrites the single-byte length placeholder written at
// lengthPos to the true encoded length of the packed content, growing it
// to a multi-byte varint in place when the length doesn't fit in a byte.
func (b *Buffer) patchLength(lengthPos, contentStart int) {
	n := len(b.Data) - contentStart
	if n < 0x80 {
		b.Data[lengthPos] = byte(n)
		return
	}
	// Rare in practice (pprof messages are small), but handle it
	// correctly: re-encode the varint length and splice it in.
	var lenBuf []byte
	x := uint64(n)
	for x >= 0x80 {
		lenBuf = append(lenBuf, byte(x)|0x80)
		x >>= 7
	}
	lenBuf = append(lenBuf, byte(x))

	content := append([]byte(nil), b.Data[contentStart:]...)
	b.Data = append(b.Data[:lengthPos], lenBuf...)
	b.Data = append(b.Data, content...)
}

// StringAlways writes a length-delimited string field even when empty,
// which the pprof string table requires (it must emit "" at index 0 as a
// genuine, present entry).
func (b *Buffer) StringAlways(tag int, s string) {
	b.fieldHeader(tag, wireBytes)
	b.varint(uint64(len(s)))
	b.Data = append(b.Data, s...)
}

// Message encodes a nested, length-delimited submessage built by build
// and appends it under tag.
func (b *Buffer) Message(tag int, build func(*Buffer)) {
	var sub Buffer
	build(&sub)
	b.fieldHeader(tag, wireBytes)
	b.varint(uint64(len(sub.Data)))
	b.Data = append(b.Data, sub.Data...)
}
