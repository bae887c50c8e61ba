// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package pprofencoding

import (
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildSimpleProfile hand-encodes a minimal pprof message: one sample
// type, one numerically labeled sample with a single frame.
func buildSimpleProfile() []byte {
	var b Buffer

	b.Message(TagProfileSampleType, func(vt *Buffer) {
		vt.Int64(TagValueTypeType, 1) // "samples"
		vt.Int64(TagValueTypeUnit, 2) // "count"
	})

	b.Message(TagProfileFunction, func(f *Buffer) {
		f.Uint64(TagFunctionID, 1)
		f.Int64(TagFunctionName, 3)
		f.Int64(TagFunctionSystemName, 3)
		f.Int64(TagFunctionFilename, 4)
	})

	b.Message(TagProfileLocation, func(l *Buffer) {
		l.Uint64(TagLocationID, 1)
		l.Message(TagLocationLine, func(ln *Buffer) {
			ln.Uint64(TagLineFunctionID, 1)
		})
	})

	b.Message(TagProfileSample, func(s *Buffer) {
		s.Uint64s(TagSampleLocationID, []uint64{1})
		s.Int64s(TagSampleValue, []int64{42})
		s.Message(TagSampleLabel, func(lb *Buffer) {
			lb.Int64(TagLabelKey, 5)
			lb.Int64(TagLabelNum, 101)
		})
	})

	for _, s := range []string{"", "samples", "count", "main", "index.php", "pid"} {
		b.StringAlways(TagProfileStringTable, s)
	}

	b.Int64Opt(TagProfileTimeNanos, 1234)

	return b.Bytes()
}

func TestEncodeParsesWithGooglePprof(t *testing.T) {
	data := buildSimpleProfile()

	prof, err := profile.ParseData(data)
	require.NoError(t, err)

	require.Len(t, prof.SampleType, 1)
	assert.Equal(t, "samples", prof.SampleType[0].Type)
	assert.Equal(t, "count", prof.SampleType[0].Unit)

	require.Len(t, prof.Function, 1)
	assert.Equal(t, "main", prof.Function[0].Name)
	assert.Equal(t, "index.php", prof.Function[0].Filename)

	require.Len(t, prof.Location, 1)
	require.Len(t, prof.Location[0].Line, 1)
	assert.Equal(t, "main", prof.Location[0].Line[0].Function.Name)

	require.Len(t, prof.Sample, 1)
	assert.Equal(t, []int64{42}, prof.Sample[0].Value)
	require.Len(t, prof.Sample[0].NumLabel["pid"], 1)
	assert.Equal(t, int64(101), prof.Sample[0].NumLabel["pid"][0])

	assert.Equal(t, int64(1234), prof.TimeNanos)
}

func TestPackedVarintLengthPatchesAcrossByteBoundary(t *testing.T) {
	values := make([]int64, 64)
	for i := range values {
		values[i] = int64(i) * 1_000_000
	}

	var b Buffer
	b.Message(TagProfileSampleType, func(vt *Buffer) {
		vt.Int64(TagValueTypeType, 1)
		vt.Int64(TagValueTypeUnit, 1)
	})
	b.Message(TagProfileSample, func(s *Buffer) {
		s.Int64s(TagSampleValue, values)
	})
	for _, s := range []string{"", "x"} {
		b.StringAlways(TagProfileStringTable, s)
	}

	prof, err := profile.ParseData(b.Bytes())
	require.NoError(t, err)
	require.Len(t, prof.Sample, 1)
	assert.Equal(t, values, prof.Sample[0].Value)
}

func TestOptionalFieldsOmitZero(t *testing.T) {
	var b Buffer
	b.Int64Opt(TagProfileTimeNanos, 0)
	assert.Empty(t, b.Bytes())

	b.Uint64Opt(TagMappingStart, 0)
	assert.Empty(t, b.Bytes())

	b.Bool(TagMappingStart, false)
	assert.Empty(t, b.Bytes())
}
