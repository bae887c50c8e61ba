// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package upscale

import (
	"errors"
	"testing"

	"github.com/bwoebi/libdatadog-go/internal/intern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProportionalByValue(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Add(ByValue, []int{0}, Proportional{Scale: 2.0}, 3))

	values := []int64{1, 10000, 21}
	e.Apply(values, nil)
	assert.Equal(t, []int64{2, 10000, 21}, values)
}

func TestPoissonMatchesReferenceArithmetic(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Add(ByValue, []int{1}, Poisson{SumOffset: 1, CountOffset: 2, SamplingDistance: 10}, 3))

	values := []int64{1, 16, 29}
	e.Apply(values, nil)
	assert.Equal(t, []int64{1, 298, 29}, values)
}

func TestPoissonZeroCountLeavesValuesUnchanged(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Add(ByValue, []int{1}, Poisson{SumOffset: 1, CountOffset: 2, SamplingDistance: 10}, 3))

	values := []int64{1, 16, 0}
	e.Apply(values, nil)
	assert.Equal(t, []int64{1, 16, 0}, values)
}

func TestOverlappingOffsetsOnSameKeyCollide(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Add(ByValue, []int{0, 1}, Proportional{Scale: 2.0}, 3))
	err := e.Add(ByValue, []int{1, 2}, Proportional{Scale: 5.0}, 3)
	require.Error(t, err)

	var collision *CollisionError
	assert.True(t, errors.As(err, &collision), "expected a *CollisionError, got %T", err)
}

func TestDisjointOffsetsOnSameKeyCoexist(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Add(ByValue, []int{0}, Proportional{Scale: 2.0}, 3))
	require.NoError(t, e.Add(ByValue, []int{1}, Proportional{Scale: 5.0}, 3))
}

func TestByValueAndByLabelRulesCollideOnOverlappingOffsets(t *testing.T) {
	e := NewEngine()
	labelKey := intern.StringID(10)
	labelValue := intern.StringID(20)

	require.NoError(t, e.Add(Key{LabelKey: labelKey, LabelValue: labelValue}, []int{0, 1}, Proportional{Scale: 2.0}, 3))
	err := e.Add(ByValue, []int{1}, Proportional{Scale: 2.0}, 3)
	assert.Error(t, err)
}

func TestDistinctLabelValuesOnSameKeyDoNotCollide(t *testing.T) {
	e := NewEngine()
	labelKey := intern.StringID(10)

	require.NoError(t, e.Add(Key{LabelKey: labelKey, LabelValue: intern.StringID(1)}, []int{0}, Proportional{Scale: 2.0}, 3))
	require.NoError(t, e.Add(Key{LabelKey: labelKey, LabelValue: intern.StringID(2)}, []int{0}, Proportional{Scale: 2.0}, 3))
}

func TestInvalidPoissonInfoRejected(t *testing.T) {
	e := NewEngine()
	err := e.Add(ByValue, []int{1}, Poisson{SumOffset: 1, CountOffset: 2, SamplingDistance: 0}, 3)
	assert.Error(t, err)
	var collision *CollisionError
	assert.False(t, errors.As(err, &collision), "invalid Info must not report as a CollisionError")

	err = e.Add(ByValue, []int{1}, Poisson{SumOffset: 42, CountOffset: 2, SamplingDistance: 10}, 3)
	assert.Error(t, err)
	assert.False(t, errors.As(err, &collision), "out-of-range offset must not report as a CollisionError")

	err = e.Add(ByValue, []int{1}, Poisson{SumOffset: 1, CountOffset: 42, SamplingDistance: 10}, 3)
	assert.Error(t, err)
	assert.False(t, errors.As(err, &collision), "out-of-range offset must not report as a CollisionError")
}

func TestOutOfRangeOffsetRejectedAsPlainError(t *testing.T) {
	e := NewEngine()
	err := e.Add(ByValue, []int{5}, Proportional{Scale: 2.0}, 3)
	require.Error(t, err)
	var collision *CollisionError
	assert.False(t, errors.As(err, &collision), "out-of-range offset must not report as a CollisionError")
}

func TestApplyByLabelOnlyWhenMatching(t *testing.T) {
	e := NewEngine()
	key := intern.StringID(5)
	value := intern.StringID(6)
	require.NoError(t, e.Add(Key{LabelKey: key, LabelValue: value}, []int{0}, Proportional{Scale: 3.0}, 2))

	matching := []int64{2, 9}
	e.Apply(matching, []LabelPair{{Key: key, Value: value}})
	assert.Equal(t, []int64{6, 9}, matching)

	nonMatching := []int64{2, 9}
	e.Apply(nonMatching, []LabelPair{{Key: key, Value: intern.StringID(99)}})
	assert.Equal(t, []int64{2, 9}, nonMatching)
}
