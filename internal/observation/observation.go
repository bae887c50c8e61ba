// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package observation aggregates per-sample value vectors, deduplicating
// by (stack trace, label set) for samples with no timestamp, and keeping
// timestamped samples distinct from each other regardless of what stack
// trace or labels they share.
package observation

// Key identifies an aggregation bucket: a specific stack trace observed
// with a specific, canonicalized set of labels.
type Key struct {
	StackTrace uint32
	LabelSet   uint32
}

// Timestamped pairs a Key with a non-zero nanosecond timestamp and the raw
// value vector recorded for that single sample; timestamped samples are
// never merged with one another.
type Timestamped struct {
	Key       Key
	Timestamp int64
	Values    []int64
}

// Store holds the two observation collections described by the profile
// data model: an insertion-ordered, deduplicating aggregate keyed by Key,
// and an append-only list of timestamped samples.
type Store struct {
	order  []Key
	index  map[Key]int
	values [][]int64

	timestamped []Timestamped
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{index: make(map[Key]int)}
}

// Add records one sample's values under key. If timestamp is non-zero, the
// sample is appended individually, keyed by (key, timestamp), bypassing
// aggregation. Otherwise values are summed element-wise into the existing
// aggregate for key, or establish a new one.
//
// values is retained by the Store and must not be modified afterward by
// the caller.
func (s *Store) Add(key Key, timestamp int64, values []int64) {
	if timestamp != 0 {
		s.timestamped = append(s.timestamped, Timestamped{Key: key, Timestamp: timestamp, Values: values})
		return
	}

	if i, ok := s.index[key]; ok {
		existing := s.values[i]
		for j, v := range values {
			existing[j] += v
		}
		return
	}

	s.index[key] = len(s.order)
	s.order = append(s.order, key)
	s.values = append(s.values, values)
}

// Observation is one entry yielded by Iter: either an aggregated sample
// (Timestamp == 0) or a single timestamped sample (Timestamp != 0).
type Observation struct {
	Key       Key
	Timestamp int64
	Values    []int64
}

// Iter yields every observation: first the aggregated samples in the
// order their key was first seen, then the timestamped samples in the
// order they were added.
func (s *Store) Iter() []Observation {
	out := make([]Observation, 0, len(s.order)+len(s.timestamped))
	for i, key := range s.order {
		out = append(out, Observation{Key: key, Values: s.values[i]})
	}
	for _, ts := range s.timestamped {
		out = append(out, Observation{Key: ts.Key, Timestamp: ts.Timestamp, Values: ts.Values})
	}
	return out
}

// NumAggregated reports the number of distinct (untimestamped) aggregation
// buckets recorded so far. Exposed for tests that assert on aggregation
// behavior.
func (s *Store) NumAggregated() int { return len(s.order) }

// NumTimestamped reports the number of distinct timestamps recorded across
// all timestamped samples. Exposed for tests.
func (s *Store) NumTimestamped() int {
	seen := make(map[int64]struct{}, len(s.timestamped))
	for _, ts := range s.timestamped {
		seen[ts.Timestamp] = struct{}{}
	}
	return len(seen)
}
