// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package upscale implements post-collection statistical corrections
// ("upscaling") applied to counter-type values at serialization time, to
// compensate for sampling bias. Rules are either unconditional ("by
// value") or conditional on a sample carrying a specific label.
package upscale

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/bwoebi/libdatadog-go/internal/intern"
)

// Info describes how a rule corrects the values it applies to.
type Info interface {
	isInfo()
	validate(numSampleTypes int) error
}

// Proportional scales a value linearly: v ← round(v * Scale).
type Proportional struct {
	Scale float64
}

func (Proportional) isInfo() {}

func (p Proportional) validate(int) error {
	if !(p.Scale > 0) || math.IsInf(p.Scale, 0) || math.IsNaN(p.Scale) {
		return errors.New("upscale: proportional scale must be a finite, positive number")
	}
	return nil
}

// Poisson corrects for Poisson-distributed sampling loss using the sum and
// count of a sampled quantity and the configured sampling distance.
type Poisson struct {
	SumOffset        int
	CountOffset      int
	SamplingDistance uint64
}

func (Poisson) isInfo() {}

func (p Poisson) validate(numSampleTypes int) error {
	if p.SumOffset < 0 || p.SumOffset >= numSampleTypes {
		return fmt.Errorf("upscale: poisson sum offset %d out of range [0, %d)", p.SumOffset, numSampleTypes)
	}
	if p.CountOffset < 0 || p.CountOffset >= numSampleTypes {
		return fmt.Errorf("upscale: poisson count offset %d out of range [0, %d)", p.CountOffset, numSampleTypes)
	}
	if p.SamplingDistance == 0 {
		return errors.New("upscale: poisson sampling distance must not be 0")
	}
	return nil
}

// Rule pairs a sorted set of value-vector offsets with the correction to
// apply to each of them.
type Rule struct {
	Offsets []int
	Info    Info
}

// CollisionError reports that a rule's offsets overlap an existing rule
// that could apply to the same observation. It is distinct from the plain
// errors Add returns for out-of-range offsets or invalid Info fields, so
// callers can tell the two failure classes apart with errors.As.
type CollisionError struct {
	Offsets []int
	Reason  string
}

func (e *CollisionError) Error() string { return e.Reason }

// Key identifies the condition under which a Rule applies: a specific
// (label key, label value) pair, or the reserved pair (0, 0) meaning the
// rule applies unconditionally ("by value").
type Key struct {
	LabelKey   intern.StringID
	LabelValue intern.StringID
}

// ByValue is the reserved key denoting an unconditional rule.
var ByValue = Key{}

// LabelPair is a string-valued label present on a sample, used to match
// conditional rules at application time. Numeric-valued labels never
// match, since a Rule's condition is always expressed as two interned
// strings.
type LabelPair struct {
	Key   intern.StringID
	Value intern.StringID
}

// Engine stores upscaling rules and applies them to observation value
// vectors at serialization time.
type Engine struct {
	rules map[Key][]Rule
}

// NewEngine creates an empty Engine.
func NewEngine() *Engine {
	return &Engine{rules: make(map[Key][]Rule)}
}

// Add validates and registers a rule keyed by key, rejecting it with a
// CollisionError-flavored error if it would overlap an existing rule that
// could apply to the same sample, or a validation error if its offsets or
// Info are out of range.
func (e *Engine) Add(key Key, offsets []int, info Info, numSampleTypes int) error {
	for _, o := range offsets {
		if o < 0 || o >= numSampleTypes {
			return fmt.Errorf("upscale: offset %d out of range [0, %d)", o, numSampleTypes)
		}
	}
	if err := info.validate(numSampleTypes); err != nil {
		return err
	}

	if err := e.checkCollisions(key, offsets); err != nil {
		return err
	}

	sorted := append([]int(nil), offsets...)
	sort.Ints(sorted)
	e.rules[key] = append(e.rules[key], Rule{Offsets: sorted, Info: info})
	return nil
}

func (e *Engine) checkCollisions(key Key, offsets []int) error {
	if overlaps(e.rules[key], offsets) {
		return &CollisionError{Offsets: offsets, Reason: fmt.Sprintf("upscale: rule offsets %v collide with an existing rule for the same label", offsets)}
	}

	if key == ByValue {
		// A by-value rule applies to every sample, so it must not
		// overlap any other rule's offsets, regardless of label.
		for k, rules := range e.rules {
			if k == ByValue {
				continue
			}
			if overlaps(rules, offsets) {
				return &CollisionError{Offsets: offsets, Reason: fmt.Sprintf("upscale: by-value rule offsets %v collide with an existing by-label rule", offsets)}
			}
		}
	} else if overlaps(e.rules[ByValue], offsets) {
		return &CollisionError{Offsets: offsets, Reason: fmt.Sprintf("upscale: rule offsets %v collide with an existing by-value rule", offsets)}
	}
	return nil
}

func overlaps(rules []Rule, offsets []int) bool {
	for _, r := range rules {
		for _, a := range r.Offsets {
			for _, b := range offsets {
				if a == b {
					return true
				}
			}
		}
	}
	return false
}

// Apply corrects values in place: unconditional rules always apply, and
// conditional rules apply when labels contains a matching (key, value)
// pair. Collision detection at Add time guarantees no two applicable
// rules ever target the same offset of the same observation.
func (e *Engine) Apply(values []int64, labels []LabelPair) {
	for _, r := range e.rules[ByValue] {
		applyRule(values, r)
	}
	for _, lp := range labels {
		k := Key{LabelKey: lp.Key, LabelValue: lp.Value}
		if k == ByValue {
			continue
		}
		for _, r := range e.rules[k] {
			applyRule(values, r)
		}
	}
}

func applyRule(values []int64, r Rule) {
	switch info := r.Info.(type) {
	case Proportional:
		for _, o := range r.Offsets {
			values[o] = int64(math.Round(float64(values[o]) * info.Scale))
		}
	case Poisson:
		sum := values[info.SumOffset]
		count := values[info.CountOffset]
		if count == 0 || sum == 0 {
			// No observable events to upscale from; leave untouched.
			return
		}
		avg := float64(sum) / float64(count)
		factor := 1 / (1 - math.Exp(-avg/float64(info.SamplingDistance)))
		for _, o := range r.Offsets {
			values[o] = int64(math.Round(float64(values[o]) * factor))
		}
	}
}
