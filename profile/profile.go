// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

// Package profile implements the profile aggregator: the component that
// ties together string interning, entity deduplication, observation
// aggregation and upscaling into the public surface a host runtime drives
// directly (Add, AddEndpoint, AddUpscalingRule, Reset, Serialize).
package profile

import (
	"errors"
	"sort"
	"time"

	"github.com/bwoebi/libdatadog-go/internal/arena"
	"github.com/bwoebi/libdatadog-go/internal/entity"
	"github.com/bwoebi/libdatadog-go/internal/intern"
	"github.com/bwoebi/libdatadog-go/internal/log"
	"github.com/bwoebi/libdatadog-go/internal/observation"
	"github.com/bwoebi/libdatadog-go/internal/upscale"
	"github.com/bwoebi/libdatadog-go/profile/api"
)

// Reserved label keys and byte-budget estimates used to size each entity's
// backing table from its Limits byte capacity, and to charge its arena for
// every newly deduplicated entry. The estimates are deliberately rough:
// the arena exists to enforce the caller's declared budget, not to track
// exact struct layout, and the backing table.Writer is always sized
// generously enough from the same estimate that it does not itself become
// the limiting factor.
const (
	reservedLocalRootSpanID = "local root span id"
	reservedEndpointLabel   = "trace endpoint"
	reservedTimestampKey    = "end_timestamp_ns"

	avgFunctionBytes = 64
	avgMappingBytes  = 64
	avgLocationBytes = 32
	avgStringBytes   = 32
)

// valueType is the interned form of api.ValueType.
type valueType struct {
	Type intern.StringID
	Unit intern.StringID
}

// period is the interned form of api.Period.
type period struct {
	Type  valueType
	Value int64
}

// Profile accumulates samples ingested via Add, deduplicating functions,
// locations, mappings, strings, stack traces and label sets by value, and
// produces a pprof-encoded snapshot via Serialize. A Profile is
// single-writer: Add, AddEndpoint, AddEndpointCount, AddUpscalingRule,
// Reset and Serialize must not be called concurrently with one another.
type Profile struct {
	startTime time.Time
	limits    api.Limits

	sampleTypes []valueType
	period      *period

	functionsArena *arena.Arena
	locationsArena *arena.Arena
	mappingsArena  *arena.Arena
	stringsArena   *arena.Arena

	strings   *intern.Table
	functions *entity.Table[function]
	locations *entity.Table[location]
	mappings  *entity.Table[mapping]
	labels    *entity.Table[label]
	labelSets *seqTable[LabelID]
	stacks    *seqTable[LocationID]

	observations *observation.Store
	upscaling    *upscale.Engine

	localRootSpanIDLabel intern.StringID
	endpointLabel        intern.StringID
	timestampKey         intern.StringID

	endpointMappings map[uint64]intern.StringID
	endpointStats    map[string]int64
}

// New allocates a Profile with the given start time, declared sample
// types, optional sampling period, and per-entity arena byte budgets. The
// four reserved strings are pre-interned in a fixed order so their ids are
// stable for the lifetime of the profile: "", "local root span id",
// "trace endpoint", "end_timestamp_ns".
func New(startTime time.Time, sampleTypes []api.ValueType, per *api.Period, limits api.Limits) (*Profile, error) {
	if limits.FunctionsMem == 0 || limits.LocationsMem == 0 || limits.MappingsMem == 0 || limits.StringsMem == 0 {
		return nil, &ValidationError{Reason: "all four arena limits must be non-zero"}
	}

	functionsArena, err := arena.New(8, int(limits.FunctionsMem))
	if err != nil {
		return nil, &AllocError{Component: "functions", Err: err}
	}
	locationsArena, err := arena.New(8, int(limits.LocationsMem))
	if err != nil {
		return nil, &AllocError{Component: "locations", Err: err}
	}
	mappingsArena, err := arena.New(8, int(limits.MappingsMem))
	if err != nil {
		return nil, &AllocError{Component: "mappings", Err: err}
	}
	stringsArena, err := arena.New(8, int(limits.StringsMem))
	if err != nil {
		return nil, &AllocError{Component: "strings", Err: err}
	}

	p := &Profile{
		startTime: startTime,
		limits:    limits,

		functionsArena: functionsArena,
		locationsArena: locationsArena,
		mappingsArena:  mappingsArena,
		stringsArena:   stringsArena,

		strings:   intern.NewTable(itemCapacity(limits.StringsMem, avgStringBytes)),
		functions: entity.New[function](itemCapacity(limits.FunctionsMem, avgFunctionBytes)),
		locations: entity.New[location](itemCapacity(limits.LocationsMem, avgLocationBytes)),
		mappings:  entity.New[mapping](itemCapacity(limits.MappingsMem, avgMappingBytes)),
		labels:    entity.New[label](256),
		labelSets: newSeqTable[LabelID](256),
		stacks:    newSeqTable[LocationID](1024),

		observations: observation.NewStore(),
		upscaling:    upscale.NewEngine(),

		endpointMappings: make(map[uint64]intern.StringID),
		endpointStats:    make(map[string]int64),
	}

	// The empty string must land at id 0; intern.NewTable already
	// guarantees this for a fresh table, so no explicit call is needed
	// here, but asserting it keeps the invariant visible at the call site
	// that depends on it.
	if empty := p.strings.Insert(""); empty != 0 {
		panic("profile: empty string did not receive id 0")
	}

	p.localRootSpanIDLabel = p.strings.Insert(reservedLocalRootSpanID)
	p.endpointLabel = p.strings.Insert(reservedEndpointLabel)
	p.timestampKey = p.strings.Insert(reservedTimestampKey)

	p.sampleTypes = make([]valueType, len(sampleTypes))
	for i, st := range sampleTypes {
		p.sampleTypes[i] = valueType{Type: p.strings.Insert(st.Type), Unit: p.strings.Insert(st.Unit)}
	}

	if per != nil {
		p.period = &period{
			Type:  valueType{Type: p.strings.Insert(per.Type.Type), Unit: p.strings.Insert(per.Type.Unit)},
			Value: per.Value,
		}
	}

	return p, nil
}

func itemCapacity(bytes uint, avgSize uint) uint32 {
	n := bytes / avgSize
	if n == 0 {
		n = 1
	}
	const maxUint32 = ^uint32(0)
	if n > uint(maxUint32) {
		n = uint(maxUint32)
	}
	return uint32(n)
}

// maxDenseID is the largest value a 32-bit dense identifier can hold. Once
// a table has handed out this many ids, the next insertion would wrap
// back to 0 instead of yielding a fresh, unique one.
const maxDenseID = uint64(^uint32(0))

// checkIDSpace reports an OverflowError if a table already holding count
// distinct items has exhausted the 32-bit dense identifier domain for
// domain, before an insertion that would assign the next id is attempted.
func checkIDSpace(count int, domain string) error {
	if uint64(count) >= maxDenseID {
		return &OverflowError{Domain: domain}
	}
	return nil
}

// internString interns s, reporting an OverflowError rather than
// assigning an id past the 32-bit string identifier domain.
func (p *Profile) internString(s string) (intern.StringID, error) {
	if err := checkIDSpace(p.strings.Len(), "strings"); err != nil {
		return 0, err
	}
	return p.strings.Insert(s), nil
}

func (p *Profile) internFunction(f api.Function) (FunctionID, error) {
	if err := checkIDSpace(p.functions.Len(), "functions"); err != nil {
		return 0, err
	}

	name, err := p.internString(f.Name)
	if err != nil {
		return 0, err
	}
	systemName, err := p.internString(f.SystemName)
	if err != nil {
		return 0, err
	}
	filename, err := p.internString(f.Filename)
	if err != nil {
		return 0, err
	}

	id, inserted := p.functions.InsertFull(function{
		name:       name,
		systemName: systemName,
		filename:   filename,
		startLine:  f.StartLine,
	})
	if inserted {
		if _, err := p.functionsArena.Allocate(avgFunctionBytes); err != nil {
			log.Warn("profile: functions arena exhausted (limit %d bytes)", p.limits.FunctionsMem)
			return 0, &AllocError{Component: "functions", Err: err}
		}
	}
	return FunctionID(id), nil
}

func (p *Profile) internMapping(m api.Mapping) (MappingID, error) {
	if err := checkIDSpace(p.mappings.Len(), "mappings"); err != nil {
		return 0, err
	}

	filename, err := p.internString(m.Filename)
	if err != nil {
		return 0, err
	}
	buildID, err := p.internString(m.BuildID)
	if err != nil {
		return 0, err
	}

	id, inserted := p.mappings.InsertFull(mapping{
		memoryStart: m.MemoryStart,
		memoryLimit: m.MemoryLimit,
		fileOffset:  m.FileOffset,
		filename:    filename,
		buildID:     buildID,
	})
	if inserted {
		if _, err := p.mappingsArena.Allocate(avgMappingBytes); err != nil {
			log.Warn("profile: mappings arena exhausted (limit %d bytes)", p.limits.MappingsMem)
			return 0, &AllocError{Component: "mappings", Err: err}
		}
	}
	return MappingID(id), nil
}

func (p *Profile) internLocation(l api.Location) (LocationID, error) {
	mappingID, err := p.internMapping(l.Mapping)
	if err != nil {
		return 0, err
	}
	functionID, err := p.internFunction(l.Function)
	if err != nil {
		return 0, err
	}

	if err := checkIDSpace(p.locations.Len(), "locations"); err != nil {
		return 0, err
	}

	id, inserted := p.locations.InsertFull(location{
		mappingID:  mappingID,
		functionID: functionID,
		address:    l.Address,
		line:       l.Line,
	})
	if inserted {
		if _, err := p.locationsArena.Allocate(avgLocationBytes); err != nil {
			log.Warn("profile: locations arena exhausted (limit %d bytes)", p.limits.LocationsMem)
			return 0, &AllocError{Component: "locations", Err: err}
		}
	}
	return LocationID(id), nil
}

// Add ingests one sample: validates arity, extracts the reserved
// end_timestamp_ns and local root span id labels, interns everything else,
// builds a canonical label set and a stack trace, and merges the result
// into the observation store.
func (p *Profile) Add(s api.Sample) error {
	if len(s.Values) != len(p.sampleTypes) {
		return &ValidationError{Reason: "sample value arity does not match declared sample types"}
	}

	timestamp, err := p.extractTimestamp(s.Labels)
	if err != nil {
		return err
	}

	labelIDs, err := p.internLabels(s.Labels)
	if err != nil {
		return err
	}
	sort.Slice(labelIDs, func(i, j int) bool { return labelIDs[i] < labelIDs[j] })
	if err := checkIDSpace(p.labelSets.len(), "label-sets"); err != nil {
		return err
	}
	labelSetID := LabelSetID(p.labelSets.insert(labelIDs))

	locationIDs := make([]LocationID, len(s.Locations))
	for i, l := range s.Locations {
		id, err := p.internLocation(l)
		if err != nil {
			return err
		}
		locationIDs[i] = id
	}
	if err := checkIDSpace(p.stacks.len(), "stack-traces"); err != nil {
		return err
	}
	stackID := StackTraceID(p.stacks.insert(locationIDs))

	values := append([]int64(nil), s.Values...)
	p.observations.Add(observation.Key{StackTrace: uint32(stackID), LabelSet: uint32(labelSetID)}, timestamp, values)
	return nil
}

// extractTimestamp finds and validates the end_timestamp_ns label, if
// present, without interning it: timestamps bypass the label set entirely.
func (p *Profile) extractTimestamp(labels []api.Label) (int64, error) {
	for _, l := range labels {
		if l.Key != reservedTimestampKey {
			continue
		}
		if l.Str != "" {
			return 0, &ValidationError{Reason: "the label \"end_timestamp_ns\" must be sent as a number, not a string"}
		}
		if l.Num == 0 {
			return 0, &ValidationError{Reason: "the label \"end_timestamp_ns\" must not be 0"}
		}
		if l.NumUnit != "" {
			return 0, &ValidationError{Reason: "the label \"end_timestamp_ns\" must not carry a unit"}
		}
		return l.Num, nil
	}
	return 0, nil
}

// internLabels interns every label except end_timestamp_ns, validates the
// at-most-one local root span id constraint, and dedups each into a
// LabelID. The returned slice is not yet sorted.
func (p *Profile) internLabels(labels []api.Label) ([]LabelID, error) {
	out := make([]LabelID, 0, len(labels))
	sawLocalRootSpanID := false

	for _, l := range labels {
		if l.Key == reservedTimestampKey {
			continue
		}

		key, err := p.internString(l.Key)
		if err != nil {
			return nil, err
		}
		var internal label
		if l.Str != "" {
			str, err := p.internString(l.Str)
			if err != nil {
				return nil, err
			}
			internal = label{key: key, isStr: true, str: str}
		} else {
			var numUnit intern.StringID
			if l.NumUnit != "" {
				numUnit, err = p.internString(l.NumUnit)
				if err != nil {
					return nil, err
				}
			}
			internal = label{key: key, num: l.Num, numUnit: numUnit}
		}

		if key == p.localRootSpanIDLabel {
			if sawLocalRootSpanID {
				return nil, &ValidationError{Reason: "only one label per sample may have the key \"local root span id\""}
			}
			if l.Str != "" {
				return nil, &ValidationError{Reason: "the label \"local root span id\" must be sent as a number, not a string"}
			}
			if l.Num == 0 {
				return nil, &ValidationError{Reason: "the label \"local root span id\" must not be 0"}
			}
			sawLocalRootSpanID = true
		}

		if err := checkIDSpace(p.labels.Len(), "labels"); err != nil {
			return nil, err
		}
		id := p.labels.Insert(internal)
		out = append(out, LabelID(id))
	}
	return out, nil
}

// AddEndpoint records that span_id maps to endpoint, interning endpoint.
func (p *Profile) AddEndpoint(spanID uint64, endpoint string) error {
	id, err := p.internString(endpoint)
	if err != nil {
		return err
	}
	p.endpointMappings[spanID] = id
	return nil
}

// AddEndpointCount increments the accumulated count for endpoint by delta,
// independent of any per-sample endpoint attachment.
func (p *Profile) AddEndpointCount(endpoint string, delta int64) {
	p.endpointStats[endpoint] += delta
}

// AddUpscalingRule registers a correction applied to the listed value
// offsets at serialization time. Empty labelName/labelValue select the
// by-value (unconditional) rule.
//
// Engine.Add reports two distinct failure classes: out-of-range offsets
// and invalid Info fields are validation failures, while overlapping an
// existing rule's offsets is a collision. They are told apart here with
// errors.As so callers get the error kind spec.md §7 documents for each,
// rather than a single error type for both.
func (p *Profile) AddUpscalingRule(offsets []int, labelName, labelValue string, info upscale.Info) error {
	key := upscale.ByValue
	if labelName != "" || labelValue != "" {
		labelKey, err := p.internString(labelName)
		if err != nil {
			return err
		}
		labelValueID, err := p.internString(labelValue)
		if err != nil {
			return err
		}
		key = upscale.Key{LabelKey: labelKey, LabelValue: labelValueID}
	}
	if err := p.upscaling.Add(key, offsets, info, len(p.sampleTypes)); err != nil {
		var collision *upscale.CollisionError
		if errors.As(err, &collision) {
			log.Warn("profile: rejecting upscaling rule on offsets %v: %v", offsets, err)
			return &CollisionError{Offsets: offsets, Err: err}
		}
		log.Warn("profile: invalid upscaling rule on offsets %v: %v", offsets, err)
		return &ValidationError{Reason: err.Error()}
	}
	return nil
}

// Reset builds a fresh profile with the same sample types, period and
// limits, swaps it in for p, and returns the displaced profile — the one
// that held everything accumulated before this call.
func (p *Profile) Reset(startTime time.Time) (*Profile, error) {
	sampleTypes := make([]api.ValueType, len(p.sampleTypes))
	for i, st := range p.sampleTypes {
		sampleTypes[i] = api.ValueType{Type: p.strings.Get(st.Type), Unit: p.strings.Get(st.Unit)}
	}

	var per *api.Period
	if p.period != nil {
		per = &api.Period{
			Type: api.ValueType{
				Type: p.strings.Get(p.period.Type.Type),
				Unit: p.strings.Get(p.period.Type.Unit),
			},
			Value: p.period.Value,
		}
	}

	fresh, err := New(startTime, sampleTypes, per, p.limits)
	if err != nil {
		return nil, err
	}

	old := new(Profile)
	*old = *p
	*p = *fresh
	return old, nil
}
