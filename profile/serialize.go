// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package profile

import (
	"math"
	"time"

	"github.com/bwoebi/libdatadog-go/internal/observation"
	"github.com/bwoebi/libdatadog-go/internal/pprofencoding"
	"github.com/bwoebi/libdatadog-go/internal/upscale"
)

// initialPprofBufferSize mirrors the source's choice of starting capacity:
// an analysis of uploaded profile sizes across languages found the
// average tarball at least 18 KiB before compression, so starting a touch
// above that avoids most reallocations without over-committing memory.
const initialPprofBufferSize = 32 * 1024

// EncodedProfile is the sole object that crosses the module boundary on
// the output side: a pprof-encoded buffer plus the window it covers and
// any accumulated endpoint counts.
type EncodedProfile struct {
	Start          time.Time
	End            time.Time
	Buffer         []byte
	EndpointsStats map[string]int64
}

// Serialize builds the pprof-encoded snapshot of everything accumulated so
// far. It does not mutate the profile: observations, entities and strings
// are all read-only during this pass, so Serialize may be called any
// number of times (the source documents "may be called once" as a policy
// on the caller's side, not a restriction this implementation enforces).
func (p *Profile) Serialize(endTime time.Time, duration time.Duration) (EncodedProfile, error) {
	if endTime.IsZero() {
		endTime = time.Now()
	}

	durationNanos := duration.Nanoseconds()
	if durationNanos == 0 {
		d := endTime.Sub(p.startTime)
		if d < 0 {
			d = 0
		}
		durationNanos = clampInt64(d.Nanoseconds())
	}

	var buf pprofencoding.Buffer
	buf.Data = make([]byte, 0, initialPprofBufferSize)

	for _, st := range p.sampleTypes {
		st := st
		buf.Message(pprofencoding.TagProfileSampleType, func(b *pprofencoding.Buffer) {
			b.Int64(pprofencoding.TagValueTypeType, int64(st.Type))
			b.Int64(pprofencoding.TagValueTypeUnit, int64(st.Unit))
		})
	}

	for idx, m := range p.mappings.Iter() {
		id, m := uint64(idx+1), m
		buf.Message(pprofencoding.TagProfileMapping, func(b *pprofencoding.Buffer) {
			b.Uint64(pprofencoding.TagMappingID, id)
			b.Uint64Opt(pprofencoding.TagMappingStart, m.memoryStart)
			b.Uint64Opt(pprofencoding.TagMappingLimit, m.memoryLimit)
			b.Uint64Opt(pprofencoding.TagMappingOffset, m.fileOffset)
			b.Int64Opt(pprofencoding.TagMappingFilename, int64(m.filename))
			b.Int64Opt(pprofencoding.TagMappingBuildID, int64(m.buildID))
		})
	}

	for idx, f := range p.functions.Iter() {
		id, f := uint64(idx+1), f
		buf.Message(pprofencoding.TagProfileFunction, func(b *pprofencoding.Buffer) {
			b.Uint64(pprofencoding.TagFunctionID, id)
			b.Int64Opt(pprofencoding.TagFunctionName, int64(f.name))
			b.Int64Opt(pprofencoding.TagFunctionSystemName, int64(f.systemName))
			b.Int64Opt(pprofencoding.TagFunctionFilename, int64(f.filename))
			b.Int64Opt(pprofencoding.TagFunctionStartLine, f.startLine)
		})
	}

	for idx, l := range p.locations.Iter() {
		id, l := uint64(idx+1), l
		buf.Message(pprofencoding.TagProfileLocation, func(b *pprofencoding.Buffer) {
			b.Uint64(pprofencoding.TagLocationID, id)
			b.Uint64Opt(pprofencoding.TagLocationMappingID, uint64(l.mappingID)+1)
			b.Uint64Opt(pprofencoding.TagLocationAddress, l.address)
			b.Message(pprofencoding.TagLocationLine, func(lb *pprofencoding.Buffer) {
				lb.Uint64(pprofencoding.TagLineFunctionID, uint64(l.functionID)+1)
				lb.Int64Opt(pprofencoding.TagLineLine, l.line)
			})
		})
	}

	for _, obs := range p.observations.Iter() {
		labels, labelPairs := p.translateAndEnrichLabels(obs)

		values := append([]int64(nil), obs.Values...)
		p.upscaling.Apply(values, labelPairs)

		locationIDs := p.stacks.get(obs.Key.StackTrace)
		wireLocationIDs := make([]uint64, len(locationIDs))
		for i, lid := range locationIDs {
			wireLocationIDs[i] = uint64(lid) + 1
		}

		buf.Message(pprofencoding.TagProfileSample, func(b *pprofencoding.Buffer) {
			b.Uint64s(pprofencoding.TagSampleLocationID, wireLocationIDs)
			b.Int64s(pprofencoding.TagSampleValue, values)
			for _, lb := range labels {
				lb := lb
				b.Message(pprofencoding.TagSampleLabel, func(lbuf *pprofencoding.Buffer) {
					lbuf.Int64(pprofencoding.TagLabelKey, int64(lb.key))
					if lb.isStr {
						lbuf.Int64Opt(pprofencoding.TagLabelStr, int64(lb.str))
					} else {
						lbuf.Int64Opt(pprofencoding.TagLabelNum, lb.num)
						lbuf.Int64Opt(pprofencoding.TagLabelNumUnit, int64(lb.numUnit))
					}
				})
			}
		})
	}

	for _, s := range p.strings.Iter() {
		buf.StringAlways(pprofencoding.TagProfileStringTable, s)
	}

	buf.Int64Opt(pprofencoding.TagProfileTimeNanos, clampInt64(p.startTime.UnixNano()))
	buf.Int64Opt(pprofencoding.TagProfileDurationNanos, durationNanos)

	if p.period != nil {
		pt := p.period.Type
		buf.Message(pprofencoding.TagProfilePeriodType, func(b *pprofencoding.Buffer) {
			b.Int64(pprofencoding.TagValueTypeType, int64(pt.Type))
			b.Int64(pprofencoding.TagValueTypeUnit, int64(pt.Unit))
		})
		buf.Int64Opt(pprofencoding.TagProfilePeriod, p.period.Value)
	}

	stats := make(map[string]int64, len(p.endpointStats))
	for k, v := range p.endpointStats {
		stats[k] = v
	}

	return EncodedProfile{
		Start:          p.startTime,
		End:            endTime,
		Buffer:         buf.Bytes(),
		EndpointsStats: stats,
	}, nil
}

// translateAndEnrichLabels converts an observation's label set back into
// wire-ready labels (original labels, sorted by interning order within
// the set — which is also the LabelSet's canonical sort order — followed
// by a synthesized trace-endpoint label when applicable, followed by a
// synthesized end_timestamp_ns label when the observation is
// timestamped), and separately reports the string-valued labels as
// upscale.LabelPairs for rule matching.
func (p *Profile) translateAndEnrichLabels(obs observation.Observation) ([]label, []upscale.LabelPair) {
	ids := p.labelSets.get(obs.Key.LabelSet)
	labels := make([]label, 0, len(ids)+2)
	pairs := make([]upscale.LabelPair, 0, len(ids)+1)

	for _, id := range ids {
		l := p.labels.GetID(uint32(id))
		labels = append(labels, l)
		if l.isStr {
			pairs = append(pairs, upscale.LabelPair{Key: l.key, Value: l.str})
		}
		if l.key == p.localRootSpanIDLabel {
			if endpoint, ok := p.endpointMappings[uint64(l.num)]; ok {
				endpointLabel := label{key: p.endpointLabel, isStr: true, str: endpoint}
				labels = append(labels, endpointLabel)
				pairs = append(pairs, upscale.LabelPair{Key: endpointLabel.key, Value: endpointLabel.str})
			}
		}
	}

	if obs.Timestamp != 0 {
		labels = append(labels, label{key: p.timestampKey, num: obs.Timestamp})
	}

	return labels, pairs
}

func clampInt64(n int64) int64 {
	if n < 0 {
		return math.MaxInt64
	}
	return n
}
