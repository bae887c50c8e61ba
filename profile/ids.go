// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package profile

import "github.com/bwoebi/libdatadog-go/internal/intern"

// Dense identifier types for each interned entity kind. Each is a distinct
// named uint32 type so the compiler rejects passing, say, a FunctionID
// where a LocationID is expected, even though both are structurally
// identical.
type (
	FunctionID   uint32
	LocationID   uint32
	MappingID    uint32
	LabelID      uint32
	LabelSetID   uint32
	StackTraceID uint32
)

// StringID re-exports the string interner's id type so callers outside
// this package never need to import internal/intern directly.
type StringID = intern.StringID
