// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package profile

import "github.com/bwoebi/libdatadog-go/internal/intern"

// function, mapping and location are the internal, fully-interned
// representations of their api.* counterparts. They are comparable
// structs, so internal/entity.Table can dedup them by plain value
// equality using a Go map, the same way api.Function/api.Location/
// api.Mapping are hashed and equated by all fields in the source.
type function struct {
	name       intern.StringID
	systemName intern.StringID
	filename   intern.StringID
	startLine  int64
}

type mapping struct {
	memoryStart uint64
	memoryLimit uint64
	fileOffset  uint64
	filename    intern.StringID
	buildID     intern.StringID
}

type location struct {
	mappingID  MappingID
	functionID FunctionID
	address    uint64
	line       int64
}

// label is the interned form of api.Label. Exactly one of isStr or the
// numeric fields is meaningful, matching the source's LabelValue enum;
// Go has no tagged union, so isStr plays that role explicitly instead of
// overloading str == "" (interned string ids are never ambiguous with
// "absent" the way raw strings can be).
type label struct {
	key     intern.StringID
	isStr   bool
	str     intern.StringID
	num     int64
	numUnit intern.StringID
}
