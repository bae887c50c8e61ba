// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package pprofencoding

// Field tags from profile.proto, the pprof wire schema.
const (
	TagProfileSampleType    = 1
	TagProfileSample        = 2
	TagProfileMapping       = 3
	TagProfileLocation      = 4
	TagProfileFunction      = 5
	TagProfileStringTable   = 6
	TagProfileTimeNanos     = 9
	TagProfileDurationNanos = 10
	TagProfilePeriodType    = 11
	TagProfilePeriod        = 12

	TagValueTypeType = 1
	TagValueTypeUnit = 2

	TagSampleLocationID = 1
	TagSampleValue      = 2
	TagSampleLabel      = 3

	TagLabelKey     = 1
	TagLabelStr     = 2
	TagLabelNum     = 3
	TagLabelNumUnit = 4

	TagMappingID       = 1
	TagMappingStart    = 2
	TagMappingLimit    = 3
	TagMappingOffset   = 4
	TagMappingFilename = 5
	TagMappingBuildID  = 6

	TagLocationID        = 1
	TagLocationMappingID = 2
	TagLocationAddress   = 3
	TagLocationLine      = 4

	TagLineFunctionID = 1
	TagLineLine       = 2

	TagFunctionID         = 1
	TagFunctionName       = 2
	TagFunctionSystemName = 3
	TagFunctionFilename   = 4
	TagFunctionStartLine  = 5
)
