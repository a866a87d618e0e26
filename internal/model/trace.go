package model

import "fmt"

// TraceMode selects which kind of observation a trace holds.
type TraceMode string

const (
	// TraceControl traces hit counts at instrumented locations.
	TraceControl TraceMode = "control"
	// TraceData traces values captured at instrumented locations.
	TraceData TraceMode = "data"
)

// ParseTraceModes expands a user supplied mode ("control", "data" or "both").
func ParseTraceModes(value string) ([]TraceMode, error) {
	switch value {
	case string(TraceControl), "line":
		return []TraceMode{TraceControl}, nil
	case string(TraceData):
		return []TraceMode{TraceData}, nil
	case "both", "":
		return []TraceMode{TraceControl, TraceData}, nil
	}

	return nil, fmt.Errorf("unknown trace mode %q", value)
}

// Observations maps an observation point id to its observed count or value.
type Observations map[int]int64

// ClassTrace maps a class name to its observations.
type ClassTrace map[string]Observations

// TraceRecord maps a test name to the classes it observed.
type TraceRecord map[string]ClassTrace

// Lookup returns the observations recorded for class under test, if any.
func (t TraceRecord) Lookup(test, class string) (Observations, bool) {
	classes, ok := t[test]
	if !ok {
		return nil, false
	}

	obs, ok := classes[class]

	return obs, ok
}

// TracePass is the comparison under one mode.
type TracePass struct {
	Mode    TraceMode
	Classes []string
}

// TraceComparison is the outcome of comparing two runs under one or more modes.
type TraceComparison struct {
	RunA    string
	RunB    string
	Passes  []TracePass
	Classes []string // union over every mode, sorted
}
