package models

import (
	"fmt"
	"math"
	"time"
)

// Sentinel values for fields of a line that does not match the access-log grammar.
const (
	UnknownAddress = "unknown"
	UnknownMethod  = "unknown"
)

// LogRecord is one parsed input line. It is never mutated after parsing.
type LogRecord struct {
	Index        int        `json:"index"`
	Raw          string     `json:"rawLog"`
	Address      string     `json:"ip"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	TimestampRaw string     `json:"timestampRaw,omitempty"`
	Method       string     `json:"method"`
	Path         string     `json:"path,omitempty"`
	Protocol     string     `json:"protocol,omitempty"`
	Status       int        `json:"status"`
	Size         int64      `json:"size"`
	Matched      bool       `json:"matched"`
}

// Feature column positions. The order is part of the engines' contract.
const (
	FeatLen = iota
	FeatDigits
	FeatUpper
	FeatSpecial
	FeatSQL
	FeatPathTraversal
	FeatScriptTag
	FeatStatus
	FeatSize
	FeatMethodGET
	FeatMethodPOST

	NumFeatures
)

// FeatureNames are the column names of a FeatureVector, in order.
var FeatureNames = [NumFeatures]string{
	"len",
	"num_digits",
	"num_upper",
	"num_special",
	"has_sql",
	"has_path_traversal",
	"has_script_tag",
	"status",
	"size",
	"method_GET",
	"method_POST",
}

// FeatureVector is the fixed-schema numeric summary of one LogRecord.
type FeatureVector [NumFeatures]float64

// Validate reports the first non-finite or negative value.
func (v FeatureVector) Validate() error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("feature %s is not finite (%v)", FeatureNames[i], x)
		}
		if x < 0 {
			return fmt.Errorf("feature %s is negative (%v)", FeatureNames[i], x)
		}
	}
	return nil
}

// Flag reports whether a boolean feature is set.
func (v FeatureVector) Flag(i int) bool {
	return v[i] != 0
}

// Map returns the vector keyed by column name.
func (v FeatureVector) Map() map[string]float64 {
	m := make(map[string]float64, NumFeatures)
	for i, name := range FeatureNames {
		m[name] = v[i]
	}
	return m
}
