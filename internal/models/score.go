package models

import (
	"fmt"
	"strings"
)

type EngineName string

const (
	EngineDensity   EngineName = "lof"
	EngineIsolation EngineName = "iforest"
)

// Score is one engine's output for one record.
type Score struct {
	Outlier bool    `json:"outlier"`
	Value   float64 `json:"score"`
}

// ScoreVector holds one engine's scores for a whole batch, aligned by record index.
type ScoreVector struct {
	Engine    EngineName `json:"engine"`
	Threshold float64    `json:"threshold"`
	Scores    []Score    `json:"scores"`
}

// Outliers returns the binary verdicts only.
func (sv ScoreVector) Outliers() []bool {
	out := make([]bool, len(sv.Scores))
	for i, s := range sv.Scores {
		out[i] = s.Outlier
	}
	return out
}

// Count returns the number of records flagged as outliers.
func (sv ScoreVector) Count() int {
	n := 0
	for _, s := range sv.Scores {
		if s.Outlier {
			n++
		}
	}
	return n
}

// Attribution names the engine(s) that flagged a record.
type Attribution string

const (
	DetectedByBoth      Attribution = "both"
	DetectedByDensity   Attribution = "density"
	DetectedByIsolation Attribution = "isolation"
	DetectedByNone      Attribution = "none"
)

// Verdict is the consolidated decision for one record.
type Verdict struct {
	Anomaly    bool        `json:"isAnomaly"`
	DetectedBy Attribution `json:"detectedBy"`
}

// Policy selects how the two engines' verdicts are combined.
type Policy string

const (
	PolicyUnion        Policy = "union"
	PolicyIntersection Policy = "intersection"
	PolicyDensity      Policy = "density"
	PolicyIsolation    Policy = "isolation"
)

// Policies lists the supported policies in display order.
var Policies = []Policy{PolicyUnion, PolicyIntersection, PolicyDensity, PolicyIsolation}

// ParsePolicy accepts the canonical policy names and a few aliases.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "union", "either", "or", "any":
		return PolicyUnion, nil
	case "intersection", "both", "and", "all":
		return PolicyIntersection, nil
	case "density", "density-only", "lof":
		return PolicyDensity, nil
	case "isolation", "isolation-only", "iforest":
		return PolicyIsolation, nil
	}
	return "", fmt.Errorf("unknown consolidation policy %q", s)
}
