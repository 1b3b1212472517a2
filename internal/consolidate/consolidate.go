// Package consolidate merges the two engines' binary verdicts into one
// decision per record. It never re-runs an engine.
package consolidate

import (
	"github.com/logaware/backend/internal/models"
)

// Attribute labels which engine(s) flagged a record, independent of policy.
func Attribute(density, isolation bool) models.Attribution {
	switch {
	case density && isolation:
		return models.DetectedByBoth
	case density:
		return models.DetectedByDensity
	case isolation:
		return models.DetectedByIsolation
	}
	return models.DetectedByNone
}

// Decide applies policy to one record's verdicts. Unknown policies fall back
// to union.
func Decide(policy models.Policy, density, isolation bool) bool {
	switch policy {
	case models.PolicyIntersection:
		return density && isolation
	case models.PolicyDensity:
		return density
	case models.PolicyIsolation:
		return isolation
	}
	return density || isolation
}

// Apply consolidates two aligned verdict slices. A record missing from the
// shorter slice counts as an inlier for that engine.
func Apply(policy models.Policy, density, isolation []bool) []models.Verdict {
	n := max(len(density), len(isolation))
	verdicts := make([]models.Verdict, n)
	for i := range verdicts {
		d, iso := at(density, i), at(isolation, i)
		verdicts[i] = models.Verdict{
			Anomaly:    Decide(policy, d, iso),
			DetectedBy: Attribute(d, iso),
		}
	}
	return verdicts
}

func at(verdicts []bool, i int) bool {
	return i < len(verdicts) && verdicts[i]
}

// NewReport consolidates a scored batch under policy.
func NewReport(batch *models.Batch, policy models.Policy) *models.Report {
	return &models.Report{
		Batch:    batch,
		Policy:   policy,
		Verdicts: Apply(policy, batch.Density.Outliers(), batch.Isolation.Outliers()),
	}
}
