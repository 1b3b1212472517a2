package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logaware/backend/internal/models"
)

var cases = []struct {
	density, isolation bool
	label              models.Attribution
}{
	{false, false, models.DetectedByNone},
	{true, false, models.DetectedByDensity},
	{false, true, models.DetectedByIsolation},
	{true, true, models.DetectedByBoth},
}

func TestDecide_Laws(t *testing.T) {
	for _, c := range cases {
		assert.Equal(t, c.density || c.isolation, Decide(models.PolicyUnion, c.density, c.isolation))
		assert.Equal(t, c.density && c.isolation, Decide(models.PolicyIntersection, c.density, c.isolation))
		assert.Equal(t, c.density, Decide(models.PolicyDensity, c.density, c.isolation))
		assert.Equal(t, c.isolation, Decide(models.PolicyIsolation, c.density, c.isolation))
	}
}

func TestAttribute(t *testing.T) {
	for _, c := range cases {
		assert.Equal(t, c.label, Attribute(c.density, c.isolation))
	}
}

func TestApply_AllPolicies(t *testing.T) {
	density := []bool{false, true, false, true}
	isolation := []bool{false, false, true, true}

	want := map[models.Policy][]bool{
		models.PolicyUnion:        {false, true, true, true},
		models.PolicyIntersection: {false, false, false, true},
		models.PolicyDensity:      {false, true, false, true},
		models.PolicyIsolation:    {false, false, true, true},
	}

	for policy, flags := range want {
		verdicts := Apply(policy, density, isolation)
		require.Len(t, verdicts, 4)
		for i, v := range verdicts {
			assert.Equal(t, flags[i], v.Anomaly, "%s record %d", policy, i)
			assert.Equal(t, cases[i].label, v.DetectedBy, "%s record %d", policy, i)
		}
	}
}

func TestApply_Idempotent(t *testing.T) {
	density := []bool{true, false, true, false, false}
	isolation := []bool{false, false, true, true, false}

	for _, policy := range models.Policies {
		assert.Equal(t, Apply(policy, density, isolation), Apply(policy, density, isolation))
	}
}

func TestApply_MismatchedLengths(t *testing.T) {
	verdicts := Apply(models.PolicyUnion, []bool{true}, []bool{false, true})

	require.Len(t, verdicts, 2)
	assert.Equal(t, models.Verdict{Anomaly: true, DetectedBy: models.DetectedByDensity}, verdicts[0])
	assert.Equal(t, models.Verdict{Anomaly: true, DetectedBy: models.DetectedByIsolation}, verdicts[1])
	assert.Empty(t, Apply(models.PolicyUnion, nil, nil))
}

func TestNewReport(t *testing.T) {
	batch := &models.Batch{
		ID:       "abc",
		Records:  []models.LogRecord{{Index: 0}, {Index: 1}, {Index: 2}},
		Features: make([]models.FeatureVector, 3),
		Density: models.ScoreVector{Scores: []models.Score{
			{Outlier: true, Value: 3}, {Value: 1}, {Value: 1},
		}},
		Isolation: models.ScoreVector{Scores: []models.Score{
			{Value: 0.4}, {Value: 0.4}, {Outlier: true, Value: 0.8},
		}},
	}

	union := NewReport(batch, models.PolicyUnion)
	assert.Equal(t, 2, union.Summary().TotalAnomalies)
	assert.InDelta(t, 66.666, union.Summary().AnomalyRate, 1e-2)

	both := NewReport(batch, models.PolicyIntersection)
	assert.Equal(t, 0, both.Summary().TotalAnomalies)
	assert.Empty(t, both.AnomalyRows())

	rows := union.AnomalyRows()
	require.Len(t, rows, 2)
	assert.Equal(t, models.DetectedByDensity, rows[0].DetectedBy)
	assert.Equal(t, 3.0, rows[0].DensityScore)
	assert.Equal(t, models.DetectedByIsolation, rows[1].DetectedBy)
	assert.Equal(t, 2, rows[1].Index)
}
