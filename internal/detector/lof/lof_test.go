package lof

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logaware/backend/internal/detector"
	"github.com/logaware/backend/internal/models"
)

func vec(values ...float64) models.FeatureVector {
	var v models.FeatureVector
	copy(v[:], values)
	return v
}

func grid(n int) []models.FeatureVector {
	vectors := make([]models.FeatureVector, 0, n)
	for i := 0; i < n; i++ {
		vectors = append(vectors, vec(float64(i%5), float64(i/5)))
	}
	return vectors
}

func TestNearest_TiesBrokenByIndex(t *testing.T) {
	vectors := []models.FeatureVector{
		vec(0),
		vec(1),
		vec(-1),
		vec(1),
		vec(5),
	}

	hood := nearest(vectors, 0, 3)

	require.Len(t, hood, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{hood[0].index, hood[1].index, hood[2].index})
	assert.Equal(t, 1.0, hood[2].dist)
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 5.0, Distance(vec(0, 0), vec(3, 4)))
	assert.Equal(t, 0.0, Distance(vec(7, 7), vec(7, 7)))
}

func TestFactors_OutlierScoresHighest(t *testing.T) {
	vectors := append(grid(25), vec(50, 50))

	scores, err := Factors(context.Background(), vectors, 5, 2)
	require.NoError(t, err)
	require.Len(t, scores, 26)

	outlier := scores[25]
	for i, s := range scores[:25] {
		assert.Less(t, s, outlier, "record %d", i)
		assert.Less(t, s, AutoOffset, "record %d", i)
	}
	assert.Greater(t, outlier, AutoOffset)
}

func TestFactors_WorkerCountDoesNotChangeResult(t *testing.T) {
	vectors := append(grid(40), vec(9, 1), vec(30, 0))

	one, err := Factors(context.Background(), vectors, 7, 1)
	require.NoError(t, err)
	many, err := Factors(context.Background(), vectors, 7, 8)
	require.NoError(t, err)

	assert.Equal(t, one, many)
}

func TestScore_IdenticalVectorsAreInliers(t *testing.T) {
	vectors := make([]models.FeatureVector, 50)
	for i := range vectors {
		vectors[i] = vec(80, 20, 3, 15, 0, 0, 0, 200, 512, 1, 0)
	}

	for _, c := range []detector.Contamination{detector.Auto(), detector.Fraction(0.1)} {
		cfg := detector.DefaultConfig()
		cfg.Contamination = c

		sv, err := New().Score(context.Background(), vectors, cfg)
		require.NoError(t, err)
		require.Len(t, sv.Scores, 50)
		for _, s := range sv.Scores {
			assert.False(t, s.Outlier)
			assert.Equal(t, 1.0, s.Value)
		}
	}
}

func TestScore_PointBesideCollapsedCluster(t *testing.T) {
	vectors := []models.FeatureVector{vec(0), vec(0), vec(0), vec(0), vec(3)}

	sv, err := New().Score(context.Background(), vectors, detector.Config{
		Neighbors: 2,
		Trees:     1,
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		assert.False(t, sv.Scores[i].Outlier)
	}
	assert.True(t, sv.Scores[4].Outlier)
	assert.Equal(t, MaxRatio, sv.Scores[4].Value)
	assert.False(t, math.IsInf(sv.Scores[4].Value, 0))
}

func TestScore_SmallBatches(t *testing.T) {
	cfg := detector.DefaultConfig()

	sv, err := New().Score(context.Background(), nil, cfg)
	require.NoError(t, err)
	assert.Empty(t, sv.Scores)

	sv, err = New().Score(context.Background(), []models.FeatureVector{vec(1, 2)}, cfg)
	require.NoError(t, err)
	require.Len(t, sv.Scores, 1)
	assert.False(t, sv.Scores[0].Outlier)
	assert.Equal(t, NeutralScore, sv.Scores[0].Value)

	// k=100 is clamped to n-1
	sv, err = New().Score(context.Background(), []models.FeatureVector{vec(1), vec(2), vec(3)}, cfg)
	require.NoError(t, err)
	assert.Len(t, sv.Scores, 3)
}

func TestScore_FractionFlagsTopShare(t *testing.T) {
	vectors := append(grid(45), vec(40, 0), vec(0, 40), vec(60, 60), vec(1, 90), vec(100, 1))
	cfg := detector.DefaultConfig()
	cfg.Neighbors = 10
	cfg.Contamination = detector.Fraction(0.1)

	sv, err := New().Score(context.Background(), vectors, cfg)
	require.NoError(t, err)

	assert.Equal(t, 5, sv.Count())
	for i := 45; i < 50; i++ {
		assert.True(t, sv.Scores[i].Outlier, "record %d", i)
	}
}

func TestScore_RejectsNonFinite(t *testing.T) {
	vectors := []models.FeatureVector{vec(1), vec(math.NaN())}

	_, err := New().Score(context.Background(), vectors, detector.DefaultConfig())
	assert.ErrorIs(t, err, detector.ErrNonFiniteFeature)
}

func TestScore_RejectsBadConfig(t *testing.T) {
	cfg := detector.DefaultConfig()
	cfg.Neighbors = 0

	_, err := New().Score(context.Background(), grid(5), cfg)
	assert.ErrorIs(t, err, detector.ErrInvalidConfig)
}

func TestScore_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Score(ctx, grid(30), detector.DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
}
