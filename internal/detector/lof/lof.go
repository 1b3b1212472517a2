// Package lof implements the density outlier engine: a from-scratch Local
// Outlier Factor over raw, unscaled feature coordinates.
package lof

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/logaware/backend/internal/detector"
	"github.com/logaware/backend/internal/models"
)

const (
	// AutoOffset is the automatic verdict threshold: LOF > 1.5 is an outlier.
	AutoOffset = 1.5

	// MaxRatio caps a single density ratio so scores stay finite when a
	// neighbour sits in a cluster of exact duplicates.
	MaxRatio = 1e10

	// NeutralScore is assigned when no neighbourhood can be formed.
	NeutralScore = 1.0
)

// Engine is the density outlier engine. The zero value is ready to use.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() models.EngineName {
	return models.EngineDensity
}

// Score computes the local outlier factor of every vector and calibrates
// verdicts according to cfg.Contamination.
func (e *Engine) Score(ctx context.Context, vectors []models.FeatureVector, cfg detector.Config) (models.ScoreVector, error) {
	if err := cfg.Validate(); err != nil {
		return models.ScoreVector{}, err
	}
	if err := detector.ValidateVectors(vectors); err != nil {
		return models.ScoreVector{}, err
	}

	scores, err := Factors(ctx, vectors, cfg.Neighbors, cfg.Workers)
	if err != nil {
		return models.ScoreVector{}, err
	}
	return detector.Calibrate(e.Name(), scores, cfg.Contamination, AutoOffset), nil
}

// Factors returns the local outlier factor of each vector. k is clamped to
// n-1; batches of at most one vector score NeutralScore.
func Factors(ctx context.Context, vectors []models.FeatureVector, k, workers int) ([]float64, error) {
	n := len(vectors)
	scores := make([]float64, n)
	if n <= 1 {
		for i := range scores {
			scores[i] = NeutralScore
		}
		return scores, nil
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: neighbors must be positive, got %d", detector.ErrInvalidConfig, k)
	}
	if k > n-1 {
		k = n - 1
	}

	hoods, err := nearestAll(ctx, vectors, k, workers)
	if err != nil {
		return nil, err
	}

	kdist := make([]float64, n)
	for i, hood := range hoods {
		kdist[i] = hood[k-1].dist
	}

	lrd := make([]float64, n)
	for i, hood := range hoods {
		var sum float64
		for _, nb := range hood {
			sum += math.Max(kdist[nb.index], nb.dist)
		}
		mean := sum / float64(k)
		if mean == 0 {
			lrd[i] = math.Inf(1)
		} else {
			lrd[i] = 1 / mean
		}
	}

	for i, hood := range hoods {
		var sum float64
		for _, nb := range hood {
			sum += densityRatio(lrd[nb.index], lrd[i])
		}
		scores[i] = sum / float64(k)
	}
	return scores, nil
}

// densityRatio is lrd(neighbour)/lrd(point) with infinite densities resolved:
// two collapsed neighbourhoods are alike, a collapsed point is never sparser
// than its neighbour, and a point next to a collapsed cluster gets MaxRatio.
func densityRatio(neighbour, point float64) float64 {
	nInf, pInf := math.IsInf(neighbour, 1), math.IsInf(point, 1)
	switch {
	case nInf && pInf:
		return 1
	case pInf:
		return 0
	case nInf:
		return MaxRatio
	}
	return math.Min(neighbour/point, MaxRatio)
}

type neighbor struct {
	index int
	dist  float64
}

// nearestAll finds the k nearest neighbours of every vector, fanning rows out
// over a bounded set of goroutines. Each row is independent, so the result
// does not depend on scheduling.
func nearestAll(ctx context.Context, vectors []models.FeatureVector, k, workers int) ([][]neighbor, error) {
	n := len(vectors)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	hoods := make([][]neighbor, n)
	g, gctx := errgroup.WithContext(ctx)
	chunk := (n + workers - 1) / workers
	for start := 0; start < n; start += chunk {
		start, end := start, min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				hoods[i] = nearest(vectors, i, k)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hoods, nil
}

// nearest returns the k nearest neighbours of vectors[i] ordered by distance,
// ties broken by lower record index.
func nearest(vectors []models.FeatureVector, i, k int) []neighbor {
	h := make(maxHeap, 0, k)
	for j := range vectors {
		if j == i {
			continue
		}
		cand := neighbor{index: j, dist: Distance(vectors[i], vectors[j])}
		if len(h) < k {
			heap.Push(&h, cand)
			continue
		}
		if closer(cand, h[0]) {
			h[0] = cand
			heap.Fix(&h, 0)
		}
	}

	out := make([]neighbor, len(h))
	for idx := len(h) - 1; idx >= 0; idx-- {
		out[idx] = heap.Pop(&h).(neighbor)
	}
	return out
}

// Distance is the Euclidean distance between two feature vectors.
func Distance(a, b models.FeatureVector) float64 {
	var sum float64
	for d := range a {
		diff := a[d] - b[d]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

func closer(a, b neighbor) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.index < b.index
}

// maxHeap keeps the farthest retained neighbour at the root.
type maxHeap []neighbor

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return closer(h[j], h[i]) }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *maxHeap) Push(x any) {
	*h = append(*h, x.(neighbor))
}

func (h *maxHeap) Pop() any {
	old := *h
	last := old[len(old)-1]
	*h = old[:len(old)-1]
	return last
}
