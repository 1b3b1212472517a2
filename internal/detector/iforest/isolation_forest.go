// Package iforest implements the isolation engine: an ensemble of random
// axis-aligned partition trees scoring how easily a record is isolated.
package iforest

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/logaware/backend/internal/detector"
	"github.com/logaware/backend/internal/models"
)

const (
	// AutoOffset is the automatic verdict threshold: score > 0.5 is an outlier.
	AutoOffset = 0.5

	// NeutralScore is assigned when a batch is too small to build trees.
	NeutralScore = 0.5

	eulerGamma = 0.5772156649015329
)

// isolationTree is one node of a partition tree. Leaves have nil children and
// record how many sampled points reached them.
type isolationTree struct {
	splitFeature int
	splitValue   float64
	left         *isolationTree
	right        *isolationTree
	size         int
}

func (t *isolationTree) isLeaf() bool {
	return t.left == nil
}

// Forest is a fitted isolation forest.
type Forest struct {
	trees      []*isolationTree
	sampleSize int
	maxDepth   int
}

// Fit builds cfg.Trees trees over vectors. Every tree draws its sub-sample
// (without replacement) and its splits from its own source, seeded from a
// master source seeded with cfg.Seed, so trees are built concurrently and a
// fixed seed always yields the same forest.
func Fit(ctx context.Context, vectors []models.FeatureVector, cfg detector.Config) (*Forest, error) {
	n := len(vectors)
	sampleSize := cfg.SampleSize
	if sampleSize == 0 {
		sampleSize = detector.DefaultSampleSize
	}
	sampleSize = min(sampleSize, n)

	maxDepth := cfg.MaxDepth
	if maxDepth == 0 {
		maxDepth = int(math.Ceil(math.Log2(float64(max(sampleSize, 2)))))
	}

	f := &Forest{
		trees:      make([]*isolationTree, cfg.Trees),
		sampleSize: sampleSize,
		maxDepth:   maxDepth,
	}
	if n == 0 {
		return f, nil
	}

	master := rand.New(rand.NewSource(cfg.Seed))
	seeds := make([]int64, cfg.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range f.trees {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			sample := sampleIndices(rng, n, sampleSize)
			f.trees[i] = f.buildTree(vectors, sample, 0, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

// sampleIndices draws size distinct indices from [0, n) with a partial
// Fisher-Yates shuffle.
func sampleIndices(rng *rand.Rand, n, size int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < size; i++ {
		j := i + rng.Intn(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:size]
}

// buildTree recursively partitions idx. idx is reordered in place.
func (f *Forest) buildTree(vectors []models.FeatureVector, idx []int, depth int, rng *rand.Rand) *isolationTree {
	if len(idx) <= 1 || depth >= f.maxDepth {
		return &isolationTree{size: len(idx)}
	}

	var (
		dims   [models.NumFeatures]int
		lows   [models.NumFeatures]float64
		highs  [models.NumFeatures]float64
		usable int
	)
	for d := 0; d < models.NumFeatures; d++ {
		lo, hi := featureRange(vectors, idx, d)
		if lo < hi {
			dims[usable] = d
			lows[usable], highs[usable] = lo, hi
			usable++
		}
	}
	// every remaining point is identical
	if usable == 0 {
		return &isolationTree{size: len(idx)}
	}

	pick := rng.Intn(usable)
	feature, lo, hi := dims[pick], lows[pick], highs[pick]
	split := lo + rng.Float64()*(hi-lo)
	if split >= hi {
		split = lo
	}

	// lo <= split < hi, so both sides are non-empty
	p := partition(vectors, idx, feature, split)
	return &isolationTree{
		splitFeature: feature,
		splitValue:   split,
		left:         f.buildTree(vectors, idx[:p], depth+1, rng),
		right:        f.buildTree(vectors, idx[p:], depth+1, rng),
		size:         len(idx),
	}
}

func featureRange(vectors []models.FeatureVector, idx []int, d int) (float64, float64) {
	lo, hi := vectors[idx[0]][d], vectors[idx[0]][d]
	for _, i := range idx[1:] {
		v := vectors[i][d]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// partition moves indices with value <= split to the front and returns the
// boundary.
func partition(vectors []models.FeatureVector, idx []int, feature int, split float64) int {
	p := 0
	for i := range idx {
		if vectors[idx[i]][feature] <= split {
			idx[p], idx[i] = idx[i], idx[p]
			p++
		}
	}
	return p
}

// PathLength returns the average isolation depth of v across the forest,
// including the c(size) correction at leaves that still hold several points.
func (f *Forest) PathLength(v models.FeatureVector) float64 {
	if len(f.trees) == 0 || f.trees[0] == nil {
		return 0
	}
	var total float64
	for _, tree := range f.trees {
		total += pathLength(tree, v, 0)
	}
	return total / float64(len(f.trees))
}

func pathLength(tree *isolationTree, v models.FeatureVector, depth int) float64 {
	for !tree.isLeaf() {
		if v[tree.splitFeature] <= tree.splitValue {
			tree = tree.left
		} else {
			tree = tree.right
		}
		depth++
	}
	return float64(depth) + AveragePathLength(tree.size)
}

// Score normalises the average path length: 2^(-E[h(v)]/c(sampleSize)).
// Scores near 1 are anomalies, around 0.5 typical.
func (f *Forest) Score(v models.FeatureVector) float64 {
	c := AveragePathLength(f.sampleSize)
	if c == 0 {
		return NeutralScore
	}
	return math.Pow(2, -f.PathLength(v)/c)
}

// AveragePathLength is c(n), the expected path length of an unsuccessful
// search in a binary search tree of n points.
func AveragePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// constant reports whether every vector is identical, in which case no split
// is possible and every record scores exactly NeutralScore.
func constant(vectors []models.FeatureVector) bool {
	for _, v := range vectors[1:] {
		if v != vectors[0] {
			return false
		}
	}
	return true
}

// Engine is the isolation engine. The zero value is ready to use.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() models.EngineName {
	return models.EngineIsolation
}

// Score fits a forest on the batch and scores every record against it.
func (e *Engine) Score(ctx context.Context, vectors []models.FeatureVector, cfg detector.Config) (models.ScoreVector, error) {
	if err := cfg.Validate(); err != nil {
		return models.ScoreVector{}, err
	}
	if err := detector.ValidateVectors(vectors); err != nil {
		return models.ScoreVector{}, err
	}

	scores := make([]float64, len(vectors))
	if len(vectors) <= 1 || constant(vectors) {
		for i := range scores {
			scores[i] = NeutralScore
		}
		return detector.Calibrate(e.Name(), scores, cfg.Contamination, AutoOffset), nil
	}

	forest, err := Fit(ctx, vectors, cfg)
	if err != nil {
		return models.ScoreVector{}, err
	}
	for i, v := range vectors {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return models.ScoreVector{}, err
			}
		}
		scores[i] = forest.Score(v)
	}
	return detector.Calibrate(e.Name(), scores, cfg.Contamination, AutoOffset), nil
}
