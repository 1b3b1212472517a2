// Package detector defines the capability shared by the unsupervised
// anomaly engines and the threshold rule they use to turn continuous scores
// into binary verdicts.
package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/logaware/backend/internal/models"
)

var (
	// ErrNonFiniteFeature marks a feature vector holding NaN, an infinity or a
	// negative value. Extraction never produces these, so it indicates a bug
	// upstream rather than bad input.
	ErrNonFiniteFeature = errors.New("non-finite feature value")

	// ErrInvalidConfig marks an out-of-range engine parameter.
	ErrInvalidConfig = errors.New("invalid detector configuration")
)

// Engine scores a batch of feature vectors. Implementations must not retain
// or modify the input slice and must be safe to run concurrently with other
// engines over the same vectors.
type Engine interface {
	Name() models.EngineName
	Score(ctx context.Context, vectors []models.FeatureVector, cfg Config) (models.ScoreVector, error)
}

// Config carries the parameters of both engines.
type Config struct {
	// Neighbors is k for the density engine; clamped to n-1 at score time.
	Neighbors int
	// Trees is the isolation ensemble size.
	Trees int
	// SampleSize is the per-tree sub-sample size; 0 means min(256, n).
	SampleSize int
	// MaxDepth is the isolation tree depth limit; 0 means ceil(log2(sample)).
	MaxDepth int
	// Seed drives every random choice of the isolation engine.
	Seed int64
	// Contamination selects the verdict threshold rule.
	Contamination Contamination
	// Workers bounds parallel tree construction; 0 means GOMAXPROCS.
	Workers int
}

const (
	DefaultNeighbors  = 100
	DefaultTrees      = 100
	DefaultSampleSize = 256
	DefaultSeed       = 42
)

// DefaultConfig returns k=100, 100 trees, seed 42 and
// automatic contamination.
func DefaultConfig() Config {
	return Config{
		Neighbors:     DefaultNeighbors,
		Trees:         DefaultTrees,
		Seed:          DefaultSeed,
		Contamination: Auto(),
	}
}

// Validate rejects parameters that cannot be scored.
func (c Config) Validate() error {
	if c.Neighbors <= 0 {
		return fmt.Errorf("%w: neighbors must be positive, got %d", ErrInvalidConfig, c.Neighbors)
	}
	if c.Trees <= 0 {
		return fmt.Errorf("%w: trees must be positive, got %d", ErrInvalidConfig, c.Trees)
	}
	if c.SampleSize < 0 {
		return fmt.Errorf("%w: sample size must not be negative, got %d", ErrInvalidConfig, c.SampleSize)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("%w: max depth must not be negative, got %d", ErrInvalidConfig, c.MaxDepth)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}
	if err := c.Contamination.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ValidateVectors checks every vector for non-finite values.
func ValidateVectors(vectors []models.FeatureVector) error {
	for i, v := range vectors {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrNonFiniteFeature, i, err)
		}
	}
	return nil
}
