package detector

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/logaware/backend/internal/models"
)

// MaxContamination is the largest accepted target fraction.
const MaxContamination = 0.5

// Contamination is either automatic or a target fraction in (0, 0.5].
type Contamination struct {
	Fraction float64
}

// Auto selects each engine's fixed automatic offset.
func Auto() Contamination {
	return Contamination{}
}

// Fraction targets the given share of flagged records.
func Fraction(f float64) Contamination {
	return Contamination{Fraction: f}
}

func (c Contamination) IsAuto() bool {
	return c.Fraction == 0
}

func (c Contamination) Validate() error {
	if c.IsAuto() {
		return nil
	}
	if math.IsNaN(c.Fraction) || c.Fraction < 0 || c.Fraction > MaxContamination {
		return fmt.Errorf("contamination must be \"auto\" or in (0, %.1f], got %v", MaxContamination, c.Fraction)
	}
	return nil
}

func (c Contamination) String() string {
	if c.IsAuto() {
		return "auto"
	}
	return strconv.FormatFloat(c.Fraction, 'g', -1, 64)
}

// ParseContamination accepts "auto" (or "") and decimal fractions.
func ParseContamination(s string) (Contamination, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "auto" {
		return Auto(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Contamination{}, fmt.Errorf("invalid contamination %q: %w", s, err)
	}
	c := Fraction(f)
	if f == 0 {
		return c, fmt.Errorf("contamination must be \"auto\" or in (0, %.1f], got 0", MaxContamination)
	}
	return c, c.Validate()
}

// Calibrate turns raw scores (higher = more anomalous) into a ScoreVector.
//
// In automatic mode a record is an outlier when its score exceeds autoOffset.
// With a target fraction c the threshold is the linearly interpolated
// percentile 100*(1-c) of the scores. Both comparisons are strict, so records
// tied at the threshold, and batches with constant scores, are never flagged.
func Calibrate(engine models.EngineName, scores []float64, c Contamination, autoOffset float64) models.ScoreVector {
	threshold := autoOffset
	if !c.IsAuto() && len(scores) > 0 {
		threshold = Percentile(scores, 100*(1-c.Fraction))
	}

	sv := models.ScoreVector{
		Engine:    engine,
		Threshold: threshold,
		Scores:    make([]models.Score, len(scores)),
	}
	for i, s := range scores {
		sv.Scores[i] = models.Score{Outlier: s > threshold, Value: s}
	}
	return sv
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
