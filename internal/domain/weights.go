package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
)

// Factor names one soft-scoring component.
type Factor string

// Scoring factors in canonical order.
const (
	FactorSectorOverlap Factor = "sector_overlap"
	FactorSizeFit       Factor = "size_fit"
	FactorTrackRecord   Factor = "track_record"
	FactorESG           Factor = "esg"
	FactorSemantic      Factor = "semantic"
)

// Factors lists every factor in canonical order.
var Factors = []Factor{FactorSectorOverlap, FactorSizeFit, FactorTrackRecord, FactorESG, FactorSemantic}

// WeightTolerance bounds |Σw - 1|.
const WeightTolerance = 1e-6

// Weights maps every factor to its share of the total score.
type Weights map[Factor]float64

// DefaultWeights returns the stock weighting.
func DefaultWeights() Weights {
	return Weights{
		FactorSectorOverlap: 0.25,
		FactorSizeFit:       0.20,
		FactorTrackRecord:   0.20,
		FactorESG:           0.10,
		FactorSemantic:      0.25,
	}
}

// Validate requires exactly the five factors, each in [0,1], summing to 1.
func (w Weights) Validate() error {
	if len(w) != len(Factors) {
		return Validationf("weights must have exactly %d entries, got %d", len(Factors), len(w))
	}
	var sum float64
	for _, f := range Factors {
		v, ok := w[f]
		if !ok {
			return Validationf("weights missing factor %q", f)
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return Validationf("weight %q=%v outside [0,1]", f, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > WeightTolerance {
		return Validationf("weights sum to %.9f, want 1.0", sum)
	}
	return nil
}

// Hash is a stable fingerprint of the weights for cache keys.
func (w Weights) Hash() string {
	h := sha256.New()
	for _, f := range Factors {
		fmt.Fprintf(h, "%s=%s;", f, strconv.FormatFloat(w[f], 'g', -1, 64))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Clone returns a copy.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Normalize rescales non-negative weights to sum to 1. Zero sums return DefaultWeights.
func (w Weights) Normalize() Weights {
	var sum float64
	for _, f := range Factors {
		if w[f] > 0 {
			sum += w[f]
		}
	}
	if sum == 0 {
		return DefaultWeights()
	}
	out := make(Weights, len(Factors))
	for _, f := range Factors {
		v := w[f]
		if v < 0 {
			v = 0
		}
		out[f] = v / sum
	}
	return out
}
