package semantic

import (
	"fmt"
	"math"
)

// Calibration maps cosine similarity in [-1,1] to a 0-100 sub-score.
type Calibration string

const (
	// CalibrationLinear maps cosine linearly: (cos+1)/2*100.
	CalibrationLinear Calibration = "linear"
	// CalibrationSigmoid stretches the useful band around the midpoint.
	CalibrationSigmoid Calibration = "sigmoid"
)

// Default sigmoid parameters.
const (
	DefaultSigmoidK        = 10.0
	DefaultSigmoidMidpoint = 0.5
)

// Config configures the semantic service.
type Config struct {
	Calibration     Calibration
	SigmoidK        float64
	SigmoidMidpoint float64
}

func (c *Config) applyDefaults() {
	if c.Calibration == "" {
		c.Calibration = CalibrationLinear
	}
	if c.SigmoidK == 0 {
		c.SigmoidK = DefaultSigmoidK
	}
	if c.SigmoidMidpoint == 0 {
		c.SigmoidMidpoint = DefaultSigmoidMidpoint
	}
}

func (c *Config) validate() error {
	switch c.Calibration {
	case CalibrationLinear, CalibrationSigmoid:
	default:
		return fmt.Errorf("unknown calibration %q", c.Calibration)
	}
	if c.SigmoidK <= 0 || math.IsNaN(c.SigmoidK) {
		return fmt.Errorf("sigmoid k must be positive, got %v", c.SigmoidK)
	}
	return nil
}

func (c *Config) calibrate(cos float64) float64 {
	var v float64
	switch c.Calibration {
	case CalibrationSigmoid:
		v = 100 / (1 + math.Exp(-c.SigmoidK*(cos-c.SigmoidMidpoint)))
	default:
		v = (cos + 1) / 2 * 100
	}
	return math.Max(0, math.Min(100, v))
}
