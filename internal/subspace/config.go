package subspace

import (
	"math"

	"github.com/tphakala/seisnet-go/internal/errors"
)

// RankMode selects how many singular vectors a basis keeps.
type RankMode string

const (
	RankFixed  RankMode = "fixed"  // keep Count vectors
	RankEnergy RankMode = "energy" // keep the fewest vectors reaching EnergyFraction
)

// CalibrationMode selects how the detection threshold is derived.
type CalibrationMode string

const (
	CalibrationFixed CalibrationMode = "fixed" // use the configured threshold
	CalibrationFAR   CalibrationMode = "far"   // quantile of the noise statistic at 1-Pf
)

// Distribution selects how the noise quantile is estimated in FAR mode.
type Distribution string

const (
	DistributionEmpirical Distribution = "empirical"
	DistributionBeta      Distribution = "beta"
)

// RankPolicy is the rank-selection policy.
type RankPolicy struct {
	Mode           RankMode
	Count          int     // fixed mode
	EnergyFraction float64 // energy mode, in (0,1]
}

// ValidationConfig controls member self-validation.
type ValidationConfig struct {
	Enabled       bool
	MinSimilarity float64 // minimum projection-energy ratio for a member to stay
}

// CalibrationConfig controls threshold calibration.
type CalibrationConfig struct {
	Mode           CalibrationMode
	Threshold      float64 // fixed mode threshold, in [0,1]
	FalseAlarmRate float64 // Pf in (0,1) for FAR mode
	Distribution   Distribution
	HistogramBins  int
}

// Config configures basis and singleton construction.
type Config struct {
	Normalize   bool // demean and unit-normalize member waveforms before the SVD
	Rank        RankPolicy
	Validation  ValidationConfig
	Calibration CalibrationConfig
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Normalize:  true,
		Rank:       RankPolicy{Mode: RankEnergy, Count: 1, EnergyFraction: 0.9},
		Validation: ValidationConfig{Enabled: true, MinSimilarity: 0.5},
		Calibration: CalibrationConfig{
			Mode:           CalibrationFAR,
			Threshold:      0.5,
			FalseAlarmRate: 1e-6,
			Distribution:   DistributionBeta,
			HistogramBins:  100,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Rank.Mode {
	case RankFixed:
		if c.Rank.Count <= 0 {
			return errors.NewConfigError(componentName, "subspace rank count %d must be positive", c.Rank.Count)
		}
	case RankEnergy:
		if !inHalfOpenUnit(c.Rank.EnergyFraction) {
			return errors.NewConfigError(componentName, "subspace energy fraction %v must be within (0,1]", c.Rank.EnergyFraction)
		}
	default:
		return errors.NewConfigError(componentName, "unknown rank mode %q", c.Rank.Mode)
	}

	if c.Validation.Enabled && !inUnit(c.Validation.MinSimilarity) {
		return errors.NewConfigError(componentName, "validation min similarity %v must be within [0,1]", c.Validation.MinSimilarity)
	}

	switch c.Calibration.Mode {
	case CalibrationFixed:
		if !inUnit(c.Calibration.Threshold) {
			return errors.NewConfigError(componentName, "calibration threshold %v must be within [0,1]", c.Calibration.Threshold)
		}
	case CalibrationFAR:
		pf := c.Calibration.FalseAlarmRate
		if math.IsNaN(pf) || pf <= 0 || pf >= 1 {
			return errors.NewConfigError(componentName, "false alarm rate %v must be within (0,1)", pf)
		}
		switch c.Calibration.Distribution {
		case DistributionEmpirical, DistributionBeta:
		default:
			return errors.NewConfigError(componentName, "unknown noise distribution %q", c.Calibration.Distribution)
		}
	default:
		return errors.NewConfigError(componentName, "unknown calibration mode %q", c.Calibration.Mode)
	}

	if c.Calibration.HistogramBins < 0 {
		return errors.NewConfigError(componentName, "histogram bins %d must not be negative", c.Calibration.HistogramBins)
	}
	return nil
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func inHalfOpenUnit(v float64) bool {
	return !math.IsNaN(v) && v > 0 && v <= 1
}
