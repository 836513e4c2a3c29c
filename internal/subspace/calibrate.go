package subspace

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

// Histogram counts values in equal-width bins over [Min, Max].
type Histogram struct {
	Min    float64
	Max    float64
	Counts []int
}

// NewHistogram bins values into n bins over [lo, hi]. Values outside the
// range land in the edge bins; NaN is ignored.
func NewHistogram(values []float64, n int, lo, hi float64) *Histogram {
	if n <= 0 || hi <= lo {
		return nil
	}
	h := &Histogram{Min: lo, Max: hi, Counts: make([]int, n)}
	for _, v := range values {
		h.Add(v)
	}
	return h
}

// Add counts one value.
func (h *Histogram) Add(v float64) {
	if h == nil || math.IsNaN(v) {
		return
	}
	n := len(h.Counts)
	i := int(float64(n) * (v - h.Min) / (h.Max - h.Min))
	h.Counts[min(max(i, 0), n-1)]++
}

// Total returns the number of counted values.
func (h *Histogram) Total() int {
	if h == nil {
		return 0
	}
	total := 0
	for _, c := range h.Counts {
		total += c
	}
	return total
}

// Calibration records how a detector threshold was chosen.
type Calibration struct {
	Mode           CalibrationMode
	Threshold      float64
	FalseAlarmRate float64      // Pf target, FAR mode only
	Distribution   Distribution // estimator actually used, FAR mode only
	NoiseWindows   int          // usable noise windows
	BetaAlpha      float64      // fitted shape parameters when the beta estimator was used
	BetaBeta       float64
	Histogram      *Histogram
}

// calibrate derives a threshold from noise statistics. lo and hi bound the
// statistic: [0,1] for subspace bases, [-1,1] for correlation.
func calibrate(cfg CalibrationConfig, detector func([]float64) float64, length int, noise [][]float64, lo, hi float64) (Calibration, error) {
	var stats []float64
	for _, window := range noise {
		if len(window) != length || waveform.HasGaps(window) {
			continue
		}
		stats = append(stats, detector(window))
	}
	slices.Sort(stats)

	cal := Calibration{
		Mode:         cfg.Mode,
		NoiseWindows: len(stats),
	}
	if cfg.HistogramBins > 0 && len(stats) > 0 {
		cal.Histogram = NewHistogram(stats, cfg.HistogramBins, lo, hi)
	}

	if cfg.Mode == CalibrationFixed {
		cal.Threshold = cfg.Threshold
		return cal, nil
	}

	if len(stats) == 0 {
		return cal, errors.Newf("no usable noise windows of %d samples for false alarm calibration", length).
			Component(componentName).
			Category(errors.CategoryData).
			Context("noise_windows", len(noise)).
			Build()
	}

	cal.FalseAlarmRate = cfg.FalseAlarmRate
	p := 1 - cfg.FalseAlarmRate

	if cfg.Distribution == DistributionBeta {
		if alpha, beta, ok := fitBeta(stats, lo, hi); ok {
			q := distuv.Beta{Alpha: alpha, Beta: beta}.Quantile(p)
			cal.Distribution = DistributionBeta
			cal.BetaAlpha = alpha
			cal.BetaBeta = beta
			cal.Threshold = lo + q*(hi-lo)
			return cal, nil
		}
	}

	cal.Distribution = DistributionEmpirical
	cal.Threshold = stat.Quantile(p, stat.Empirical, stats, nil)
	return cal, nil
}

// fitBeta fits a beta distribution to sorted values rescaled from [lo,hi] to
// [0,1] by the method of moments. ok is false when the fit is degenerate.
func fitBeta(sorted []float64, lo, hi float64) (alpha, beta float64, ok bool) {
	if len(sorted) < 2 {
		return 0, 0, false
	}
	scaled := make([]float64, len(sorted))
	for i, v := range sorted {
		scaled[i] = (v - lo) / (hi - lo)
	}

	mean, variance := stat.MeanVariance(scaled, nil)
	if mean <= 0 || mean >= 1 || variance <= 0 || math.IsNaN(variance) {
		return 0, 0, false
	}
	common := mean*(1-mean)/variance - 1
	if common <= 0 {
		return 0, 0, false
	}
	return mean * common, (1 - mean) * common, true
}
