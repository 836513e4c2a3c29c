// Package subspace builds and calibrates the detectors used by the scanner:
// a low-rank orthonormal basis per cluster of similar templates, and a
// normalized correlation template per singleton.
//
// A basis is the leading left singular vectors of the matrix whose columns
// are the cluster's aligned member waveforms. Its detection statistic is the
// fraction of a window's energy captured by the basis, so it lies in [0,1].
package subspace

import (
	"context"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/tphakala/seisnet-go/internal/cluster"
	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

const componentName = "subspace"

// Basis is the calibrated subspace detector of one cluster.
type Basis struct {
	ClusterID      string
	Station        string
	Members        []string    // contributing template ids, ascending
	Excluded       []string    // members dropped by self-validation
	Vectors        [][]float64 // Rank orthonormal vectors, descending singular value
	SingularValues []float64   // all singular values of the member matrix
	Rank           int
	Normalized     bool
	SampleRate     float64
	ReferencePeak  float64       // mean peak amplitude of contributing members
	PickOffset     time.Duration // pick time relative to window start
	Calibration    Calibration
}

// SourceID implements the scanner source interface.
func (b *Basis) SourceID() string { return b.ClusterID }

// SourceKind implements the scanner source interface.
func (b *Basis) SourceKind() detection.SourceKind { return detection.KindSubspace }

// WindowLength is the number of samples per detection window.
func (b *Basis) WindowLength() int {
	if len(b.Vectors) == 0 {
		return 0
	}
	return len(b.Vectors[0])
}

// Rate is the sample rate the basis was built at.
func (b *Basis) Rate() float64 { return b.SampleRate }

// DetectionThreshold is the calibrated threshold.
func (b *Basis) DetectionThreshold() float64 { return b.Calibration.Threshold }

// ReferenceAmplitude is used for relative magnitudes.
func (b *Basis) ReferenceAmplitude() float64 { return b.ReferencePeak }

// Offset is the pick offset within the window.
func (b *Basis) Offset() time.Duration { return b.PickOffset }

// Statistic scores one window.
func (b *Basis) Statistic(window []float64) float64 {
	return Statistic(b.Vectors, window, b.Normalized)
}

// StatisticRange bounds the statistic.
func (b *Basis) StatisticRange() (lo, hi float64) { return 0, 1 }

// Singleton is the correlation detector of an ungrouped template.
type Singleton struct {
	TemplateID    string
	Station       string
	Waveform      []float64 // demeaned, unit norm
	SampleRate    float64
	ReferencePeak float64
	PickOffset    time.Duration
	Calibration   Calibration
}

// SourceID implements the scanner source interface.
func (s *Singleton) SourceID() string { return s.TemplateID }

// SourceKind implements the scanner source interface.
func (s *Singleton) SourceKind() detection.SourceKind { return detection.KindSingleton }

// WindowLength is the template length in samples.
func (s *Singleton) WindowLength() int { return len(s.Waveform) }

// Rate is the sample rate of the template.
func (s *Singleton) Rate() float64 { return s.SampleRate }

// DetectionThreshold is the calibrated threshold. In false alarm mode it can
// be negative.
func (s *Singleton) DetectionThreshold() float64 { return s.Calibration.Threshold }

// ReferenceAmplitude is used for relative magnitudes.
func (s *Singleton) ReferenceAmplitude() float64 { return s.ReferencePeak }

// Offset is the pick offset within the window.
func (s *Singleton) Offset() time.Duration { return s.PickOffset }

// StatisticRange bounds the correlation coefficient.
func (s *Singleton) StatisticRange() (lo, hi float64) { return -1, 1 }

// Statistic is the correlation coefficient of the window with the template.
func (s *Singleton) Statistic(window []float64) float64 {
	return Correlation(s.Waveform, window)
}

// Builder constructs bases and singletons.
type Builder struct {
	cfg Config
	log logger.Logger
}

// NewBuilder validates cfg and returns a Builder. A nil logger discards output.
func NewBuilder(cfg Config, log logger.Logger) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg, log: logger.OrDiscard(log).Module(componentName)}, nil
}

// Build computes and calibrates the basis of c from its members' aligned
// waveforms, keyed by template id. noise holds noise-only windows used for
// calibration; windows of the wrong length or with gaps are ignored.
func (b *Builder) Build(ctx context.Context, c *cluster.Cluster, waveforms map[string]*waveform.Waveform, noise [][]float64) (*Basis, error) {
	if c == nil || len(c.Members) == 0 {
		return nil, b.algorithmError("", "empty cluster")
	}

	members := slices.Clone(c.Members)
	slices.Sort(members)

	traces, rate, err := b.collect(c.ID, members, waveforms)
	if err != nil {
		return nil, err
	}

	vectors, values, rank, err := b.decompose(c.ID, traces)
	if err != nil {
		return nil, err
	}

	var excluded []string
	if b.cfg.Validation.Enabled {
		var kept []string
		var keptTraces [][]float64
		for i, id := range members {
			ratio := Statistic(vectors, traces[i], b.cfg.Normalize)
			if ratio < b.cfg.Validation.MinSimilarity {
				excluded = append(excluded, id)
				b.log.Warn("member excluded by self-validation",
					logger.String("cluster", c.ID),
					logger.String("template", id),
					logger.Float64("ratio", ratio))
				continue
			}
			kept = append(kept, id)
			keptTraces = append(keptTraces, traces[i])
		}

		if len(kept) == 0 {
			return nil, b.algorithmError(c.ID, "self-validation excluded every member of cluster %s", c.ID)
		}
		if len(excluded) > 0 {
			members, traces = kept, keptTraces
			vectors, values, rank, err = b.decompose(c.ID, traces)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).Component(componentName).Context("cluster", c.ID).Build()
	}

	basis := &Basis{
		ClusterID:      c.ID,
		Station:        c.Station,
		Members:        members,
		Excluded:       excluded,
		Vectors:        vectors,
		SingularValues: values,
		Rank:           rank,
		Normalized:     b.cfg.Normalize,
		SampleRate:     rate,
		ReferencePeak:  meanPeak(traces),
	}

	basis.Calibration, err = calibrate(b.cfg.Calibration, basis.Statistic, basis.WindowLength(), noise, 0, 1)
	if err != nil {
		return nil, err
	}

	b.log.Debug("basis built",
		logger.String("cluster", c.ID),
		logger.Int("members", len(members)),
		logger.Int("rank", rank),
		logger.Float64("threshold", basis.Calibration.Threshold),
		logger.Int("noise_windows", basis.Calibration.NoiseWindows))

	return basis, nil
}

// BuildSingleton prepares and calibrates the correlation detector of one
// ungrouped template.
func (b *Builder) BuildSingleton(ctx context.Context, templateID string, w *waveform.Waveform, noise [][]float64) (*Singleton, error) {
	if w == nil || w.Len() == 0 {
		return nil, b.dataError(templateID, "template %s has no waveform", templateID)
	}
	if waveform.HasGaps(w.Samples) {
		return nil, b.dataError(templateID, "template %s contains gaps", templateID)
	}
	normalized, ok := unitNormalized(w.Samples)
	if !ok {
		return nil, b.algorithmError(templateID, "template %s has zero variance", templateID)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).Component(componentName).Context("template", templateID).Build()
	}

	s := &Singleton{
		TemplateID:    templateID,
		Station:       w.Station,
		Waveform:      normalized,
		SampleRate:    w.SampleRate,
		ReferencePeak: waveform.Peak(w.Samples),
	}

	var err error
	s.Calibration, err = calibrate(b.cfg.Calibration, s.Statistic, len(normalized), noise, -1, 1)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *Builder) collect(clusterID string, members []string, waveforms map[string]*waveform.Waveform) ([][]float64, float64, error) {
	traces := make([][]float64, len(members))
	var rate float64
	for i, id := range members {
		w, ok := waveforms[id]
		if !ok || w == nil || w.Len() == 0 {
			return nil, 0, b.dataError(clusterID, "cluster %s: missing waveform for template %s", clusterID, id)
		}
		if i == 0 {
			rate = w.SampleRate
		}
		if w.SampleRate != rate {
			return nil, 0, b.dataError(clusterID, "cluster %s: template %s sample rate %v differs from %v", clusterID, id, w.SampleRate, rate)
		}
		if i > 0 && w.Len() != len(traces[0]) {
			return nil, 0, b.dataError(clusterID, "cluster %s: template %s has %d samples, expected %d", clusterID, id, w.Len(), len(traces[0]))
		}
		if waveform.HasGaps(w.Samples) {
			return nil, 0, b.dataError(clusterID, "cluster %s: template %s contains gaps", clusterID, id)
		}
		traces[i] = w.Samples
	}
	return traces, rate, nil
}

// decompose builds the member matrix, factorizes it and selects the rank.
func (b *Builder) decompose(clusterID string, traces [][]float64) (vectors [][]float64, values []float64, rank int, err error) {
	n, m := len(traces[0]), len(traces)

	a := mat.NewDense(n, m, nil)
	for j, trace := range traces {
		col := trace
		if b.cfg.Normalize {
			var ok bool
			col, ok = unitNormalized(trace)
			if !ok {
				return nil, nil, 0, b.algorithmError(clusterID, "cluster %s: member %d has zero variance", clusterID, j)
			}
		} else if isZero(trace) {
			return nil, nil, 0, b.algorithmError(clusterID, "cluster %s: member %d is all zero", clusterID, j)
		}
		a.SetCol(j, col)
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, nil, 0, b.algorithmError(clusterID, "cluster %s: singular value decomposition did not converge", clusterID)
	}
	values = svd.Values(nil)
	if len(values) == 0 || values[0] == 0 {
		return nil, nil, 0, b.algorithmError(clusterID, "cluster %s: member matrix is all zero", clusterID)
	}

	numerical := numericalRank(values, n, m)
	rank, err = b.selectRank(clusterID, values, m, numerical)
	if err != nil {
		return nil, nil, 0, err
	}

	var u mat.Dense
	svd.UTo(&u)
	vectors = make([][]float64, rank)
	for k := range rank {
		vectors[k] = mat.Col(nil, k, &u)
	}
	return vectors, values, rank, nil
}

func (b *Builder) selectRank(clusterID string, values []float64, members, numerical int) (int, error) {
	switch b.cfg.Rank.Mode {
	case RankFixed:
		k := b.cfg.Rank.Count
		if k > members {
			b.log.Warn("rank clipped to member count",
				logger.String("cluster", clusterID),
				logger.Int("requested", k),
				logger.Int("members", members))
			k = members
		}
		if k > numerical {
			return 0, b.algorithmError(clusterID, "cluster %s is rank deficient: rank %d requested, numerical rank %d",
				clusterID, k, numerical)
		}
		return k, nil
	default:
		return EnergyRank(values, b.cfg.Rank.EnergyFraction, numerical), nil
	}
}

// EnergyRank returns the smallest k whose leading singular values hold at
// least fraction of the total energy, capped at limit.
func EnergyRank(values []float64, fraction float64, limit int) int {
	var total float64
	for _, v := range values {
		total += v * v
	}
	if total == 0 {
		return 0
	}

	const tol = 1e-12
	var cum float64
	for k, v := range values {
		cum += v * v
		if cum/total >= fraction-tol {
			return min(k+1, limit)
		}
	}
	return min(len(values), limit)
}

// numericalRank counts singular values above the LAPACK-style tolerance.
func numericalRank(values []float64, n, m int) int {
	if len(values) == 0 {
		return 0
	}
	tol := float64(max(n, m)) * values[0] * epsilon
	rank := 0
	for _, v := range values {
		if v > tol {
			rank++
		}
	}
	return rank
}

const epsilon = 0x1p-52

func isZero(x []float64) bool {
	for _, v := range x {
		if v != 0 {
			return false
		}
	}
	return true
}

func meanPeak(traces [][]float64) float64 {
	if len(traces) == 0 {
		return 0
	}
	var sum float64
	for _, t := range traces {
		sum += waveform.Peak(t)
	}
	return sum / float64(len(traces))
}

func (b *Builder) dataError(id, format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(componentName).
		Category(errors.CategoryData).
		Context("source", id).
		Build()
}

func (b *Builder) algorithmError(id, format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(componentName).
		Category(errors.CategoryAlgorithm).
		Context("source", id).
		Build()
}

// Orthonormality returns the largest absolute deviation of VᵀV from the
// identity.
func Orthonormality(vectors [][]float64) float64 {
	var worst float64
	for i := range vectors {
		for j := range vectors {
			var dot float64
			for k := range vectors[i] {
				dot += vectors[i][k] * vectors[j][k]
			}
			want := 0.0
			if i == j {
				want = 1
			}
			worst = math.Max(worst, math.Abs(dot-want))
		}
	}
	return worst
}
