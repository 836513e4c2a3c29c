// Package scanner slides a detector over continuous data and reports the
// windows whose statistic exceeds the detector's calibrated threshold.
package scanner

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/subspace"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

const (
	componentName = "scanner"

	// cancellation is checked every this many windows
	cancelCheckInterval = 4096

	rateTolerance = 1e-9
)

// GapPolicy decides what happens to windows with too many missing samples.
type GapPolicy string

const (
	GapSkip     GapPolicy = "skip"     // drop the window
	GapZeroFill GapPolicy = "zerofill" // keep the window with its statistic forced to 0
)

// Config controls scanning.
type Config struct {
	Stride             int           // samples between window starts
	MinSeparation      time.Duration // triggers closer than this keep only the local maximum
	GapPolicy          GapPolicy
	GapTolerance       float64 // NaN fraction a window may hold before the gap policy applies
	EstimateMagnitudes bool
	Histogram          bool // collect a histogram of every window statistic
	HistogramBins      int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Stride < 1 {
		return errors.NewConfigError(componentName, "scan stride %d must be at least 1", c.Stride)
	}
	if c.MinSeparation < 0 {
		return errors.NewConfigError(componentName, "minimum separation %v must not be negative", c.MinSeparation)
	}
	switch c.GapPolicy {
	case GapSkip, GapZeroFill:
	default:
		return errors.NewConfigError(componentName, "unknown gap policy %q", c.GapPolicy)
	}
	if math.IsNaN(c.GapTolerance) || c.GapTolerance < 0 || c.GapTolerance > 1 {
		return errors.NewConfigError(componentName, "gap tolerance %v must be within [0,1]", c.GapTolerance)
	}
	if c.Histogram && c.HistogramBins <= 0 {
		return errors.NewConfigError(componentName, "histogram bins %d must be positive", c.HistogramBins)
	}
	return nil
}

// Source is a calibrated detector: a subspace basis or a singleton template.
type Source interface {
	SourceID() string
	SourceKind() detection.SourceKind
	WindowLength() int
	Rate() float64
	DetectionThreshold() float64
	ReferenceAmplitude() float64
	Offset() time.Duration
	Statistic(window []float64) float64
	StatisticRange() (lo, hi float64)
}

// TimeRange limits the window start times scanned. Zero bounds are open.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Result is the output of one scan.
type Result struct {
	Station      string
	SourceID     string
	Kind         detection.SourceKind
	Triggers     []detection.Trigger
	Windows      int // windows evaluated
	Skipped      int // windows dropped by the skip policy
	ZeroFilled   int // windows scored 0 by the zero-fill policy
	MaxStatistic float64
	Histogram    *subspace.Histogram
}

// Scanner runs detectors over continuous streams.
type Scanner struct {
	cfg Config
	log logger.Logger
}

// New validates cfg and returns a Scanner. A nil logger discards output.
func New(cfg Config, log logger.Logger) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scanner{cfg: cfg, log: logger.OrDiscard(log).Module(componentName)}, nil
}

// Scan evaluates src on every window of stream whose start lies in r. Windows
// up to the minimum separation outside r are scored only to decide local
// maxima at its edges; they are neither counted nor reported. An empty or
// too-short stream yields an empty result.
func (s *Scanner) Scan(ctx context.Context, stream *waveform.Waveform, src Source, r TimeRange) (*Result, error) {
	res := &Result{
		SourceID: src.SourceID(),
		Kind:     src.SourceKind(),
	}
	if stream == nil {
		return res, nil
	}
	res.Station = stream.Station

	n := src.WindowLength()
	if n == 0 || stream.Len() < n {
		return res, nil
	}
	if math.Abs(stream.SampleRate-src.Rate()) > rateTolerance {
		return nil, errors.Newf("stream sample rate %v does not match detector rate %v", stream.SampleRate, src.Rate()).
			Component(componentName).
			Category(errors.CategoryData).
			Context("station", stream.Station).
			Context("source", src.SourceID()).
			Build()
	}

	last := stream.Len() - n + 1
	from, to := 0, last
	if !r.Start.IsZero() {
		from = max(from, ceilIndex(stream, r.Start))
	}
	if !r.End.IsZero() {
		to = min(to, ceilIndex(stream, r.End))
	}
	if from >= to {
		return res, nil
	}

	// Windows within sep of the range are scored too, so a trigger at the
	// range edge is a local maximum exactly as in an unbounded scan.
	sep := waveform.Samples(s.cfg.MinSeparation, stream.SampleRate)
	lo := from - min(sep, from)/s.cfg.Stride*s.cfg.Stride
	hi := min(last, to+sep)

	capacity := (hi-lo)/s.cfg.Stride + 1
	starts := make([]int, 0, capacity)
	stats := make([]float64, 0, capacity)
	filled := make([]bool, 0, capacity) // zero-filled windows never trigger
	inRange := make([]bool, 0, capacity)
	scored := make([]float64, 0, capacity)
	buf := make([]float64, n)

	for i, evaluated := lo, 0; i < hi; i, evaluated = i+s.cfg.Stride, evaluated+1 {
		if evaluated%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.New(err).
					Component(componentName).
					Context("station", stream.Station).
					Context("source", src.SourceID()).
					Build()
			}
		}
		counted := i >= from && i < to

		stat, outcome := s.score(src, stream.Samples[i:i+n], buf)
		if counted {
			res.Windows++
			switch outcome {
			case windowSkipped:
				res.Skipped++
			case windowZeroFilled:
				res.ZeroFilled++
			}
		}
		if outcome == windowSkipped {
			continue
		}
		starts = append(starts, i)
		stats = append(stats, stat)
		filled = append(filled, outcome == windowZeroFilled)
		inRange = append(inRange, counted)
		if counted {
			scored = append(scored, stat)
		}
	}

	if len(scored) > 0 {
		res.MaxStatistic = slices.Max(scored)
	}
	if s.cfg.Histogram {
		statLo, statHi := src.StatisticRange()
		res.Histogram = subspace.NewHistogram(scored, s.cfg.HistogramBins, statLo, statHi)
	}

	threshold := src.DetectionThreshold()
	for k := range stats {
		if !inRange[k] || filled[k] || stats[k] <= threshold || !isLocalMax(starts, stats, filled, k, sep) {
			continue
		}
		trig := detection.Trigger{
			Station:   stream.Station,
			SourceID:  src.SourceID(),
			Kind:      src.SourceKind(),
			Time:      stream.TimeAt(starts[k]).Add(src.Offset()),
			Statistic: stats[k],
		}
		if s.cfg.EstimateMagnitudes {
			trig.Magnitude = relativeMagnitude(stream.Samples[starts[k]:starts[k]+n], src.ReferenceAmplitude())
		}
		res.Triggers = append(res.Triggers, trig)
	}

	if res.Skipped > 0 || res.ZeroFilled > 0 {
		s.log.Warn("windows affected by data gaps",
			logger.String("station", stream.Station),
			logger.String("source", src.SourceID()),
			logger.Int("skipped", res.Skipped),
			logger.Int("zero_filled", res.ZeroFilled),
			logger.Int("windows", res.Windows))
	}
	s.log.Debug("scan finished",
		logger.String("station", stream.Station),
		logger.String("source", src.SourceID()),
		logger.Int("windows", res.Windows),
		logger.Int("triggers", len(res.Triggers)),
		logger.Float64("max_statistic", res.MaxStatistic))

	return res, nil
}

type windowOutcome int

const (
	windowScored windowOutcome = iota
	windowZeroFilled
	windowSkipped
)

// score applies the gap policy and evaluates one window. A zero-filled
// window scores 0 and is never a trigger candidate.
func (s *Scanner) score(src Source, window, buf []float64) (float64, windowOutcome) {
	gaps := waveform.GapFraction(window)
	switch {
	case gaps == 0:
		return src.Statistic(window), windowScored
	case gaps > s.cfg.GapTolerance:
		if s.cfg.GapPolicy == GapSkip {
			return 0, windowSkipped
		}
		return 0, windowZeroFilled
	default:
		for i, v := range window {
			if math.IsNaN(v) {
				v = 0
			}
			buf[i] = v
		}
		return src.Statistic(buf), windowScored
	}
}

// isLocalMax reports whether stats[k] is the maximum among scored windows
// within sep samples. On ties the earliest window wins.
func isLocalMax(starts []int, stats []float64, filled []bool, k, sep int) bool {
	for j := k - 1; j >= 0 && starts[k]-starts[j] <= sep; j-- {
		if !filled[j] && stats[j] >= stats[k] {
			return false
		}
	}
	for j := k + 1; j < len(stats) && starts[j]-starts[k] <= sep; j++ {
		if !filled[j] && stats[j] > stats[k] {
			return false
		}
	}
	return true
}

func relativeMagnitude(window []float64, reference float64) *float64 {
	peak := waveform.Peak(window)
	if reference <= 0 || peak <= 0 {
		return nil
	}
	m := math.Log10(peak / reference)
	return &m
}

// ceilIndex returns the first sample index at or after t.
func ceilIndex(w *waveform.Waveform, t time.Time) int {
	return int(math.Ceil(t.Sub(w.Start).Seconds()*w.SampleRate - 1e-9))
}

// SuppressNearby keeps, per station and source, only triggers that are the
// largest within minSep of each other, with the earliest winning ties. It is
// used after merging results of overlapping chunks. The result is in
// canonical trigger order.
func SuppressNearby(triggers []detection.Trigger, minSep time.Duration) []detection.Trigger {
	type key struct{ station, source string }
	groups := make(map[key][]detection.Trigger)
	for _, t := range triggers {
		k := key{t.Station, t.SourceID}
		groups[k] = append(groups[k], t)
	}

	var out []detection.Trigger
	for _, group := range groups {
		slices.SortStableFunc(group, func(a, b detection.Trigger) int {
			return a.Time.Compare(b.Time)
		})
		for k := range group {
			if keepTrigger(group, k, minSep) {
				out = append(out, group[k])
			}
		}
	}
	detection.SortTriggers(out)
	return out
}

func keepTrigger(group []detection.Trigger, k int, minSep time.Duration) bool {
	t := group[k]
	for j := k - 1; j >= 0 && t.Time.Sub(group[j].Time) <= minSep; j-- {
		if group[j].Statistic >= t.Statistic {
			return false
		}
	}
	for j := k + 1; j < len(group) && group[j].Time.Sub(t.Time) <= minSep; j++ {
		if group[j].Statistic > t.Statistic {
			return false
		}
	}
	return true
}
