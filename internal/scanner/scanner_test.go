package scanner

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/seisnet-go/internal/cluster"
	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/subspace"
	"github.com/tphakala/seisnet-go/internal/testutil"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

const rate = 20.0

// valueSource scores a one-sample window by its value, so tests control the
// statistic series directly.
type valueSource struct {
	threshold float64
}

func (valueSource) SourceID() string { return "values" }
func (valueSource) SourceKind() detection.SourceKind { return detection.KindSingleton }
func (valueSource) WindowLength() int { return 1 }
func (valueSource) Rate() float64 { return 1 }
func (v valueSource) DetectionThreshold() float64 { return v.threshold }
func (valueSource) ReferenceAmplitude() float64 { return 1 }
func (valueSource) Offset() time.Duration { return 0 }
func (valueSource) Statistic(w []float64) float64 { return w[0] }
func (valueSource) StatisticRange() (lo, hi float64) { return 0, 1 }

func defaultConfig() Config {
	return Config{Stride: 1, MinSeparation: 2 * time.Second, GapPolicy: GapSkip, GapTolerance: 0}
}

func newScanner(t *testing.T, cfg Config) *Scanner {
	t.Helper()
	s, err := New(cfg, nil)
	require.NoError(t, err)
	return s
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero stride", mutate: func(c *Config) { c.Stride = 0 }, wantErr: true},
		{name: "negative separation", mutate: func(c *Config) { c.MinSeparation = -time.Second }, wantErr: true},
		{name: "unknown policy", mutate: func(c *Config) { c.GapPolicy = "interpolate" }, wantErr: true},
		{name: "tolerance above one", mutate: func(c *Config) { c.GapTolerance = 1.5 }, wantErr: true},
		{name: "histogram without bins", mutate: func(c *Config) { c.Histogram = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsConfigError(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

// continuousStream returns an hour of low-level noise with the template
// injected at 1200 s.
func continuousStream(template []float64, amplitude float64) *waveform.Waveform {
	rng := testutil.NewRNG(42)
	samples := testutil.Noise(rng, int(3600*rate), 0.01)
	testutil.Inject(samples, testutil.Scale(template, amplitude), int(1200*rate))
	return testutil.Trace("UU.CTU", rate, samples)
}

func TestScanFindsInjectedTemplate(t *testing.T) {
	t.Parallel()

	template := testutil.Wavelet(int(30*rate), rate, 2, 0)
	stream := continuousStream(template, 1)
	eventTime := testutil.Epoch.Add(1200 * time.Second)
	halfWindow := 15 * time.Second

	builder, err := subspace.NewBuilder(subspace.Config{
		Normalize:   true,
		Rank:        subspace.RankPolicy{Mode: subspace.RankFixed, Count: 1},
		Calibration: subspace.CalibrationConfig{Mode: subspace.CalibrationFixed, Threshold: 0.98},
	}, nil)
	require.NoError(t, err)

	singleton, err := builder.BuildSingleton(context.Background(), "ev1", testutil.Trace("UU.CTU", rate, template), nil)
	require.NoError(t, err)

	basis, err := builder.Build(context.Background(),
		&cluster.Cluster{ID: "UU.CTU.c01", Station: "UU.CTU", Members: []string{"ev1"}},
		map[string]*waveform.Waveform{"ev1": testutil.Trace("UU.CTU", rate, template)}, nil)
	require.NoError(t, err)

	s := newScanner(t, defaultConfig())
	for _, src := range []Source{singleton, basis} {
		res, err := s.Scan(context.Background(), stream, src, TimeRange{})
		require.NoError(t, err)

		require.Len(t, res.Triggers, 1, "source %s", src.SourceID())
		trig := res.Triggers[0]
		assert.WithinDuration(t, eventTime, trig.Time, halfWindow)
		assert.Greater(t, trig.Statistic, 0.98)
		assert.Equal(t, "UU.CTU", trig.Station)
		assert.Equal(t, src.SourceKind(), trig.Kind)
		assert.Equal(t, int(3600*rate)-len(template)+1, res.Windows)
	}
}

func TestScanEstimatesRelativeMagnitude(t *testing.T) {
	t.Parallel()

	template := testutil.Wavelet(int(10*rate), rate, 2, 0)
	stream := continuousStream(template, 10)

	builder, err := subspace.NewBuilder(subspace.Config{
		Rank:        subspace.RankPolicy{Mode: subspace.RankFixed, Count: 1},
		Calibration: subspace.CalibrationConfig{Mode: subspace.CalibrationFixed, Threshold: 0.9},
	}, nil)
	require.NoError(t, err)
	singleton, err := builder.BuildSingleton(context.Background(), "ev1", testutil.Trace("UU.CTU", rate, template), nil)
	require.NoError(t, err)

	cfg := defaultConfig()
	cfg.EstimateMagnitudes = true
	cfg.Histogram = true
	cfg.HistogramBins = 40
	res, err := newScanner(t, cfg).Scan(context.Background(), stream, singleton, TimeRange{})
	require.NoError(t, err)

	require.Len(t, res.Triggers, 1)
	require.NotNil(t, res.Triggers[0].Magnitude)
	assert.InDelta(t, 1.0, *res.Triggers[0].Magnitude, 0.05)
	assert.Equal(t, res.Windows, res.Histogram.Total())
}

func TestLocalMaximumAndTies(t *testing.T) {
	t.Parallel()

	samples := []float64{0, 0.9, 0.9, 0, 0, 0, 0, 0.95, 0, 0.5, 0, 0, 0, 0, 0, 0, 0.7}
	stream := &waveform.Waveform{Station: "S", Start: testutil.Epoch, SampleRate: 1, Samples: samples}

	cfg := defaultConfig()
	cfg.MinSeparation = 3 * time.Second
	res, err := newScanner(t, cfg).Scan(context.Background(), stream, valueSource{threshold: 0.6}, TimeRange{})
	require.NoError(t, err)

	var got []int
	for _, trig := range res.Triggers {
		got = append(got, int(trig.Time.Sub(testutil.Epoch)/time.Second))
	}
	// index 1 wins the tie with index 2; 0.95 at 7 is separate; 0.5 is below threshold
	assert.Equal(t, []int{1, 7, 16}, got)

	cfg.MinSeparation = 6 * time.Second
	res, err = newScanner(t, cfg).Scan(context.Background(), stream, valueSource{threshold: 0.6}, TimeRange{})
	require.NoError(t, err)
	require.Len(t, res.Triggers, 2)
	assert.InDelta(t, 0.95, res.Triggers[0].Statistic, 0)
	assert.InDelta(t, 0.7, res.Triggers[1].Statistic, 0)
}

func TestThresholdIsStrict(t *testing.T) {
	t.Parallel()

	stream := &waveform.Waveform{Station: "S", Start: testutil.Epoch, SampleRate: 1, Samples: []float64{0, 0.6, 0}}
	res, err := newScanner(t, defaultConfig()).Scan(context.Background(), stream, valueSource{threshold: 0.6}, TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, res.Triggers)
}

func TestGapPolicies(t *testing.T) {
	t.Parallel()

	samples := []float64{0, 0.9, math.NaN(), 0.8, 0}
	stream := &waveform.Waveform{Station: "S", Start: testutil.Epoch, SampleRate: 1, Samples: samples}
	src := valueSource{threshold: 0.5}

	cfg := defaultConfig()
	cfg.MinSeparation = 0
	res, err := newScanner(t, cfg).Scan(context.Background(), stream, src, TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 5, res.Windows)
	assert.Len(t, res.Triggers, 2)

	cfg.GapPolicy = GapZeroFill
	res, err = newScanner(t, cfg).Scan(context.Background(), stream, src, TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ZeroFilled)
	assert.Len(t, res.Triggers, 2)
}

func TestZeroFilledWindowsNeverTrigger(t *testing.T) {
	t.Parallel()

	template := testutil.Wavelet(int(10*rate), rate, 2, 0)
	stream := continuousStream(template, 1)
	// knock out most of the event window
	start := int(1200 * rate)
	for i := start; i < start+len(template)*3/4; i++ {
		stream.Samples[i] = math.NaN()
	}

	builder, err := subspace.NewBuilder(subspace.Config{
		Rank:        subspace.RankPolicy{Mode: subspace.RankFixed, Count: 1},
		Calibration: subspace.CalibrationConfig{Mode: subspace.CalibrationFixed, Threshold: 0.9},
	}, nil)
	require.NoError(t, err)
	singleton, err := builder.BuildSingleton(context.Background(), "ev1", testutil.Trace("UU.CTU", rate, template), nil)
	require.NoError(t, err)

	for _, policy := range []GapPolicy{GapSkip, GapZeroFill} {
		cfg := defaultConfig()
		cfg.GapPolicy = policy
		cfg.GapTolerance = 0.1
		res, err := newScanner(t, cfg).Scan(context.Background(), stream, singleton, TimeRange{})
		require.NoError(t, err)
		assert.Empty(t, res.Triggers, "policy %s", policy)
		assert.Positive(t, res.Skipped+res.ZeroFilled)
	}
}

func TestZeroFilledWindowsNeverTriggerBelowZeroThreshold(t *testing.T) {
	t.Parallel()

	template := testutil.Wavelet(int(10*rate), rate, 2, 0)
	rng := testutil.NewRNG(7)
	noise := make([][]float64, 200)
	for i := range noise {
		noise[i] = testutil.Noise(rng, len(template), 1)
	}

	builder, err := subspace.NewBuilder(subspace.Config{
		Rank: subspace.RankPolicy{Mode: subspace.RankFixed, Count: 1},
		Calibration: subspace.CalibrationConfig{
			Mode:           subspace.CalibrationFAR,
			FalseAlarmRate: 0.9,
			Distribution:   subspace.DistributionEmpirical,
		},
	}, nil)
	require.NoError(t, err)
	singleton, err := builder.BuildSingleton(context.Background(), "ev1", testutil.Trace("UU.CTU", rate, template), noise)
	require.NoError(t, err)
	require.Negative(t, singleton.DetectionThreshold())

	samples := make([]float64, int(120*rate))
	for i := range samples {
		samples[i] = math.NaN()
	}
	stream := testutil.Trace("UU.CTU", rate, samples)

	cfg := defaultConfig()
	cfg.GapPolicy = GapZeroFill
	res, err := newScanner(t, cfg).Scan(context.Background(), stream, singleton, TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, res.Windows, res.ZeroFilled)
	assert.Empty(t, res.Triggers)

	// a zero-filled window next to a real one does not suppress it
	lowSrc := valueSource{threshold: -0.5}
	mixed := &waveform.Waveform{Station: "S", Start: testutil.Epoch, SampleRate: 1, Samples: []float64{math.NaN(), -0.2, math.NaN()}}
	cfg.MinSeparation = 2 * time.Second
	res, err = newScanner(t, cfg).Scan(context.Background(), mixed, lowSrc, TimeRange{})
	require.NoError(t, err)
	require.Len(t, res.Triggers, 1)
	assert.InDelta(t, -0.2, res.Triggers[0].Statistic, 1e-12)
}

func TestGapWithinToleranceStillDetects(t *testing.T) {
	t.Parallel()

	template := testutil.Wavelet(int(10*rate), rate, 2, 0)
	stream := continuousStream(template, 1)
	stream.Samples[int(1200*rate)+len(template)-1] = math.NaN()

	builder, err := subspace.NewBuilder(subspace.Config{
		Rank:        subspace.RankPolicy{Mode: subspace.RankFixed, Count: 1},
		Calibration: subspace.CalibrationConfig{Mode: subspace.CalibrationFixed, Threshold: 0.9},
	}, nil)
	require.NoError(t, err)
	singleton, err := builder.BuildSingleton(context.Background(), "ev1", testutil.Trace("UU.CTU", rate, template), nil)
	require.NoError(t, err)

	cfg := defaultConfig()
	cfg.GapTolerance = 0.05
	res, err := newScanner(t, cfg).Scan(context.Background(), stream, singleton, TimeRange{})
	require.NoError(t, err)
	assert.Len(t, res.Triggers, 1)
}

func TestEmptyAndShortStreams(t *testing.T) {
	t.Parallel()

	s := newScanner(t, defaultConfig())
	res, err := s.Scan(context.Background(), nil, valueSource{}, TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, res.Triggers)

	res, err = s.Scan(context.Background(), &waveform.Waveform{SampleRate: 1}, valueSource{}, TimeRange{})
	require.NoError(t, err)
	assert.Zero(t, res.Windows)
}

func TestSampleRateMismatch(t *testing.T) {
	t.Parallel()

	stream := &waveform.Waveform{Station: "S", SampleRate: 100, Samples: []float64{1, 2, 3}}
	_, err := newScanner(t, defaultConfig()).Scan(context.Background(), stream, valueSource{}, TimeRange{})
	require.Error(t, err)
	assert.True(t, errors.IsDataError(err))
}

func TestTimeRangeLimitsWindowStarts(t *testing.T) {
	t.Parallel()

	stream := &waveform.Waveform{Station: "S", Start: testutil.Epoch, SampleRate: 1, Samples: []float64{0.9, 0, 0, 0.9, 0, 0, 0.9}}
	cfg := defaultConfig()
	cfg.MinSeparation = 0

	res, err := newScanner(t, cfg).Scan(context.Background(), stream, valueSource{threshold: 0.5}, TimeRange{
		Start: testutil.Epoch.Add(time.Second),
		End:   testutil.Epoch.Add(6 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Windows)
	require.Len(t, res.Triggers, 1)
	assert.Equal(t, testutil.Epoch.Add(3*time.Second), res.Triggers[0].Time)
}

func TestSplitRangesMatchWholeScan(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.MinSeparation = time.Second
	src := valueSource{threshold: 0.5}
	s := newScanner(t, cfg)

	scanSplit := func(stream *waveform.Waveform, split int) []detection.Trigger {
		mid := stream.TimeAt(split)
		var merged []detection.Trigger
		for _, r := range []TimeRange{{End: mid}, {Start: mid}} {
			res, err := s.Scan(context.Background(), stream, src, r)
			require.NoError(t, err)
			merged = append(merged, res.Triggers...)
		}
		return SuppressNearby(merged, cfg.MinSeparation)
	}

	// a rising chain across the split keeps only its peak
	chain := &waveform.Waveform{Station: "S", Start: testutil.Epoch, SampleRate: 1,
		Samples: []float64{0, 0, 0, 0.99, 0.995, 0.999, 0, 0}}
	triggers := scanSplit(chain, 4)
	require.Len(t, triggers, 1)
	assert.Equal(t, testutil.Epoch.Add(5*time.Second), triggers[0].Time)

	rng := testutil.NewRNG(11)
	samples := make([]float64, 200)
	for i := range samples {
		samples[i] = rng.Float64()
	}
	stream := &waveform.Waveform{Station: "S", Start: testutil.Epoch, SampleRate: 1, Samples: samples}
	whole, err := s.Scan(context.Background(), stream, src, TimeRange{})
	require.NoError(t, err)
	require.NotEmpty(t, whole.Triggers)

	for split := 1; split < len(samples); split++ {
		assert.Equal(t, whole.Triggers, scanSplit(stream, split), "split at %d", split)
	}
}

func TestScanCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := &waveform.Waveform{Station: "S", SampleRate: 1, Samples: make([]float64, 10)}
	_, err := newScanner(t, defaultConfig()).Scan(ctx, stream, valueSource{}, TimeRange{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSuppressNearby(t *testing.T) {
	t.Parallel()

	at := func(s int) time.Time { return testutil.Epoch.Add(time.Duration(s) * time.Second) }
	triggers := []detection.Trigger{
		{Station: "A", SourceID: "c01", Time: at(10), Statistic: 0.8},
		{Station: "A", SourceID: "c01", Time: at(10), Statistic: 0.8}, // duplicate from chunk overlap
		{Station: "A", SourceID: "c01", Time: at(11), Statistic: 0.9},
		{Station: "A", SourceID: "c01", Time: at(30), Statistic: 0.7},
		{Station: "A", SourceID: "c02", Time: at(11), Statistic: 0.6},
		{Station: "B", SourceID: "c01", Time: at(10), Statistic: 0.5},
	}

	got := SuppressNearby(triggers, 2*time.Second)
	require.Len(t, got, 4)
	assert.Equal(t, "B", got[0].Station)
	assert.InDelta(t, 0.9, got[1].Statistic, 0)
	assert.Equal(t, "c02", got[2].SourceID)
	assert.Equal(t, at(30), got[3].Time)

	dups := SuppressNearby(triggers[:2], 0)
	assert.Len(t, dups, 1)
}
