// Package waveform defines sampled seismic traces, event templates and the
// provider interface used to fetch continuous data.
package waveform

import (
	"context"
	"math"
	"time"
)

// Waveform is a uniformly sampled trace for one station and channel.
// Missing samples are NaN.
type Waveform struct {
	Station    string    // station identifier, e.g. "UU.CTU"
	Channel    string    // channel code, e.g. "HHZ"
	Start      time.Time // time of the first sample
	SampleRate float64   // samples per second
	Samples    []float64
}

// Len returns the number of samples.
func (w *Waveform) Len() int {
	if w == nil {
		return 0
	}
	return len(w.Samples)
}

// Delta is the sample interval.
func (w *Waveform) Delta() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / w.SampleRate)
}

// Duration is the time spanned by the samples.
func (w *Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(w.Samples)) / w.SampleRate * float64(time.Second))
}

// End is the time just after the last sample.
func (w *Waveform) End() time.Time {
	return w.Start.Add(w.Duration())
}

// TimeAt returns the timestamp of sample i.
func (w *Waveform) TimeAt(i int) time.Time {
	return w.Start.Add(time.Duration(float64(i) / w.SampleRate * float64(time.Second)))
}

// IndexAt returns the index of the sample nearest to t, unclamped.
func (w *Waveform) IndexAt(t time.Time) int {
	return int(math.Round(t.Sub(w.Start).Seconds() * w.SampleRate))
}

// Samples converts a duration to a sample count at rate, rounding to nearest.
func Samples(d time.Duration, rate float64) int {
	return int(math.Round(d.Seconds() * rate))
}

// Slice returns a copy of the samples in [from, to). Indices outside the
// trace yield NaN so callers see uncovered spans as gaps.
func (w *Waveform) Slice(from, to int) []float64 {
	if to < from {
		return nil
	}
	out := make([]float64, to-from)
	for i := range out {
		j := from + i
		if j < 0 || j >= len(w.Samples) {
			out[i] = math.NaN()
			continue
		}
		out[i] = w.Samples[j]
	}
	return out
}

// Window returns a new Waveform covering [start, start+d), gap-filled with NaN
// outside the trace.
func (w *Waveform) Window(start time.Time, d time.Duration) *Waveform {
	from := w.IndexAt(start)
	n := Samples(d, w.SampleRate)
	return &Waveform{
		Station:    w.Station,
		Channel:    w.Channel,
		Start:      w.TimeAt(from),
		SampleRate: w.SampleRate,
		Samples:    w.Slice(from, from+n),
	}
}

// GapFraction returns the fraction of samples that are NaN.
func GapFraction(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	gaps := 0
	for _, v := range samples {
		if math.IsNaN(v) {
			gaps++
		}
	}
	return float64(gaps) / float64(len(samples))
}

// HasGaps reports whether any sample is NaN.
func HasGaps(samples []float64) bool {
	for _, v := range samples {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Peak returns the largest absolute sample value, ignoring NaN.
func Peak(samples []float64) float64 {
	peak := 0.0
	for _, v := range samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// Template is a reference event with one aligned waveform per station.
type Template struct {
	ID        string
	Name      string
	Origin    time.Time            // event origin time, zero when unknown
	Waveforms map[string]*Waveform // keyed by station
	Picks     map[string]time.Time // phase pick per station
}

// Stations returns the stations the template has a waveform for.
func (t *Template) Stations() []string {
	out := make([]string, 0, len(t.Waveforms))
	for station := range t.Waveforms {
		out = append(out, station)
	}
	return out
}

// Provider fetches waveform data for a station and channel over [start, end).
// Implementations return NaN for samples they hold no data for.
type Provider interface {
	Fetch(ctx context.Context, station, channel string, start, end time.Time) (*Waveform, error)
}
