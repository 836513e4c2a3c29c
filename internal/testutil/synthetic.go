// Package testutil provides shared test utilities: deterministic synthetic
// seismograms and common timeouts.
package testutil

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/tphakala/seisnet-go/internal/waveform"
)

// Common test timeout constants.
const (
	DefaultTestTimeout = 5 * time.Second
	LongTestTimeout    = 30 * time.Second
)

// Epoch is the start time used by synthetic streams.
var Epoch = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// NewRNG returns a deterministic generator for seed.
func NewRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Wavelet returns n samples of a decaying chirp: a crude P/S-like arrival
// with the given dominant frequency. phase shifts the carrier.
func Wavelet(n int, rate, freq, phase float64) []float64 {
	out := make([]float64, n)
	decay := 4.0 / float64(n)
	for i := range out {
		t := float64(i) / rate
		env := float64(i) * decay * math.Exp(-float64(i)*decay)
		out[i] = env * math.Sin(2*math.Pi*(freq+0.05*t)*t+phase)
	}
	return out
}

// Noise returns n Gaussian samples with standard deviation sigma.
func Noise(rng *rand.Rand, n int, sigma float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64() * sigma
	}
	return out
}

// AddNoise returns x plus Gaussian noise with standard deviation sigma.
func AddNoise(rng *rand.Rand, x []float64, sigma float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] + rng.NormFloat64()*sigma
	}
	return out
}

// Scale returns x multiplied by k.
func Scale(x []float64, k float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] * k
	}
	return out
}

// Inject adds signal into stream starting at sample offset.
func Inject(stream, signal []float64, offset int) {
	for i, v := range signal {
		if j := offset + i; j >= 0 && j < len(stream) {
			stream[j] += v
		}
	}
}

// Trace wraps samples in a Waveform starting at Epoch.
func Trace(station string, rate float64, samples []float64) *waveform.Waveform {
	return &waveform.Waveform{
		Station:    station,
		Channel:    "HHZ",
		Start:      Epoch,
		SampleRate: rate,
		Samples:    samples,
	}
}
