package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

// MemoryProvider serves windows of in-memory streams keyed by station.
type MemoryProvider struct {
	mu      sync.Mutex
	streams map[string]*waveform.Waveform
	calls   int
}

// NewMemoryProvider returns a provider over streams.
func NewMemoryProvider(streams ...*waveform.Waveform) *MemoryProvider {
	p := &MemoryProvider{streams: make(map[string]*waveform.Waveform)}
	for _, s := range streams {
		p.streams[s.Station] = s
	}
	return p
}

// Fetch implements waveform.Provider.
func (p *MemoryProvider) Fetch(ctx context.Context, station, _ string, start, end time.Time) (*waveform.Waveform, error) {
	p.mu.Lock()
	p.calls++
	s, ok := p.streams[station]
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Newf("no stream for %s", station).Category(errors.CategoryNotFound).Build()
	}
	return s.Window(start, end.Sub(start)), nil
}

// Calls returns how many fetches were made.
func (p *MemoryProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
