package analysis

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/seisnet-go/internal/cluster"
	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/observability/metrics"
	"github.com/tphakala/seisnet-go/internal/scanner"
	"github.com/tphakala/seisnet-go/internal/subspace"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

// Detectors are the calibrated detectors of a run.
type Detectors struct {
	Bases      []*subspace.Basis
	Singletons []*subspace.Singleton
}

// Sources returns the detectors to scan with, bases first, honoring
// scan.usesubspaces and subspace.usesingles.
func (d *Detectors) Sources(useSubspaces, useSingles bool) []scanner.Source {
	var out []scanner.Source
	if useSubspaces {
		for _, b := range d.Bases {
			out = append(out, b)
		}
	}
	if useSingles {
		for _, s := range d.Singletons {
			out = append(out, s)
		}
	}
	return out
}

// sourceStation returns the station a detector belongs to.
func sourceStation(src scanner.Source) string {
	switch s := src.(type) {
	case *subspace.Basis:
		return s.Station
	case *subspace.Singleton:
		return s.Station
	}
	return ""
}

// noiseKey identifies a set of noise windows.
type noiseKey struct {
	station string
	length  int
}

// BuildBases builds a calibrated basis for every cluster and, when
// subspace.usesingles is set, a correlation detector for every ungrouped
// template. Work runs concurrently; a failed cluster or template is
// excluded. Detectors are persisted when a datastore is configured.
func (p *Pipeline) BuildBases(ctx context.Context, partitions []*cluster.Partition, templates []*waveform.Template) (*Detectors, []Exclusion, error) {
	started := time.Now()

	byID := make(map[string]*waveform.Template, len(templates))
	for _, t := range templates {
		byID[t.ID] = t
	}

	noise, err := p.noiseWindows(ctx, partitions, byID)
	if err != nil {
		p.observe(metrics.StageBuild, started, err)
		return nil, nil, err
	}

	var (
		mu         sync.Mutex
		out        Detectors
		exclusions []Exclusion
	)
	exclude := func(kind ExclusionKind, id, station string, err error) {
		exclusions = append(exclusions, newExclusion(kind, id, station, err))
		p.log.Warn("detector excluded",
			logger.String("kind", string(kind)),
			logger.String("id", id),
			logger.String("station", station),
			logger.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, part := range partitions {
		for i := range part.Clusters {
			c := &part.Clusters[i]
			g.Go(func() error {
				waveforms := make(map[string]*waveform.Waveform, len(c.Members))
				for _, id := range c.Members {
					if t, ok := byID[id]; ok {
						waveforms[id] = t.Waveforms[c.Station]
					}
				}
				basis, err := p.builder.Build(gctx, c, waveforms, noise[noiseKey{c.Station, templateLength(waveforms)}])

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if ctx.Err() != nil {
						return cancelled(ctx.Err())
					}
					exclude(ExcludedCluster, c.ID, c.Station, err)
					return nil
				}
				basis.PickOffset = p.settings.Templates.PreEvent
				for _, id := range basis.Excluded {
					exclusions = append(exclusions, Exclusion{
						Kind:     ExcludedMember,
						ID:       id,
						Station:  c.Station,
						Category: errors.CategoryAlgorithm,
						Reason:   "removed from " + c.ID + " by self-validation",
					})
				}
				out.Bases = append(out.Bases, basis)
				return nil
			})
		}

		if !p.settings.Subspace.UseSingles {
			continue
		}
		for _, id := range part.Singletons {
			station := part.Station
			g.Go(func() error {
				var w *waveform.Waveform
				if t, ok := byID[id]; ok {
					w = t.Waveforms[station]
				}
				s, err := p.builder.BuildSingleton(gctx, id, w, noise[noiseKey{station, w.Len()}])

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if ctx.Err() != nil {
						return cancelled(ctx.Err())
					}
					exclude(ExcludedDetector, id, station, err)
					return nil
				}
				s.PickOffset = p.settings.Templates.PreEvent
				out.Singletons = append(out.Singletons, s)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		p.observe(metrics.StageBuild, started, err)
		return nil, nil, err
	}

	slices.SortFunc(out.Bases, func(a, b *subspace.Basis) int { return strings.Compare(a.ClusterID, b.ClusterID) })
	slices.SortFunc(out.Singletons, func(a, b *subspace.Singleton) int {
		if c := strings.Compare(a.Station, b.Station); c != 0 {
			return c
		}
		return strings.Compare(a.TemplateID, b.TemplateID)
	})
	sortExclusions(exclusions)

	if p.store != nil {
		if err := p.store.SaveBases(out.Bases, out.Singletons); err != nil {
			p.observe(metrics.StageBuild, started, err)
			return nil, nil, err
		}
	}

	if p.metrics != nil {
		p.metrics.Detectors.WithLabelValues(string(detection.KindSubspace)).Set(float64(len(out.Bases)))
		p.metrics.Detectors.WithLabelValues(string(detection.KindSingleton)).Set(float64(len(out.Singletons)))
		for _, e := range exclusions {
			p.metrics.Exclusions.WithLabelValues(string(e.Kind)).Inc()
		}
	}
	p.observe(metrics.StageBuild, started, nil)
	p.log.Info("detectors built",
		logger.Int("bases", len(out.Bases)),
		logger.Int("singletons", len(out.Singletons)),
		logger.Int("exclusions", len(exclusions)))

	return &out, exclusions, nil
}

// templateLength returns the common length of the waveforms, or 0.
func templateLength(waveforms map[string]*waveform.Waveform) int {
	for _, w := range waveforms {
		if w != nil {
			return w.Len()
		}
	}
	return 0
}

// noiseWindows samples noise windows for every station and template length
// in use. Nothing is sampled when calibration uses a fixed threshold and no
// histogram is requested.
func (p *Pipeline) noiseWindows(ctx context.Context, partitions []*cluster.Partition, byID map[string]*waveform.Template) (map[noiseKey][][]float64, error) {
	cal := p.settings.Subspace.Calibration
	out := make(map[noiseKey][][]float64)
	if cal.NoiseWindows == 0 || (cal.Mode == string(subspace.CalibrationFixed) && cal.HistogramBins == 0) {
		return out, nil
	}
	start, end, err := p.settings.NoiseRange()
	if err != nil {
		return nil, errors.NewConfigError(componentName, "%v", err)
	}
	if start.IsZero() || end.IsZero() {
		p.log.Warn("noise span is not set, detectors are calibrated without noise")
		return out, nil
	}

	type request struct {
		key     noiseKey
		channel string
		rate    float64
	}
	var requests []request
	seen := make(map[noiseKey]bool)
	for _, part := range partitions {
		for _, id := range part.IDs {
			t, ok := byID[id]
			if !ok {
				continue
			}
			w := t.Waveforms[part.Station]
			if w == nil {
				continue
			}
			key := noiseKey{part.Station, w.Len()}
			if !seen[key] {
				seen[key] = true
				requests = append(requests, request{key: key, channel: w.Channel, rate: w.SampleRate})
			}
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, req := range requests {
		g.Go(func() error {
			windows, err := p.sampleNoise(gctx, req.key, req.channel, req.rate, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			out[req.key] = windows
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// sampleNoise fetches subspace.calibration.noisewindows windows at seeded
// pseudo-random offsets in [start, end). Windows that cannot be fetched or
// contain gaps are skipped.
func (p *Pipeline) sampleNoise(ctx context.Context, key noiseKey, channel string, rate float64, start, end time.Time) ([][]float64, error) {
	length := time.Duration(float64(key.length) / rate * float64(time.Second))
	span := end.Sub(start) - length
	if span <= 0 {
		return nil, nil
	}

	h := fnv.New64a()
	h.Write([]byte(key.station))
	seed := p.settings.Subspace.Calibration.Seed
	rng := rand.New(rand.NewPCG(seed, h.Sum64()))

	count := p.settings.Subspace.Calibration.NoiseWindows
	windows := make([][]float64, 0, count)
	skipped := 0
	for range count {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		at := start.Add(time.Duration(rng.Int64N(int64(span))))
		w, err := p.fetch(ctx, key.station, channel, at, at.Add(length))
		if err != nil || w.Len() < key.length || waveform.HasGaps(w.Samples[:key.length]) {
			skipped++
			continue
		}
		windows = append(windows, w.Samples[:key.length])
	}

	p.log.Debug("noise sampled",
		logger.String("station", key.station),
		logger.Int("length", key.length),
		logger.Int("windows", len(windows)),
		logger.Int("skipped", skipped))
	return windows, nil
}

// fetch wraps the provider with metrics.
func (p *Pipeline) fetch(ctx context.Context, station, channel string, start, end time.Time) (*waveform.Waveform, error) {
	w, err := p.provider.Fetch(ctx, station, channel, start, end)
	if p.metrics != nil {
		p.metrics.RecordFetch(err)
	}
	return w, err
}
