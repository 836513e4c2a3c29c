package analysis

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/seisnet-go/internal/cluster"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/observability/metrics"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

// stationMembers groups template waveforms by station, with templates in
// ascending id order.
func stationMembers(templates []*waveform.Template) map[string][]cluster.Member {
	out := make(map[string][]cluster.Member)
	for _, t := range templates {
		for station, w := range t.Waveforms {
			out[station] = append(out[station], cluster.Member{TemplateID: t.ID, Waveform: w})
		}
	}
	for station := range out {
		slices.SortFunc(out[station], func(a, b cluster.Member) int {
			return strings.Compare(a.TemplateID, b.TemplateID)
		})
	}
	return out
}

// BuildClusters partitions the templates recorded at each station. Stations
// are processed concurrently; a station that cannot be partitioned is
// excluded and the others continue. Partitions are ordered by station.
func (p *Pipeline) BuildClusters(ctx context.Context, templates []*waveform.Template) ([]*cluster.Partition, []Exclusion, error) {
	started := time.Now()
	byStation := stationMembers(templates)

	stations := make([]string, 0, len(byStation))
	for station := range byStation {
		stations = append(stations, station)
	}
	slices.Sort(stations)

	var (
		mu         sync.Mutex
		partitions []*cluster.Partition
		exclusions []Exclusion
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, station := range stations {
		g.Go(func() error {
			part, err := p.engine.Partition(gctx, station, byStation[station])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return cancelled(ctx.Err())
				}
				exclusions = append(exclusions, newExclusion(ExcludedStation, station, station, err))
				p.log.Warn("station excluded from clustering",
					logger.String("station", station),
					logger.Error(err))
				return nil
			}
			partitions = append(partitions, part)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.observe(metrics.StageCluster, started, err)
		return nil, nil, err
	}

	slices.SortFunc(partitions, func(a, b *cluster.Partition) int {
		return strings.Compare(a.Station, b.Station)
	})
	sortExclusions(exclusions)

	clusters := 0
	for _, part := range partitions {
		clusters += len(part.Clusters)
		if p.metrics != nil {
			p.metrics.Clusters.WithLabelValues(part.Station).Set(float64(len(part.Clusters)))
		}
	}
	p.observe(metrics.StageCluster, started, nil)
	p.log.Info("templates clustered",
		logger.Int("stations", len(partitions)),
		logger.Int("clusters", clusters),
		logger.Int("excluded_stations", len(exclusions)))

	return partitions, exclusions, nil
}
