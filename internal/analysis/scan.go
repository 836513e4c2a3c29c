package analysis

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/observability/metrics"
	"github.com/tphakala/seisnet-go/internal/scanner"
)

// ScanOutput is the merged result of scanning a span.
type ScanOutput struct {
	Triggers   []detection.Trigger // canonical order
	Windows    int
	Skipped    int
	ZeroFilled int
	Exclusions []Exclusion
}

// scanTask is one station over one chunk of the scanned span.
type scanTask struct {
	station string
	channel string
	start   time.Time
	end     time.Time
	sources []scanner.Source
}

// Scan runs the detectors over continuous data in [start, end). The span is
// split into scan.chunk long tasks per station, each fetching its chunk plus
// one detector window of overlap so no window start is missed. Tasks run
// concurrently under scan.tasktimeout; a failed task is excluded and the
// remaining results are kept. channels maps each station to the channel
// scanned there.
func (p *Pipeline) Scan(ctx context.Context, detectors *Detectors, channels map[string]string, start, end time.Time) (*ScanOutput, error) {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return nil, errors.NewConfigError(componentName, "scan span [%v, %v) must be bounded and non-empty", start, end)
	}
	started := time.Now()

	sources := detectors.Sources(p.settings.Scan.UseSubspaces, p.settings.Subspace.UseSingles)
	byStation := make(map[string][]scanner.Source)
	for _, src := range sources {
		station := sourceStation(src)
		byStation[station] = append(byStation[station], src)
	}
	stations := make([]string, 0, len(byStation))
	for station := range byStation {
		stations = append(stations, station)
	}
	slices.Sort(stations)

	out := &ScanOutput{}
	var tasks []scanTask
	for _, station := range stations {
		channel, ok := channels[station]
		if !ok {
			out.Exclusions = append(out.Exclusions, newExclusion(ExcludedScan, station, station,
				errors.NewDataError(componentName, "no channel configured for station %s", station)))
			continue
		}
		for cs := start; cs.Before(end); cs = cs.Add(p.settings.Scan.Chunk) {
			tasks = append(tasks, scanTask{
				station: station,
				channel: channel,
				start:   cs,
				end:     minTime(cs.Add(p.settings.Scan.Chunk), end),
				sources: byStation[station],
			})
		}
	}

	p.log.Info("scan started",
		logger.Time("start", start),
		logger.Time("end", end),
		logger.Int("detectors", len(sources)),
		logger.Int("tasks", len(tasks)),
		logger.Int("workers", p.workers))

	var mu sync.Mutex
	var merged []detection.Trigger
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, task := range tasks {
		g.Go(func() error {
			results, err := p.scanChunk(gctx, task)
			if p.metrics != nil {
				p.metrics.RecordTask(err)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return cancelled(ctx.Err())
				}
				ex := newExclusion(ExcludedScan, task.start.UTC().Format(time.RFC3339), task.station, err)
				out.Exclusions = append(out.Exclusions, ex)
				p.log.Warn("scan task excluded",
					logger.String("station", task.station),
					logger.Time("chunk", task.start),
					logger.Error(err))
				return nil
			}
			for _, res := range results {
				merged = append(merged, res.Triggers...)
				out.Windows += res.Windows
				out.Skipped += res.Skipped
				out.ZeroFilled += res.ZeroFilled
				if p.metrics != nil {
					p.metrics.RecordScan(res.Station, string(res.Kind), res.Windows, res.Skipped, len(res.Triggers))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.observe(metrics.StageScan, started, err)
		return nil, err
	}

	out.Triggers = scanner.SuppressNearby(merged, p.settings.Scan.MinSeparation)
	sortExclusions(out.Exclusions)
	if p.metrics != nil {
		for range out.Exclusions {
			p.metrics.Exclusions.WithLabelValues(string(ExcludedScan)).Inc()
		}
	}
	p.observe(metrics.StageScan, started, nil)
	p.log.Info("scan finished",
		logger.Int("windows", out.Windows),
		logger.Int("skipped", out.Skipped),
		logger.Int("zero_filled", out.ZeroFilled),
		logger.Int("triggers", len(out.Triggers)),
		logger.Int("failed_tasks", len(out.Exclusions)),
		logger.Duration("elapsed", time.Since(started)))
	return out, nil
}

// scanChunk fetches one chunk and runs every detector of the station over it.
func (p *Pipeline) scanChunk(ctx context.Context, task scanTask) ([]*scanner.Result, error) {
	if p.settings.Scan.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.Scan.TaskTimeout)
		defer cancel()
	}

	// Windows within the minimum separation of the chunk edges decide local
	// maxima there, so they are fetched along with the chunk.
	margin := p.settings.Scan.MinSeparation
	var overlap time.Duration
	for _, src := range task.sources {
		overlap = max(overlap, windowDuration(src))
	}
	stream, err := p.fetch(ctx, task.station, task.channel, task.start.Add(-margin), task.end.Add(overlap+margin))
	if err != nil {
		return nil, err
	}

	r := scanner.TimeRange{Start: task.start, End: task.end}
	results := make([]*scanner.Result, 0, len(task.sources))
	for _, src := range task.sources {
		res, err := p.scanner.Scan(ctx, stream, src, r)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func windowDuration(src scanner.Source) time.Duration {
	if src.Rate() <= 0 {
		return 0
	}
	return time.Duration(float64(src.WindowLength()) / src.Rate() * float64(time.Second))
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
