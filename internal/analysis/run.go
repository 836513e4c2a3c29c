package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/keys"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/observability/metrics"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

// LoadTemplates fetches the template waveforms of key. Waveforms that
// cannot be fetched are returned as template exclusions.
func (p *Pipeline) LoadTemplates(ctx context.Context, key *keys.Key) ([]*waveform.Template, []Exclusion, error) {
	started := time.Now()
	t := p.settings.Templates
	templates, failures, err := key.FetchTemplates(ctx, p.provider, t.PreEvent, t.Duration, p.log)
	p.observe(metrics.StageTemplates, started, err)
	if err != nil {
		return nil, nil, err
	}

	exclusions := make([]Exclusion, 0, len(failures))
	for _, f := range failures {
		exclusions = append(exclusions, newExclusion(ExcludedTemplate, f.TemplateID, f.Station, f.Err))
	}
	sortExclusions(exclusions)
	if p.metrics != nil {
		p.metrics.Templates.Set(float64(len(templates)))
		for range exclusions {
			p.metrics.Exclusions.WithLabelValues(string(ExcludedTemplate)).Inc()
		}
	}
	return templates, exclusions, nil
}

// LoadDetectors reads stored detectors for stations, all when none given.
func (p *Pipeline) LoadDetectors(stations ...string) (*Detectors, error) {
	if p.store == nil {
		return nil, errors.NewConfigError(componentName, "loading detectors requires a datastore")
	}
	bases, singletons, err := p.store.LoadBases(stations...)
	if err != nil {
		return nil, err
	}
	if len(bases) == 0 && len(singletons) == 0 {
		return nil, errors.Newf("no stored detectors").
			Component(componentName).
			Category(errors.CategoryNotFound).
			Build()
	}
	return &Detectors{Bases: bases, Singletons: singletons}, nil
}

// Channels maps every station of key to its channel.
func Channels(key *keys.Key) map[string]string {
	out := make(map[string]string, len(key.Stations))
	for _, s := range key.Stations {
		out[s.ID] = s.Channel
	}
	return out
}

// Run executes every stage for key over the configured scan span and
// delivers the catalog. Entities that fail are excluded and reported; only
// configuration errors and cancellation abort the run. When delivery fails
// the report is returned together with the error.
func (p *Pipeline) Run(ctx context.Context, key *keys.Key) (*Report, error) {
	started := time.Now()
	start, end, err := p.settings.ScanRange()
	if err != nil {
		return nil, errors.NewConfigError(componentName, "%v", err)
	}
	report := &Report{RunID: uuid.NewString(), Start: start, End: end}
	log := p.log.With(logger.String("run_id", report.RunID))
	log.Info("run started", logger.Time("start", start), logger.Time("end", end))

	reference, err := p.loadReference()
	if err != nil {
		return nil, err
	}

	templates, excluded, err := p.LoadTemplates(ctx, key)
	if err != nil {
		return nil, err
	}
	report.Templates = len(templates)
	report.Exclusions = append(report.Exclusions, excluded...)

	partitions, excluded, err := p.BuildClusters(ctx, templates)
	if err != nil {
		return nil, err
	}
	report.Exclusions = append(report.Exclusions, excluded...)
	for _, part := range partitions {
		report.Clusters += len(part.Clusters)
	}

	detectors, excluded, err := p.BuildBases(ctx, partitions, templates)
	if err != nil {
		return nil, err
	}
	report.Bases = len(detectors.Bases)
	report.Singletons = len(detectors.Singletons)
	report.Exclusions = append(report.Exclusions, excluded...)

	scanned, err := p.Scan(ctx, detectors, Channels(key), start, end)
	if err != nil {
		return nil, err
	}
	report.Windows = scanned.Windows
	report.Triggers = len(scanned.Triggers)
	report.Exclusions = append(report.Exclusions, scanned.Exclusions...)

	report.Catalog = p.Associate(scanned.Triggers, reference)
	sortExclusions(report.Exclusions)

	err = p.Deliver(ctx, report)
	report.Duration = time.Since(started)

	log.Info("run finished",
		logger.Int("templates", report.Templates),
		logger.Int("clusters", report.Clusters),
		logger.Int("bases", report.Bases),
		logger.Int("singletons", report.Singletons),
		logger.Int("triggers", report.Triggers),
		logger.Int("detections", report.Catalog.Len()),
		logger.Int("exclusions", len(report.Exclusions)),
		logger.Duration("elapsed", report.Duration))
	return report, err
}
