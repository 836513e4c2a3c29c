package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/seisnet-go/internal/datastore"
	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/output"
)

// Deliver persists, exports and publishes the catalog of report. Every
// target is attempted; their failures are joined. Publishing is counted in
// report.Published.
func (p *Pipeline) Deliver(ctx context.Context, report *Report) error {
	if report.RunID == "" {
		report.RunID = uuid.NewString()
	}
	var errs []error

	if p.store != nil {
		run := &datastore.RunRecord{
			RunID:      report.RunID,
			Start:      report.Start,
			End:        report.End,
			Exclusions: len(report.Exclusions),
		}
		if err := p.store.SaveCatalog(run, report.Catalog); err != nil {
			errs = append(errs, err)
		}
	}

	if export := p.settings.Output.Export; export.Enabled {
		path, err := output.WriteFile(export.Path, export.Format, report.RunID, report.Catalog)
		if err != nil {
			errs = append(errs, err)
		} else {
			report.ExportPath = path
			p.log.Info("catalog exported", logger.String("path", path))
		}
	}

	if p.publisher != nil {
		n, err := p.publisher.PublishCatalog(ctx, report.RunID, report.Catalog)
		report.Published = n
		if err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		p.log.Error("catalog delivery incomplete",
			logger.String("run_id", report.RunID),
			logger.Error(err))
		return err
	}
	return nil
}

// Reassociate loads the catalog of a stored run, associates its triggers
// again with the current settings and delivers the result as a new run.
func (p *Pipeline) Reassociate(ctx context.Context, runID string) (*Report, error) {
	if p.store == nil {
		return nil, errors.NewConfigError(componentName, "reassociation requires a datastore")
	}
	started := time.Now()

	previous, err := p.store.LoadCatalog(runID)
	if err != nil {
		return nil, err
	}
	reference, err := p.loadReference()
	if err != nil {
		return nil, err
	}

	triggers := previous.Triggers()
	report := &Report{
		RunID:    uuid.NewString(),
		Triggers: len(triggers),
		Catalog:  p.Associate(triggers, reference),
	}
	if len(triggers) > 0 {
		report.Start = triggers[0].Time
		report.End = triggers[len(triggers)-1].Time
	}

	p.log.Info("run reassociated",
		logger.String("source_run", runID),
		logger.String("run_id", report.RunID),
		logger.Int("triggers", len(triggers)),
		logger.Int("detections", report.Catalog.Len()))

	err = p.Deliver(ctx, report)
	report.Duration = time.Since(started)
	return report, err
}

// loadReference reads the configured reference event times, if any.
func (p *Pipeline) loadReference() ([]time.Time, error) {
	path := p.settings.Associate.ReferenceFile
	if path == "" {
		return nil, nil
	}
	times, err := output.ReadReferenceTimes(path)
	if err != nil {
		return nil, err
	}
	p.log.Debug("reference events loaded",
		logger.String("path", path),
		logger.Int("events", len(times)))
	return times, nil
}

// AssociateTriggers is Associate with the configured reference events.
func (p *Pipeline) AssociateTriggers(triggers []detection.Trigger) (*detection.Catalog, error) {
	reference, err := p.loadReference()
	if err != nil {
		return nil, err
	}
	return p.Associate(triggers, reference), nil
}
