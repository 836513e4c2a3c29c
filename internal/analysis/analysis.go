// Package analysis orchestrates a detection run: template retrieval,
// clustering, subspace construction, scanning, association and delivery of
// the resulting catalog.
package analysis

import (
	"runtime"
	"time"

	"github.com/tphakala/seisnet-go/internal/associate"
	"github.com/tphakala/seisnet-go/internal/cluster"
	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/datastore"
	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/mqtt"
	"github.com/tphakala/seisnet-go/internal/observability"
	"github.com/tphakala/seisnet-go/internal/observability/metrics"
	"github.com/tphakala/seisnet-go/internal/scanner"
	"github.com/tphakala/seisnet-go/internal/subspace"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

const componentName = "analysis"

// Pipeline runs the detection stages with one validated configuration.
type Pipeline struct {
	settings   *conf.Settings
	provider   waveform.Provider
	store      datastore.Interface // nil disables persistence
	publisher  *mqtt.Publisher     // nil disables publishing
	closers    []func() error      // resources owned by the pipeline
	metrics    *metrics.PipelineMetrics
	engine     *cluster.Engine
	builder    *subspace.Builder
	scanner    *scanner.Scanner
	associator *associate.Associator
	workers    int
	log        logger.Logger
}

// New builds a pipeline. store and m may be nil. Configuration problems are
// returned as configuration errors before any work starts.
func New(settings *conf.Settings, provider waveform.Provider, store datastore.Interface, log logger.Logger, m *observability.Metrics) (*Pipeline, error) {
	if provider == nil {
		return nil, errors.NewConfigError(componentName, "a waveform provider is required")
	}
	if err := conf.ValidateSettings(settings); err != nil {
		return nil, err
	}

	log = logger.OrDiscard(log)
	p := &Pipeline{
		settings: settings,
		provider: provider,
		store:    store,
		workers:  settings.Scan.Workers,
		log:      log.Module(componentName),
	}
	if p.workers <= 0 {
		p.workers = runtime.NumCPU()
	}
	if m != nil {
		p.metrics = m.Pipeline
	}

	var err error
	if p.engine, err = cluster.NewEngine(settings.ClusterConfig(), log); err != nil {
		return nil, err
	}
	if p.builder, err = subspace.NewBuilder(settings.SubspaceConfig(), log); err != nil {
		return nil, err
	}
	if p.scanner, err = scanner.New(settings.ScannerConfig(), log); err != nil {
		return nil, err
	}
	if p.associator, err = associate.New(settings.AssociateConfig(), log); err != nil {
		return nil, err
	}
	return p, nil
}

// SetPublisher enables MQTT publishing of delivered catalogs.
func (p *Pipeline) SetPublisher(pub *mqtt.Publisher) {
	p.publisher = pub
}

// Associate groups triggers into a catalog, verified against reference
// event times when given.
func (p *Pipeline) Associate(triggers []detection.Trigger, reference []time.Time) *detection.Catalog {
	started := time.Now()
	catalog := p.associator.Associate(triggers, reference)
	if p.metrics != nil {
		s := catalog.Stats
		p.metrics.RecordAssociation(catalog.Len(), s.Discarded, s.FalsePositive, s.Verified)
	}
	p.observe(metrics.StageAssociate, started, nil)
	return catalog
}

func (p *Pipeline) observe(stage string, started time.Time, err error) {
	if p.metrics != nil {
		p.metrics.ObserveStage(stage, started, err)
	}
}

// cancelled wraps the run context error.
func cancelled(err error) error {
	return errors.New(err).Component(componentName).Category(errors.CategoryCancellation).Build()
}
