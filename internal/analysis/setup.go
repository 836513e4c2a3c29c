package analysis

import (
	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/datastore"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/mqtt"
	"github.com/tphakala/seisnet-go/internal/observability"
	"github.com/tphakala/seisnet-go/internal/observability/metrics"
	"github.com/tphakala/seisnet-go/internal/provider"
)

// Open builds a pipeline with the provider, datastore and MQTT publisher
// enabled in settings. The pipeline owns them; Close releases them.
func Open(settings *conf.Settings, log logger.Logger, m *observability.Metrics) (*Pipeline, error) {
	log = logger.OrDiscard(log)

	src, err := provider.New(&settings.Provider, log)
	if err != nil {
		return nil, err
	}

	store := datastore.New(settings, log)
	if store != nil {
		if err := store.Open(); err != nil {
			return nil, err
		}
	}

	p, err := New(settings, src, store, log, m)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	if store != nil {
		p.closers = append(p.closers, store.Close)
	}

	if settings.MQTT.Enabled {
		var mm *metrics.MQTTMetrics
		if m != nil {
			mm = m.MQTT
		}
		client := mqtt.NewClient(mqtt.NewConfig(&settings.MQTT), mm, log)
		p.SetPublisher(mqtt.NewPublisher(client, settings.MQTT.Topic, log))
		p.closers = append(p.closers, func() error {
			client.Disconnect()
			return nil
		})
	}
	return p, nil
}

// Store returns the datastore of the pipeline, nil when persistence is
// disabled.
func (p *Pipeline) Store() datastore.Interface {
	return p.store
}

// Close releases the resources opened by Open.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
