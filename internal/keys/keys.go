// Package keys reads the template key: the stations of the network and the
// reference events with their phase picks.
package keys

import (
	"context"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

const componentName = "keys"

// Station is a recording station.
type Station struct {
	ID      string `yaml:"id"`      // network.station, e.g. UU.CTU
	Channel string `yaml:"channel"` // channel used for detection, e.g. HHZ
}

// TemplateEntry is one reference event.
type TemplateEntry struct {
	ID     string               `yaml:"id"`
	Name   string               `yaml:"name,omitempty"`
	Origin time.Time            `yaml:"origin,omitempty"`
	Picks  map[string]time.Time `yaml:"picks"` // phase pick per station id
}

// Key is the parsed template key file.
type Key struct {
	Stations  []Station       `yaml:"stations"`
	Templates []TemplateEntry `yaml:"templates"`
}

// FetchFailure records a template waveform that could not be fetched.
type FetchFailure struct {
	TemplateID string
	Station    string
	Err        error
}

// Load reads and validates the key file at path.
func Load(path string) (*Key, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the configured key file
	if err != nil {
		return nil, errors.FileError(err, path, 0)
	}

	var key Key
	if err := yaml.Unmarshal(data, &key); err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileParsing).
			Context("file", path).
			Build()
	}

	if err := key.Validate(); err != nil {
		return nil, err
	}
	return &key, nil
}

// Validate checks ids are unique and every pick refers to a known station.
func (k *Key) Validate() error {
	stations := make(map[string]bool, len(k.Stations))
	for _, s := range k.Stations {
		if s.ID == "" || s.Channel == "" {
			return errors.NewConfigError(componentName, "station entries need an id and a channel")
		}
		if stations[s.ID] {
			return errors.NewConfigError(componentName, "duplicate station %s", s.ID)
		}
		stations[s.ID] = true
	}

	seen := make(map[string]bool, len(k.Templates))
	for _, t := range k.Templates {
		if t.ID == "" {
			return errors.NewConfigError(componentName, "template entry without id")
		}
		if seen[t.ID] {
			return errors.NewConfigError(componentName, "duplicate template %s", t.ID)
		}
		seen[t.ID] = true
		if len(t.Picks) == 0 {
			return errors.NewConfigError(componentName, "template %s has no picks", t.ID)
		}
		for station := range t.Picks {
			if !stations[station] {
				return errors.NewConfigError(componentName, "template %s picks unknown station %s", t.ID, station)
			}
		}
	}
	return nil
}

// Channel returns the channel of station.
func (k *Key) Channel(station string) (string, bool) {
	for _, s := range k.Stations {
		if s.ID == station {
			return s.Channel, true
		}
	}
	return "", false
}

// StationIDs returns the station ids in key order.
func (k *Key) StationIDs() []string {
	out := make([]string, len(k.Stations))
	for i, s := range k.Stations {
		out[i] = s.ID
	}
	return out
}

// FetchTemplates fetches the waveform of every template at every picked station:
// a window of length duration starting pre before the pick. Stations whose
// waveform cannot be fetched are reported as failures and left out; a
// template with no waveforms is dropped. Only cancellation is returned as an
// error.
func (k *Key) FetchTemplates(ctx context.Context, p waveform.Provider, pre, duration time.Duration, log logger.Logger) ([]*waveform.Template, []FetchFailure, error) {
	log = logger.OrDiscard(log).Module(componentName)

	var out []*waveform.Template
	var failures []FetchFailure

	for _, entry := range k.Templates {
		tmpl := &waveform.Template{
			ID:        entry.ID,
			Name:      entry.Name,
			Origin:    entry.Origin,
			Waveforms: make(map[string]*waveform.Waveform),
			Picks:     make(map[string]time.Time),
		}

		stations := make([]string, 0, len(entry.Picks))
		for station := range entry.Picks {
			stations = append(stations, station)
		}
		slices.Sort(stations)

		for _, station := range stations {
			if err := ctx.Err(); err != nil {
				return nil, nil, errors.New(err).Component(componentName).Build()
			}

			pick := entry.Picks[station]
			channel, _ := k.Channel(station)
			start := pick.Add(-pre)

			w, err := p.Fetch(ctx, station, channel, start, start.Add(duration))
			if err == nil && waveform.HasGaps(w.Samples) {
				err = errors.NewDataError(componentName, "template %s waveform at %s contains gaps", entry.ID, station)
			}
			if err != nil {
				if errors.IsCategory(err, errors.CategoryCancellation) {
					return nil, nil, err
				}
				failures = append(failures, FetchFailure{TemplateID: entry.ID, Station: station, Err: err})
				log.Warn("template waveform unavailable",
					logger.String("template", entry.ID),
					logger.String("station", station),
					logger.Error(err))
				continue
			}

			tmpl.Waveforms[station] = w
			tmpl.Picks[station] = pick
		}

		if len(tmpl.Waveforms) > 0 {
			out = append(out, tmpl)
		}
	}

	log.Info("templates loaded",
		logger.Int("templates", len(out)),
		logger.Int("failures", len(failures)))
	return out, failures, nil
}
