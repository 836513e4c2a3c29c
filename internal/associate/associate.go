// Package associate groups triggers from many stations and detectors into
// detections. Grouping is a single ordered pass over the triggers, so the
// same input always yields the same catalog.
package associate

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
)

const componentName = "associate"

// detectionNamespace seeds the name-based detection ids.
var detectionNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("seisnet.detection"))

// FalsePositiveFilter drops weak detections that no reference event verifies.
type FalsePositiveFilter struct {
	Enabled       bool
	MinConfidence float64
}

// Config controls association.
type Config struct {
	SubspaceBuffer     time.Duration // group span for subspace triggers
	SingletonBuffer    time.Duration // group span for singleton triggers
	RequiredStations   int
	VerificationBuffer time.Duration // max distance to a reference event
	ReduceDuplicates   bool          // count only the strongest trigger per station
	FalsePositive      FalsePositiveFilter
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SubspaceBuffer < 0 {
		return errors.NewConfigError(componentName, "subspace buffer %v must not be negative", c.SubspaceBuffer)
	}
	if c.SingletonBuffer < 0 {
		return errors.NewConfigError(componentName, "singleton buffer %v must not be negative", c.SingletonBuffer)
	}
	if c.RequiredStations < 1 {
		return errors.NewConfigError(componentName, "required stations %d must be at least 1", c.RequiredStations)
	}
	if c.VerificationBuffer < 0 {
		return errors.NewConfigError(componentName, "verification buffer %v must not be negative", c.VerificationBuffer)
	}
	if c.FalsePositive.Enabled {
		mc := c.FalsePositive.MinConfidence
		if math.IsNaN(mc) || mc < 0 || mc > 1 {
			return errors.NewConfigError(componentName, "minimum confidence %v must be within [0,1]", mc)
		}
	}
	return nil
}

// Associator turns triggers into a catalog.
type Associator struct {
	cfg Config
	log logger.Logger
}

// New validates cfg and returns an Associator. A nil logger discards output.
func New(cfg Config, log logger.Logger) (*Associator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Associator{cfg: cfg, log: logger.OrDiscard(log).Module(componentName)}, nil
}

// Associate groups triggers into detections. reference holds known event
// times used for verification and may be nil. The input slice is not
// modified.
func (a *Associator) Associate(triggers []detection.Trigger, reference []time.Time) *detection.Catalog {
	sorted := slices.Clone(triggers)
	detection.SortTriggers(sorted)

	refs := slices.Clone(reference)
	slices.SortFunc(refs, time.Time.Compare)

	catalog := &detection.Catalog{}
	catalog.Stats.Triggers = len(sorted)

	for _, group := range a.group(sorted) {
		catalog.Stats.Groups++

		d := a.build(group)
		if d.StationCount < a.cfg.RequiredStations {
			catalog.Stats.Discarded++
			continue
		}

		if len(refs) > 0 && nearReference(refs, d.Time, a.cfg.VerificationBuffer) {
			d.Verified = true
			d.Confidence = (1 + d.Confidence) / 2
			catalog.Stats.Verified++
		}

		if a.cfg.FalsePositive.Enabled && !d.Verified && d.Confidence < a.cfg.FalsePositive.MinConfidence {
			catalog.Stats.FalsePositive++
			a.log.Debug("detection dropped by confidence filter",
				logger.String("id", d.ID),
				logger.Float64("confidence", d.Confidence))
			continue
		}

		catalog.Detections = append(catalog.Detections, d)
	}

	catalog.Sort()

	a.log.Info("association finished",
		logger.Int("triggers", catalog.Stats.Triggers),
		logger.Int("groups", catalog.Stats.Groups),
		logger.Int("discarded", catalog.Stats.Discarded),
		logger.Int("false_positives", catalog.Stats.FalsePositive),
		logger.Int("verified", catalog.Stats.Verified),
		logger.Int("detections", catalog.Len()))

	return catalog
}

// group splits canonically ordered triggers into runs anchored on their
// earliest trigger. A trigger joins the open group while its distance to the
// anchor is within the buffer of the group's kinds including its own.
func (a *Associator) group(sorted []detection.Trigger) [][]detection.Trigger {
	var groups [][]detection.Trigger
	var current []detection.Trigger
	var hasSubspace, hasSingleton bool

	for _, t := range sorted {
		if len(current) > 0 {
			withSubspace := hasSubspace || t.Kind == detection.KindSubspace
			withSingleton := hasSingleton || t.Kind == detection.KindSingleton
			if t.Time.Sub(current[0].Time) <= a.buffer(withSubspace, withSingleton) {
				current = append(current, t)
				hasSubspace, hasSingleton = withSubspace, withSingleton
				continue
			}
			groups = append(groups, current)
		}
		current = []detection.Trigger{t}
		hasSubspace = t.Kind == detection.KindSubspace
		hasSingleton = t.Kind == detection.KindSingleton
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func (a *Associator) buffer(hasSubspace, hasSingleton bool) time.Duration {
	switch {
	case hasSubspace && hasSingleton:
		return max(a.cfg.SubspaceBuffer, a.cfg.SingletonBuffer)
	case hasSingleton:
		return a.cfg.SingletonBuffer
	default:
		return a.cfg.SubspaceBuffer
	}
}

// build summarises one closed group.
func (a *Associator) build(group []detection.Trigger) detection.Detection {
	contributing := group
	if a.cfg.ReduceDuplicates {
		contributing = strongestPerStation(group)
	}

	var stations []string
	for _, t := range group {
		stations = append(stations, t.Station)
	}
	slices.Sort(stations)
	stations = slices.Compact(stations)

	times := make([]time.Time, len(contributing))
	var sum, magSum float64
	var mags int
	for i, t := range contributing {
		times[i] = t.Time
		sum += t.Statistic
		if t.Magnitude != nil {
			magSum += *t.Magnitude
			mags++
		}
	}
	slices.SortFunc(times, time.Time.Compare)

	d := detection.Detection{
		ID:           detectionID(group),
		Time:         times[(len(times)-1)/2],
		Triggers:     slices.Clone(group),
		Stations:     stations,
		StationCount: len(stations),
		Confidence:   sum / float64(len(contributing)),
	}
	if mags > 0 {
		m := magSum / float64(mags)
		d.Magnitude = &m
	}
	return d
}

// strongestPerStation keeps the highest-statistic trigger of each station.
// group is in canonical order, so the earliest trigger wins ties.
func strongestPerStation(group []detection.Trigger) []detection.Trigger {
	best := make(map[string]int)
	var order []string
	for i, t := range group {
		j, ok := best[t.Station]
		if !ok {
			best[t.Station] = i
			order = append(order, t.Station)
			continue
		}
		if t.Statistic > group[j].Statistic {
			best[t.Station] = i
		}
	}
	out := make([]detection.Trigger, 0, len(order))
	for _, s := range order {
		out = append(out, group[best[s]])
	}
	return out
}

// detectionID derives a stable id from the anchor time and the members.
func detectionID(group []detection.Trigger) string {
	var b strings.Builder
	b.WriteString(group[0].Time.UTC().Format(time.RFC3339Nano))
	for _, t := range group {
		fmt.Fprintf(&b, "|%s/%s/%s/%d", t.Station, t.SourceID, t.Kind, t.Time.UnixNano())
	}
	return uuid.NewSHA1(detectionNamespace, []byte(b.String())).String()
}

// nearReference reports whether a sorted reference time lies within buf of t.
func nearReference(refs []time.Time, t time.Time, buf time.Duration) bool {
	i, _ := slices.BinarySearchFunc(refs, t, time.Time.Compare)
	if i < len(refs) && refs[i].Sub(t) <= buf {
		return true
	}
	return i > 0 && t.Sub(refs[i-1]) <= buf
}
