// Package detection provides the domain model produced by the scanner and
// associator: raw triggers, associated detections and the run catalog.
// These types are independent of the database schema; the datastore maps
// them to its own records.
package detection

import (
	"slices"
	"strings"
	"time"
)

// SourceKind distinguishes the two detectors.
type SourceKind string

const (
	KindSubspace  SourceKind = "subspace"
	KindSingleton SourceKind = "singleton"
)

// Trigger is a single detector exceedance at one station.
type Trigger struct {
	Station   string     // station that produced the trigger
	SourceID  string     // cluster id or template id
	Kind      SourceKind // subspace or singleton
	Time      time.Time  // time of the window start, aligned to the template pick
	Statistic float64    // detection statistic at the trigger
	Magnitude *float64   // relative magnitude estimate, nil when not computed
}

// Less orders triggers by time, station, source, then descending statistic.
func (t *Trigger) Less(o *Trigger) bool {
	return CompareTriggers(t, o) < 0
}

// CompareTriggers is the canonical trigger order used by association.
func CompareTriggers(a, b *Trigger) int {
	if c := a.Time.Compare(b.Time); c != 0 {
		return c
	}
	if c := strings.Compare(a.Station, b.Station); c != 0 {
		return c
	}
	if c := strings.Compare(a.SourceID, b.SourceID); c != 0 {
		return c
	}
	switch {
	case a.Statistic > b.Statistic:
		return -1
	case a.Statistic < b.Statistic:
		return 1
	}
	return 0
}

// SortTriggers sorts triggers in place in canonical order.
func SortTriggers(triggers []Trigger) {
	slices.SortStableFunc(triggers, func(a, b Trigger) int {
		return CompareTriggers(&a, &b)
	})
}

// Detection is an associated group of triggers from one or more stations.
type Detection struct {
	ID           string    // deterministic id derived from the member triggers
	Time         time.Time // representative time (lower median of contributing triggers)
	Triggers     []Trigger // every member trigger, canonical order
	Stations     []string  // distinct contributing stations, sorted
	StationCount int       // len(Stations)
	Confidence   float64   // mean contributing statistic, elevated when verified
	Verified     bool      // a reference event lies within the verification buffer
	Magnitude    *float64  // mean of contributing magnitudes, nil when none
}

// Stats summarises one association pass.
type Stats struct {
	Triggers      int // triggers considered
	Groups        int // candidate groups formed
	Discarded     int // groups below the required station count
	FalsePositive int // detections dropped by the confidence filter
	Verified      int // detections matched to a reference event
}

// Catalog is the time-ordered set of detections of a run.
type Catalog struct {
	Detections []Detection
	Stats      Stats
}

// Len returns the number of detections.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Detections)
}

// Sort orders detections by time, then id.
func (c *Catalog) Sort() {
	slices.SortStableFunc(c.Detections, func(a, b Detection) int {
		if cmp := a.Time.Compare(b.Time); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Triggers returns the member triggers of every detection in canonical order.
// Feeding them back through the associator reproduces the catalog.
func (c *Catalog) Triggers() []Trigger {
	if c == nil {
		return nil
	}
	var out []Trigger
	for i := range c.Detections {
		out = append(out, c.Detections[i].Triggers...)
	}
	SortTriggers(out)
	return out
}

// Between returns detections whose time lies in [start, end).
func (c *Catalog) Between(start, end time.Time) []Detection {
	var out []Detection
	for i := range c.Detections {
		t := c.Detections[i].Time
		if !t.Before(start) && t.Before(end) {
			out = append(out, c.Detections[i])
		}
	}
	return out
}
