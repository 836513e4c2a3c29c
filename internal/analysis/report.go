package analysis

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
)

// ExclusionKind names what was left out of a run.
type ExclusionKind string

const (
	ExcludedTemplate ExclusionKind = "template" // template waveform unavailable at a station
	ExcludedStation  ExclusionKind = "station"  // station could not be clustered
	ExcludedCluster  ExclusionKind = "cluster"  // basis construction failed
	ExcludedMember   ExclusionKind = "member"   // removed by self-validation
	ExcludedDetector ExclusionKind = "detector" // singleton construction failed
	ExcludedScan     ExclusionKind = "scan"     // scan task failed or timed out
)

// Exclusion is one entity dropped from a run and why.
type Exclusion struct {
	Kind     ExclusionKind
	ID       string
	Station  string
	Category errors.ErrorCategory
	Reason   string
}

func newExclusion(kind ExclusionKind, id, station string, err error) Exclusion {
	return Exclusion{
		Kind:     kind,
		ID:       id,
		Station:  station,
		Category: errors.CategoryOf(err),
		Reason:   err.Error(),
	}
}

// String formats the exclusion for logs and reports.
func (e Exclusion) String() string {
	return fmt.Sprintf("%s %s at %s (%s): %s", e.Kind, e.ID, e.Station, e.Category, e.Reason)
}

func sortExclusions(ex []Exclusion) {
	slices.SortStableFunc(ex, func(a, b Exclusion) int {
		if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
			return c
		}
		if c := strings.Compare(a.Station, b.Station); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Report summarizes a run. Partial runs still carry a valid catalog.
type Report struct {
	RunID      string
	Start      time.Time // scanned span
	End        time.Time
	Templates  int
	Clusters   int
	Bases      int
	Singletons int
	Windows    int
	Triggers   int
	Catalog    *detection.Catalog
	Exclusions []Exclusion
	ExportPath string
	Published  int
	Duration   time.Duration
}

// Excluded returns the exclusions of kind.
func (r *Report) Excluded(kind ExclusionKind) []Exclusion {
	var out []Exclusion
	for _, e := range r.Exclusions {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// WriteSummary prints the counts and exclusions of the run.
func (r *Report) WriteSummary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", r.RunID)
	if !r.Start.IsZero() {
		fmt.Fprintf(tw, "span\t%s - %s\n", r.Start.UTC().Format(time.RFC3339), r.End.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "templates\t%d\n", r.Templates)
	fmt.Fprintf(tw, "clusters\t%d\n", r.Clusters)
	fmt.Fprintf(tw, "detectors\t%d bases, %d singletons\n", r.Bases, r.Singletons)
	fmt.Fprintf(tw, "windows\t%d\n", r.Windows)
	fmt.Fprintf(tw, "triggers\t%d\n", r.Triggers)
	fmt.Fprintf(tw, "detections\t%d\n", r.Catalog.Len())
	if r.ExportPath != "" {
		fmt.Fprintf(tw, "export\t%s\n", r.ExportPath)
	}
	if r.Published > 0 {
		fmt.Fprintf(tw, "published\t%d\n", r.Published)
	}
	fmt.Fprintf(tw, "elapsed\t%s\n", r.Duration.Round(time.Millisecond))
	for _, e := range r.Exclusions {
		fmt.Fprintf(tw, "excluded\t%s\n", e)
	}
	return tw.Flush()
}
