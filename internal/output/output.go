// Package output writes detection catalogs in human and machine readable
// formats and reads reference event times used for verification.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
)

const componentName = "output"

// Supported export formats.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var csvHeader = []string{"id", "time", "station_count", "stations", "confidence", "verified", "magnitude", "triggers"}

// TriggerView is the serialized form of a trigger.
type TriggerView struct {
	Station   string    `json:"station" yaml:"station"`
	SourceID  string    `json:"source_id" yaml:"source_id"`
	Kind      string    `json:"kind" yaml:"kind"`
	Time      time.Time `json:"time" yaml:"time"`
	Statistic float64   `json:"statistic" yaml:"statistic"`
	Magnitude *float64  `json:"magnitude,omitempty" yaml:"magnitude,omitempty"`
}

// DetectionView is the serialized form of a detection.
type DetectionView struct {
	ID           string        `json:"id" yaml:"id"`
	Time         time.Time     `json:"time" yaml:"time"`
	Stations     []string      `json:"stations" yaml:"stations"`
	StationCount int           `json:"station_count" yaml:"station_count"`
	Confidence   float64       `json:"confidence" yaml:"confidence"`
	Verified     bool          `json:"verified" yaml:"verified"`
	Magnitude    *float64      `json:"magnitude,omitempty" yaml:"magnitude,omitempty"`
	Triggers     []TriggerView `json:"triggers" yaml:"triggers"`
}

// StatsView is the serialized form of association statistics.
type StatsView struct {
	Triggers      int `json:"triggers" yaml:"triggers"`
	Groups        int `json:"groups" yaml:"groups"`
	Discarded     int `json:"discarded" yaml:"discarded"`
	FalsePositive int `json:"false_positive" yaml:"false_positive"`
	Verified      int `json:"verified" yaml:"verified"`
}

// CatalogView is the serialized form of a catalog.
type CatalogView struct {
	RunID      string          `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Stats      StatsView       `json:"stats" yaml:"stats"`
	Detections []DetectionView `json:"detections" yaml:"detections"`
}

// NewDetectionView converts a detection for serialization. Times are UTC.
func NewDetectionView(d *detection.Detection) DetectionView {
	v := DetectionView{
		ID:           d.ID,
		Time:         d.Time.UTC(),
		Stations:     d.Stations,
		StationCount: d.StationCount,
		Confidence:   d.Confidence,
		Verified:     d.Verified,
		Magnitude:    d.Magnitude,
		Triggers:     make([]TriggerView, len(d.Triggers)),
	}
	for i, t := range d.Triggers {
		v.Triggers[i] = TriggerView{
			Station:   t.Station,
			SourceID:  t.SourceID,
			Kind:      string(t.Kind),
			Time:      t.Time.UTC(),
			Statistic: t.Statistic,
			Magnitude: t.Magnitude,
		}
	}
	return v
}

// NewCatalogView converts a catalog for serialization.
func NewCatalogView(runID string, c *detection.Catalog) CatalogView {
	v := CatalogView{RunID: runID, Detections: []DetectionView{}}
	if c == nil {
		return v
	}
	v.Stats = StatsView(c.Stats)
	for i := range c.Detections {
		v.Detections = append(v.Detections, NewDetectionView(&c.Detections[i]))
	}
	return v
}

// Write renders the catalog in format to w.
func Write(w io.Writer, format, runID string, c *detection.Catalog) error {
	var err error
	switch strings.ToLower(format) {
	case FormatTable:
		err = writeTable(w, c)
	case FormatCSV:
		err = writeCSV(w, c)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(NewCatalogView(runID, c))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err = enc.Encode(NewCatalogView(runID, c)); err == nil {
			err = enc.Close()
		}
	default:
		return errors.NewConfigError(componentName, "unsupported export format %q", format)
	}
	if err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("format", format).
			Build()
	}
	return nil
}

// FileName returns the export file name for a run.
func FileName(runID, format string) string {
	ext := format
	if format == FormatTable {
		ext = "txt"
	}
	return fmt.Sprintf("catalog-%s.%s", runID, ext)
}

// WriteFile exports the catalog into dir and returns the file path.
func WriteFile(dir, format, runID string, c *detection.Catalog) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.FileError(err, dir, 0)
	}
	path := filepath.Join(dir, FileName(runID, format))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.FileError(err, path, 0)
	}
	if err := Write(f, format, runID, c); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.FileError(err, path, 0)
	}
	return path, nil
}

func formatMagnitude(m *float64) string {
	if m == nil {
		return ""
	}
	return strconv.FormatFloat(*m, 'f', 2, 64)
}

func writeCSV(w io.Writer, c *detection.Catalog) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	if c != nil {
		for i := range c.Detections {
			d := &c.Detections[i]
			record := []string{
				d.ID,
				d.Time.UTC().Format(time.RFC3339Nano),
				strconv.Itoa(d.StationCount),
				strings.Join(d.Stations, ";"),
				strconv.FormatFloat(d.Confidence, 'f', 4, 64),
				strconv.FormatBool(d.Verified),
				formatMagnitude(d.Magnitude),
				strconv.Itoa(len(d.Triggers)),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeTable(w io.Writer, c *detection.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATIONS\tCONFIDENCE\tVERIFIED\tMAGNITUDE\tID")
	if c != nil {
		for i := range c.Detections {
			d := &c.Detections[i]
			verified := ""
			if d.Verified {
				verified = "yes"
			}
			fmt.Fprintf(tw, "%s\t%d (%s)\t%.3f\t%s\t%s\t%s\n",
				d.Time.UTC().Format("2006-01-02 15:04:05.000"),
				d.StationCount, strings.Join(d.Stations, ","),
				d.Confidence, verified, formatMagnitude(d.Magnitude), d.ID)
		}
		s := c.Stats
		fmt.Fprintf(tw, "\n%d detections from %d triggers (%d groups, %d discarded, %d false positive, %d verified)\n",
			c.Len(), s.Triggers, s.Groups, s.Discarded, s.FalsePositive, s.Verified)
	}
	return tw.Flush()
}
