package output

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/seisnet-go/internal/errors"
)

// referenceFile is the YAML layout of a reference event list.
type referenceFile struct {
	Events []struct {
		Time time.Time `yaml:"time"`
	} `yaml:"events"`
}

// ReadReferenceTimes reads reference event times from a CSV or YAML file,
// chosen by extension. The result is sorted.
func ReadReferenceTimes(path string) ([]time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileError(err, path, 0)
	}
	defer f.Close()

	var times []time.Time
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		times, err = parseReferenceYAML(f)
	case ".csv", ".txt":
		times, err = parseReferenceCSV(f)
	default:
		return nil, errors.NewConfigError(componentName, "unsupported reference file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileParsing).
			Context("file", path).
			Build()
	}

	slices.SortFunc(times, time.Time.Compare)
	return times, nil
}

func parseReferenceYAML(r io.Reader) ([]time.Time, error) {
	var doc referenceFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	times := make([]time.Time, 0, len(doc.Events))
	for _, e := range doc.Events {
		times = append(times, e.Time.UTC())
	}
	return times, nil
}

// parseReferenceCSV reads the first column of every row as an RFC3339
// time. A header row whose first field is not a time is skipped.
func parseReferenceCSV(r io.Reader) ([]time.Time, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	var times []time.Time
	for row := 0; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return times, nil
		}
		if err != nil {
			return nil, err
		}
		field := strings.TrimSpace(record[0])
		if field == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, field)
		if err != nil {
			if row == 0 {
				continue
			}
			return nil, errors.Newf("row %d: invalid time %q", row+1, field).
				Component(componentName).
				Category(errors.CategoryValidation).
				Build()
		}
		times = append(times, t.UTC())
	}
}
