package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testCatalog() *detection.Catalog {
	mag := 0.75
	return &detection.Catalog{
		Detections: []detection.Detection{
			{
				ID:   "a",
				Time: t0,
				Triggers: []detection.Trigger{
					{Station: "STA1", SourceID: "c1", Kind: detection.KindSubspace, Time: t0, Statistic: 0.8},
					{Station: "STA2", SourceID: "c1", Kind: detection.KindSubspace, Time: t0.Add(time.Second), Statistic: 0.6},
				},
				Stations:     []string{"STA1", "STA2"},
				StationCount: 2,
				Confidence:   0.7,
			},
			{
				ID:           "b",
				Time:         t0.Add(time.Hour),
				Stations:     []string{"STA1", "STA2", "STA3"},
				StationCount: 3,
				Confidence:   0.9,
				Verified:     true,
				Magnitude:    &mag,
			},
		},
		Stats: detection.Stats{Triggers: 5, Groups: 2, Verified: 1},
	}
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, "run", testCatalog()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"a", "2024-03-01T12:00:00Z", "2", "STA1;STA2", "0.7000", "false", "", "2"}, rows[1])
	assert.Equal(t, "0.75", rows[2][6])
	assert.Equal(t, "true", rows[2][5])
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, "run-1", testCatalog()))

	var view CatalogView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
	assert.Equal(t, "run-1", view.RunID)
	require.Len(t, view.Detections, 2)
	assert.Len(t, view.Detections[0].Triggers, 2)
	assert.Equal(t, 5, view.Stats.Triggers)
	assert.True(t, view.Detections[1].Time.Equal(t0.Add(time.Hour)))
}

func TestWriteYAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, "", testCatalog()))

	var view CatalogView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &view))
	require.Len(t, view.Detections, 2)
	assert.Equal(t, []string{"STA1", "STA2", "STA3"}, view.Detections[1].Stations)
	require.NotNil(t, view.Detections[1].Magnitude)
	assert.InDelta(t, 0.75, *view.Detections[1].Magnitude, 1e-12)
}

func TestWriteTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatTable, "", testCatalog()))
	out := buf.String()
	assert.Contains(t, out, "TIME")
	assert.Contains(t, out, "2024-03-01 12:00:00.000")
	assert.Contains(t, out, "3 (STA1,STA2,STA3)")
	assert.Contains(t, out, "2 detections from 5 triggers")
}

func TestWriteEmptyCatalog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, "", nil))
	assert.Contains(t, buf.String(), `"detections": []`)
}

func TestWriteUnknownFormat(t *testing.T) {
	t.Parallel()

	err := Write(&bytes.Buffer{}, "xml", "", testCatalog())
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "exports")
	path, err := WriteFile(dir, FormatTable, "r1", testCatalog())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "catalog-r1.txt"), path)
	assert.FileExists(t, path)
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadReferenceTimes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		want    []time.Time
		wantErr bool
	}{
		{
			name:    "csv with header",
			file:    "ref.csv",
			content: "time,magnitude\n2024-03-01T13:00:00Z,1.2\n# comment\n2024-03-01T12:00:00Z,0.4\n",
			want:    []time.Time{t0, t0.Add(time.Hour)},
		},
		{
			name:    "csv without header",
			file:    "ref.csv",
			content: "2024-03-01T12:00:00.5Z\n",
			want:    []time.Time{t0.Add(500 * time.Millisecond)},
		},
		{
			name:    "csv bad row",
			file:    "ref.csv",
			content: "2024-03-01T12:00:00Z\nyesterday\n",
			wantErr: true,
		},
		{
			name:    "yaml",
			file:    "ref.yaml",
			content: "events:\n  - time: 2024-03-01T13:00:00Z\n  - time: 2024-03-01T12:00:00Z\n",
			want:    []time.Time{t0, t0.Add(time.Hour)},
		},
		{
			name:    "empty yaml",
			file:    "ref.yml",
			content: "",
			want:    []time.Time{},
		},
		{
			name:    "unsupported extension",
			file:    "ref.json",
			content: "[]",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ReadReferenceTimes(writeTemp(t, tt.file, tt.content))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.True(t, tt.want[i].Equal(got[i]), "index %d: %v != %v", i, tt.want[i], got[i])
			}
		})
	}
}

func TestReadReferenceTimesMissingFile(t *testing.T) {
	t.Parallel()

	_, err := ReadReferenceTimes(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}
