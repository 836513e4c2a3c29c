package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/subspace"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(":memory:", nil)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func f64(v float64) *float64 { return &v }

func testBasis(id, station string) *subspace.Basis {
	return &subspace.Basis{
		ClusterID:      id,
		Station:        station,
		Members:        []string{"ev1", "ev2"},
		Excluded:       []string{"ev3"},
		Vectors:        [][]float64{{0.6, 0.8}, {0.8, -0.6}},
		SingularValues: []float64{2.5, 0.4},
		Rank:           2,
		Normalized:     true,
		SampleRate:     100,
		ReferencePeak:  12.5,
		PickOffset:     2 * time.Second,
		Calibration: subspace.Calibration{
			Mode:         subspace.CalibrationFixed,
			Threshold:    0.42,
			NoiseWindows: 10,
			Histogram:    &subspace.Histogram{Min: 0, Max: 1, Counts: []int{3, 2}},
		},
	}
}

func testSingleton(id, station string) *subspace.Singleton {
	return &subspace.Singleton{
		TemplateID:    id,
		Station:       station,
		Waveform:      []float64{0.1, 0.7, -0.7},
		SampleRate:    100,
		ReferencePeak: 3,
		PickOffset:    time.Second,
		Calibration:   subspace.Calibration{Mode: subspace.CalibrationFixed, Threshold: 0.7},
	}
}

func testCatalog() *detection.Catalog {
	trig := func(station string, at time.Duration, stat float64) detection.Trigger {
		return detection.Trigger{
			Station:   station,
			SourceID:  "c1",
			Kind:      detection.KindSubspace,
			Time:      t0.Add(at),
			Statistic: stat,
		}
	}
	return &detection.Catalog{
		Detections: []detection.Detection{
			{
				ID:           "d-1",
				Time:         t0,
				Triggers:     []detection.Trigger{trig("STA1", 0, 0.8), trig("STA2", time.Second, 0.6)},
				Stations:     []string{"STA1", "STA2"},
				StationCount: 2,
				Confidence:   0.7,
			},
			{
				ID:           "d-2",
				Time:         t0.Add(time.Hour),
				Triggers:     []detection.Trigger{trig("STA1", time.Hour, 0.9), trig("STA2", time.Hour, 0.9), trig("STA3", time.Hour, 0.9)},
				Stations:     []string{"STA1", "STA2", "STA3"},
				StationCount: 3,
				Confidence:   0.95,
				Verified:     true,
				Magnitude:    f64(1.2),
			},
		},
		Stats: detection.Stats{Triggers: 6, Groups: 3, Discarded: 1, Verified: 1},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	assert.Nil(t, New(settings, nil))

	settings.Output.SQLite = conf.SQLiteSettings{Enabled: true, Path: ":memory:"}
	store, ok := New(settings, nil).(*SQLiteStore)
	require.True(t, ok)
	assert.Equal(t, ":memory:", store.Path)

	settings.Output.SQLite.Enabled = false
	settings.Output.MySQL = conf.MySQLSettings{Enabled: true, Username: "u", Password: "p", Host: "db", Port: "3306", Database: "seis"}
	mysqlStore, ok := New(settings, nil).(*MySQLStore)
	require.True(t, ok)
	assert.Equal(t, "u:p@tcp(db:3306)/seis?charset=utf8mb4&parseTime=True&loc=UTC", mysqlStore.dsn())
}

func TestUnopenedStore(t *testing.T) {
	t.Parallel()

	store := NewSQLiteStore(":memory:", nil)
	_, err := store.ListRuns()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
}

func TestSQLiteOpenEmptyPath(t *testing.T) {
	t.Parallel()

	err := NewSQLiteStore("", nil).Open()
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestSQLiteOpenCreatesDirectory(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/nested/dir/seisnet.db"
	store := NewSQLiteStore(path, nil)
	require.NoError(t, store.Open())
	require.NoError(t, store.Close())
	assert.FileExists(t, path)
}

func TestSaveAndLoadBases(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	require.NoError(t, store.SaveBases(
		[]*subspace.Basis{testBasis("STA1-c1", "STA1"), testBasis("STA2-c1", "STA2")},
		[]*subspace.Singleton{testSingleton("ev9", "STA1")},
	))

	bases, singles, err := store.LoadBases()
	require.NoError(t, err)
	require.Len(t, bases, 2)
	require.Len(t, singles, 1)

	got := bases[0]
	want := testBasis("STA1-c1", "STA1")
	assert.Equal(t, want.ClusterID, got.ClusterID)
	assert.Equal(t, want.Members, got.Members)
	assert.Equal(t, want.Excluded, got.Excluded)
	assert.Equal(t, want.Vectors, got.Vectors)
	assert.Equal(t, want.SingularValues, got.SingularValues)
	assert.Equal(t, want.Rank, got.Rank)
	assert.Equal(t, want.PickOffset, got.PickOffset)
	assert.InDelta(t, 0.42, got.DetectionThreshold(), 1e-12)
	require.NotNil(t, got.Calibration.Histogram)
	assert.Equal(t, []int{3, 2}, got.Calibration.Histogram.Counts)

	assert.Equal(t, "ev9", singles[0].TemplateID)
	assert.Equal(t, []float64{0.1, 0.7, -0.7}, singles[0].Waveform)
	assert.InDelta(t, 0.7, singles[0].DetectionThreshold(), 1e-12)

	bases, singles, err = store.LoadBases("STA2")
	require.NoError(t, err)
	require.Len(t, bases, 1)
	assert.Equal(t, "STA2-c1", bases[0].ClusterID)
	assert.Empty(t, singles)
}

func TestSaveBasesReplacesBySourceID(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	b := testBasis("STA1-c1", "STA1")
	require.NoError(t, store.SaveBases([]*subspace.Basis{b}, nil))

	b.Calibration.Threshold = 0.55
	b.Rank = 1
	b.Vectors = b.Vectors[:1]
	require.NoError(t, store.SaveBases([]*subspace.Basis{b}, nil))

	bases, _, err := store.LoadBases()
	require.NoError(t, err)
	require.Len(t, bases, 1)
	assert.Equal(t, 1, bases[0].Rank)
	assert.InDelta(t, 0.55, bases[0].DetectionThreshold(), 1e-12)
}

func TestDeleteBases(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	require.NoError(t, store.SaveBases(
		[]*subspace.Basis{testBasis("a", "STA1"), testBasis("b", "STA1")},
		[]*subspace.Singleton{testSingleton("c", "STA1")},
	))

	n, err := store.DeleteBases("a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.DeleteBases()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	bases, singles, err := store.LoadBases()
	require.NoError(t, err)
	assert.Empty(t, bases)
	assert.Empty(t, singles)
}

func TestSaveAndLoadCatalog(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	run := &RunRecord{Start: t0, End: t0.Add(24 * time.Hour), Exclusions: 2}
	catalog := testCatalog()
	require.NoError(t, store.SaveCatalog(run, catalog))
	require.NotEmpty(t, run.RunID)
	assert.Equal(t, 2, run.Detections)
	assert.Equal(t, 6, run.Triggers)

	loaded, err := store.LoadCatalog(run.RunID)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())
	assert.Equal(t, catalog.Stats, loaded.Stats)

	for i := range catalog.Detections {
		want, got := catalog.Detections[i], loaded.Detections[i]
		assert.Equal(t, want.ID, got.ID)
		assert.True(t, want.Time.Equal(got.Time))
		assert.Equal(t, want.Stations, got.Stations)
		assert.Equal(t, want.StationCount, got.StationCount)
		assert.InDelta(t, want.Confidence, got.Confidence, 1e-12)
		assert.Equal(t, want.Verified, got.Verified)
		require.Len(t, got.Triggers, len(want.Triggers))
		for j := range want.Triggers {
			assert.Equal(t, want.Triggers[j].Station, got.Triggers[j].Station)
			assert.True(t, want.Triggers[j].Time.Equal(got.Triggers[j].Time))
		}
	}
	require.NotNil(t, loaded.Detections[1].Magnitude)
	assert.InDelta(t, 1.2, *loaded.Detections[1].Magnitude, 1e-12)
	assert.Nil(t, loaded.Detections[0].Magnitude)
}

func TestSaveEmptyCatalog(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	run := &RunRecord{RunID: "empty-run"}
	require.NoError(t, store.SaveCatalog(run, &detection.Catalog{}))

	loaded, err := store.LoadCatalog("empty-run")
	require.NoError(t, err)
	assert.Zero(t, loaded.Len())
}

func TestLoadCatalogNotFound(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	_, err := store.LoadCatalog("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	err = store.DeleteRun("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestQueryDetections(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	require.NoError(t, store.SaveCatalog(&RunRecord{}, testCatalog()))

	all, err := store.QueryDetections(time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	wide, err := store.QueryDetections(time.Time{}, time.Time{}, 3)
	require.NoError(t, err)
	require.Len(t, wide, 1)
	assert.Equal(t, "d-2", wide[0].DetectionID)
	assert.Len(t, wide[0].Triggers, 3)

	early, err := store.QueryDetections(t0, t0.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, early, 1)
	assert.Equal(t, "d-1", early[0].DetectionID)
}

func TestListAndDeleteRuns(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	first := &RunRecord{RunID: "run-1"}
	second := &RunRecord{RunID: "run-2"}
	require.NoError(t, store.SaveCatalog(first, testCatalog()))
	require.NoError(t, store.SaveCatalog(second, testCatalog()))

	runs, err := store.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)

	require.NoError(t, store.DeleteRun("run-1"))

	runs, err = store.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)

	remaining, err := store.QueryDetections(time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)

	var triggers int64
	require.NoError(t, store.DB.Model(&TriggerRecord{}).Count(&triggers).Error)
	assert.Equal(t, int64(5), triggers)
}
