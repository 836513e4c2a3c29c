// Package datastore persists detectors and detection catalogs with gorm.
package datastore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/detection"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/subspace"
)

const (
	componentName = "datastore"

	slowQueryThreshold = 500 * time.Millisecond
)

// Interface is the persistence API used by the pipeline and the HTTP API.
type Interface interface {
	Open() error
	Close() error
	SaveBases(bases []*subspace.Basis, singletons []*subspace.Singleton) error
	LoadBases(stations ...string) ([]*subspace.Basis, []*subspace.Singleton, error)
	DeleteBases(sourceIDs ...string) (int64, error)
	SaveCatalog(run *RunRecord, catalog *detection.Catalog) error
	LoadCatalog(runID string) (*detection.Catalog, error)
	QueryDetections(start, end time.Time, minStations int) ([]DetectionRecord, error)
	ListRuns() ([]RunRecord, error)
	DeleteRun(runID string) error
}

// DataStore implements Interface on a gorm database.
type DataStore struct {
	DB  *gorm.DB // GORM database instance
	log logger.Logger
}

// New returns the store enabled in settings, or nil when persistence is
// disabled. The store must be opened before use.
func New(settings *conf.Settings, log logger.Logger) Interface {
	log = logger.OrDiscard(log).Module(componentName)
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{DataStore: DataStore{log: log}, Path: settings.Output.SQLite.Path}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{DataStore: DataStore{log: log}, Settings: settings.Output.MySQL}
	default:
		return nil
	}
}

func (ds *DataStore) gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.NewGormLoggerAdapter(ds.log, slowQueryThreshold)}
}

// performAutoMigration creates or updates the schema.
func (ds *DataStore) performAutoMigration(dbType string) error {
	started := time.Now()
	if err := ds.DB.AutoMigrate(&BasisRecord{}, &RunRecord{}, &DetectionRecord{}, &TriggerRecord{}); err != nil {
		return dbError(err, "auto-migrate").Context("db_type", dbType).Build()
	}
	ds.log.Debug("database migrated",
		logger.String("db_type", dbType),
		logger.Duration("elapsed", time.Since(started)))
	return nil
}

func dbError(err error, operation string) *errors.ErrorBuilder {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryDatabase).
		Context("operation", operation)
}

func (ds *DataStore) ready() error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component(componentName).
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// Close closes the underlying connection pool.
func (ds *DataStore) Close() error {
	if err := ds.ready(); err != nil {
		return err
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close").Build()
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close").Build()
	}
	return nil
}

// SaveBases inserts or replaces detectors by source id.
func (ds *DataStore) SaveBases(bases []*subspace.Basis, singletons []*subspace.Singleton) error {
	if err := ds.ready(); err != nil {
		return err
	}

	records := make([]BasisRecord, 0, len(bases)+len(singletons))
	for _, b := range bases {
		records = append(records, basisToRecord(b))
	}
	for _, s := range singletons {
		records = append(records, singletonToRecord(s))
	}
	if len(records) == 0 {
		return nil
	}

	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}},
		UpdateAll: true,
	}).Create(&records).Error
	if err != nil {
		return dbError(err, "save-bases").Context("count", len(records)).Build()
	}

	ds.log.Info("detectors saved",
		logger.Int("bases", len(bases)),
		logger.Int("singletons", len(singletons)))
	return nil
}

// LoadBases returns the stored detectors, optionally restricted to stations,
// ordered by source id.
func (ds *DataStore) LoadBases(stations ...string) ([]*subspace.Basis, []*subspace.Singleton, error) {
	if err := ds.ready(); err != nil {
		return nil, nil, err
	}

	query := ds.DB.Order("source_id")
	if len(stations) > 0 {
		query = query.Where("station IN ?", stations)
	}

	var records []BasisRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, nil, dbError(err, "load-bases").Build()
	}

	var bases []*subspace.Basis
	var singletons []*subspace.Singleton
	for i := range records {
		switch detection.SourceKind(records[i].Kind) {
		case detection.KindSubspace:
			bases = append(bases, records[i].toBasis())
		case detection.KindSingleton:
			singletons = append(singletons, records[i].toSingleton())
		default:
			ds.log.Warn("skipping detector of unknown kind",
				logger.String("source", records[i].SourceID),
				logger.String("kind", records[i].Kind))
		}
	}
	return bases, singletons, nil
}

// DeleteBases deletes detectors by source id, or all of them when no id is
// given. It returns the number of deleted rows.
func (ds *DataStore) DeleteBases(sourceIDs ...string) (int64, error) {
	if err := ds.ready(); err != nil {
		return 0, err
	}

	query := ds.DB.Session(&gorm.Session{AllowGlobalUpdate: true})
	if len(sourceIDs) > 0 {
		query = query.Where("source_id IN ?", sourceIDs)
	}
	result := query.Delete(&BasisRecord{})
	if result.Error != nil {
		return 0, dbError(result.Error, "delete-bases").Build()
	}
	return result.RowsAffected, nil
}

// SaveCatalog stores run and its detections in one transaction. An empty
// run id is generated.
func (ds *DataStore) SaveCatalog(run *RunRecord, catalog *detection.Catalog) error {
	if err := ds.ready(); err != nil {
		return err
	}
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}

	run.Detections = catalog.Len()
	if catalog != nil {
		s := catalog.Stats
		run.Triggers, run.Groups, run.Discarded = s.Triggers, s.Groups, s.Discarded
		run.FalsePositive, run.Verified = s.FalsePositive, s.Verified
	}

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if catalog.Len() == 0 {
			return nil
		}
		records := make([]DetectionRecord, len(catalog.Detections))
		for i := range catalog.Detections {
			records[i] = detectionToRecord(run.RunID, &catalog.Detections[i])
		}
		return tx.CreateInBatches(&records, 100).Error
	})
	if err != nil {
		return dbError(err, "save-catalog").Context("run_id", run.RunID).Build()
	}

	ds.log.Info("catalog saved",
		logger.String("run_id", run.RunID),
		logger.Int("detections", run.Detections))
	return nil
}

func (ds *DataStore) findRun(runID string) (*RunRecord, error) {
	var run RunRecord
	err := ds.DB.Where("run_id = ?", runID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Newf("run %s not found", runID).
			Component(componentName).
			Category(errors.CategoryNotFound).
			Build()
	}
	if err != nil {
		return nil, dbError(err, "find-run").Build()
	}
	return &run, nil
}

// LoadCatalog returns the catalog saved for runID.
func (ds *DataStore) LoadCatalog(runID string) (*detection.Catalog, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}

	run, err := ds.findRun(runID)
	if err != nil {
		return nil, err
	}

	var records []DetectionRecord
	err = ds.DB.Preload("Triggers").
		Where("run_id = ?", runID).
		Order("time").Order("detection_id").
		Find(&records).Error
	if err != nil {
		return nil, dbError(err, "load-catalog").Context("run_id", runID).Build()
	}

	catalog := &detection.Catalog{Stats: run.stats()}
	for i := range records {
		catalog.Detections = append(catalog.Detections, records[i].ToDetection())
	}
	catalog.Sort()
	return catalog, nil
}

// QueryDetections returns detections of every run in [start, end) with at
// least minStations stations. Zero bounds are open.
func (ds *DataStore) QueryDetections(start, end time.Time, minStations int) ([]DetectionRecord, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}

	query := ds.DB.Preload("Triggers").Where("station_count >= ?", minStations)
	if !start.IsZero() {
		query = query.Where("time >= ?", start)
	}
	if !end.IsZero() {
		query = query.Where("time < ?", end)
	}

	var records []DetectionRecord
	if err := query.Order("time").Order("detection_id").Find(&records).Error; err != nil {
		return nil, dbError(err, "query-detections").Build()
	}
	return records, nil
}

// ListRuns returns all runs, newest first.
func (ds *DataStore) ListRuns() ([]RunRecord, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	var runs []RunRecord
	if err := ds.DB.Order("created_at DESC").Order("id DESC").Find(&runs).Error; err != nil {
		return nil, dbError(err, "list-runs").Build()
	}
	return runs, nil
}

// DeleteRun removes a run with its detections and triggers.
func (ds *DataStore) DeleteRun(runID string) error {
	if err := ds.ready(); err != nil {
		return err
	}
	if _, err := ds.findRun(runID); err != nil {
		return err
	}

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		detections := tx.Model(&DetectionRecord{}).Select("id").Where("run_id = ?", runID)
		if err := tx.Where("detection_record_id IN (?)", detections).Delete(&TriggerRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", runID).Delete(&DetectionRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("run_id = ?", runID).Delete(&RunRecord{}).Error
	})
	if err != nil {
		return dbError(err, "delete-run").Context("run_id", runID).Build()
	}
	return nil
}
