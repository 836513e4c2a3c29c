package datastore

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
)

// SQLiteStore implements Interface for SQLite.
type SQLiteStore struct {
	DataStore
	Path string // database file, or :memory:
}

// NewSQLiteStore returns an unopened SQLite store at path.
func NewSQLiteStore(path string, log logger.Logger) *SQLiteStore {
	return &SQLiteStore{DataStore: DataStore{log: logger.OrDiscard(log).Module(componentName)}, Path: path}
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// Open connects to the database and migrates the schema.
func (store *SQLiteStore) Open() error {
	if store.Path == "" {
		return errors.NewConfigError(componentName, "sqlite path is not set")
	}

	memory := isMemoryPath(store.Path)
	if !memory {
		if err := os.MkdirAll(filepath.Dir(store.Path), 0o755); err != nil {
			return errors.FileError(err, store.Path, 0)
		}
	}

	db, err := gorm.Open(sqlite.Open(store.Path), store.gormConfig())
	if err != nil {
		return dbError(err, "open").Context("db_type", "sqlite").Build()
	}

	if memory {
		// every connection to :memory: is a separate database
		sqlDB, err := db.DB()
		if err != nil {
			return dbError(err, "open").Build()
		}
		sqlDB.SetMaxOpenConns(1)
	}

	store.DB = db
	return store.performAutoMigration("sqlite")
}
