package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/logger"
)

// MySQLStore implements Interface for MySQL.
type MySQLStore struct {
	DataStore
	Settings conf.MySQLSettings
}

// dsn builds the connection string. Times are stored in UTC.
func (store *MySQLStore) dsn() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		store.Settings.Username, store.Settings.Password,
		store.Settings.Host, store.Settings.Port,
		store.Settings.Database)
}

// Open connects to the database and migrates the schema.
func (store *MySQLStore) Open() error {
	db, err := gorm.Open(mysql.Open(store.dsn()), store.gormConfig())
	if err != nil {
		store.log.Error("failed to open MySQL database",
			logger.String("host", store.Settings.Host),
			logger.String("port", store.Settings.Port),
			logger.String("database", store.Settings.Database),
			logger.Error(err))
		return dbError(err, "open").Context("db_type", "mysql").Build()
	}

	store.DB = db
	return store.performAutoMigration("mysql")
}
