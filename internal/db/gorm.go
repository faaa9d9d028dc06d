package db

import (
	"fmt"
	"log/slog"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/lorelabs/loreengine/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB opens the single owned database file with the sqlite-vec extension
// loaded. A missing or broken vector extension is a fatal startup error: the
// store cannot operate without the distance function.
func OpenDB(dbPath string) (*gorm.DB, error) {
	sqlite_vec.Auto()

	db, err := gorm.Open(
		sqlite.Open(fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL&_foreign_keys=on", dbPath)),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite database")
	}

	var sqliteVersion, vecVersion string
	if err := db.Raw("SELECT sqlite_version(), vec_version()").Row().Scan(&sqliteVersion, &vecVersion); err != nil {
		return nil, errors.Wrapf(err, "sqlite-vec extension not properly loaded")
	}

	return db, nil
}

func CloseDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrapf(err, "failed to get db")
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrapf(err, "failed to close db")
	}

	return nil
}

// MustOpen opens and migrates, logging and aborting on any failure.
func MustOpen(dbPath string, logger *slog.Logger) *gorm.DB {
	db, err := OpenDB(dbPath)
	if err != nil {
		logger.Error("failed to open database", "path", dbPath, "err", err)
		panic(err)
	}
	if err := AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "path", dbPath, "err", err)
		panic(err)
	}
	return db
}
