package database

import (
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func gormLogLevel() logger.LogLevel {
	switch os.Getenv("DB_LOG_LEVEL") {
	case "silent":
		return logger.Silent
	case "info":
		return logger.Info
	case "error":
		return logger.Error
	default:
		return logger.Warn
	}
}

func newGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormLogLevel(),
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  true,
		},
	)
}

func configurePool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	// The history store is a light write path: one insert per answered
	// query plus the occasional similarity scan. A small pool is enough.
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return nil
}

// NewGormDBFromDSN opens a Postgres connection from a full DSN string.
// PrepareStmt caches the record insert and vector similarity statements,
// which are the only queries this service issues repeatedly.
func NewGormDBFromDSN(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:      newGormLogger(),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, err
	}

	if err := configurePool(db); err != nil {
		return nil, err
	}

	return db, nil
}
