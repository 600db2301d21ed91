package sqlstore

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps a GORM/Postgres connection tuned for the report/workflow
// query load, grounded on the teacher's pooling numbers (10 idle / 100 open
// / 1h lifetime).
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres, configures the connection pool, and runs
// AutoMigrate for every model this package owns.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&WorkflowRecord{},
		&TaskResultRecord{},
		&ReportRecord{},
		&MatchRecord{},
		&MitreTechniqueRecord{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
