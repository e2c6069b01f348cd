package database

import (
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
	"github.com/MarcoPoloResearchLab/plantrip/internal/orgs"
	"github.com/MarcoPoloResearchLab/plantrip/internal/users"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and tunes the storage backend.
type Options struct {
	Driver string
	DSN    string
}

// Open connects to the configured backend and brings the schema up to date.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(options.DSN) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	gormConfig := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(options.Driver)) {
	case DriverSQLite, "":
		db, err = gorm.Open(sqlite.Open(options.DSN), gormConfig)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// One writer keeps SQLite transactions serialized.
		sqlDB.SetMaxOpenConns(1)
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(options.DSN), gormConfig)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", options.Driver)
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", options.Driver))
	}
	return db, nil
}

// Models lists every persisted entity in migration order.
func Models() []any {
	models := make([]any, 0, 16)
	models = append(models, users.Models()...)
	models = append(models, orgs.Models()...)
	models = append(models, itinerary.Models()...)
	models = append(models, &migrationRecord{})
	return models
}

// Migrate creates or updates the schema and applies pending data migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
