package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

const (
	migrationBackfillVersionSequence = "2026-03-01_backfill_trip_version_seq"
	migrationNormalizeFlightType     = "2026-03-08_normalize_flight_movements"
	migrationUppercaseCurrency       = "2026-03-15_uppercase_trip_currency"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillVersionSequence, apply: backfillVersionSequence},
		{name: migrationNormalizeFlightType, apply: normalizeFlightMovements},
		{name: migrationUppercaseCurrency, apply: uppercaseTripCurrency},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillVersionSequence raises each trip's version counter to its highest
// stored version so deleted numbers are never issued again.
func backfillVersionSequence(db *gorm.DB) error {
	highest := db.Model(&itinerary.Version{}).
		Select("COALESCE(MAX(version_number), 0)").
		Where("trip_versions.trip_id = trips.id")
	return db.Model(&itinerary.Trip{}).
		Where("version_seq < (?)", highest).
		UpdateColumn("version_seq", highest).Error
}

func normalizeFlightMovements(db *gorm.DB) error {
	return db.Model(&itinerary.Movement{}).
		Where("type = ?", "flight").
		UpdateColumn("type", itinerary.MovementPlane).Error
}

func uppercaseTripCurrency(db *gorm.DB) error {
	return db.Model(&itinerary.Trip{}).
		Where("currency <> UPPER(currency)").
		UpdateColumn("currency", gorm.Expr("UPPER(currency)")).Error
}
