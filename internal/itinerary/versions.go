package itinerary

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

// CreateVersion snapshots the trip's current graph under the next version number.
func (s *Service) CreateVersion(ctx context.Context, userID, tripID, label string) (Version, error) {
	label, err := validateText(opCreateVersion, "label", strings.TrimSpace(label), maxNameLength)
	if err != nil {
		return Version{}, err
	}

	var version Version
	err = s.transact(ctx, opCreateVersion, func(tx *gorm.DB) error {
		trip, err := s.manageableTrip(ctx, tx, opCreateVersion, userID, tripID, true)
		if err != nil {
			return err
		}
		number, err := nextVersionNumber(tx, trip)
		if err != nil {
			return s.storageError(opCreateVersion, "version_number_failed", err, zap.String("trip_id", tripID))
		}
		graph, err := loadItinerary(tx, trip)
		if err != nil {
			return s.storageError(opCreateVersion, "load_failed", err, zap.String("trip_id", tripID))
		}
		versionID, err := s.idProvider.NewID()
		if err != nil {
			return s.storageError(opCreateVersion, "id_generation_failed", err)
		}
		version = Version{
			ID:            versionID,
			TripID:        tripID,
			VersionNumber: number,
			Label:         label,
			Snapshot:      datatypes.NewJSONType(BuildSnapshot(graph)),
			CreatedAt:     s.now(),
		}
		if err := tx.Create(&version).Error; err != nil {
			return s.storageError(opCreateVersion, "version_insert_failed", err, zap.String("trip_id", tripID))
		}
		if err := tx.Model(&Trip{}).Where("id = ?", tripID).UpdateColumn("version_seq", number).Error; err != nil {
			return s.storageError(opCreateVersion, "version_seq_failed", err, zap.String("trip_id", tripID))
		}
		return nil
	})
	if err != nil {
		return Version{}, err
	}
	return version, nil
}

// nextVersionNumber returns a number above both the highest stored version and
// every number ever issued for trip, so deleted numbers are not reissued.
func nextVersionNumber(tx *gorm.DB, trip Trip) (int, error) {
	var highest int
	row := tx.Model(&Version{}).
		Select("COALESCE(MAX(version_number), 0)").
		Where("trip_id = ?", trip.ID).
		Row()
	if err := row.Scan(&highest); err != nil {
		return 0, err
	}
	if trip.VersionSeq > highest {
		highest = trip.VersionSeq
	}
	return highest + 1, nil
}

// ListVersions returns version metadata, newest first. Snapshots are not loaded.
func (s *Service) ListVersions(ctx context.Context, userID, tripID string) ([]Version, error) {
	var versions []Version
	err := s.transact(ctx, opListVersions, func(tx *gorm.DB) error {
		if _, err := s.manageableTrip(ctx, tx, opListVersions, userID, tripID, false); err != nil {
			return err
		}
		if err := tx.Omit("snapshot_data").
			Where("trip_id = ?", tripID).
			Order("version_number DESC").
			Find(&versions).Error; err != nil {
			return s.storageError(opListVersions, "query_failed", err, zap.String("trip_id", tripID))
		}
		return nil
	})
	return versions, err
}

func (s *Service) GetVersion(ctx context.Context, userID, tripID, versionID string) (Version, error) {
	var version Version
	err := s.transact(ctx, opGetVersion, func(tx *gorm.DB) error {
		if _, err := s.manageableTrip(ctx, tx, opGetVersion, userID, tripID, false); err != nil {
			return err
		}
		var err error
		version, err = s.tripVersion(tx, opGetVersion, tripID, versionID)
		return err
	})
	return version, err
}

// DeleteVersion removes a version. Feedback stamped with it keeps its rows.
func (s *Service) DeleteVersion(ctx context.Context, userID, tripID, versionID string) error {
	return s.transact(ctx, opDeleteVersion, func(tx *gorm.DB) error {
		if _, err := s.manageableTrip(ctx, tx, opDeleteVersion, userID, tripID, true); err != nil {
			return err
		}
		version, err := s.tripVersion(tx, opDeleteVersion, tripID, versionID)
		if err != nil {
			return err
		}
		if err := tx.Model(&Feedback{}).Where("version_id = ?", version.ID).UpdateColumn("version_id", nil).Error; err != nil {
			return s.storageError(opDeleteVersion, "feedback_detach_failed", err, zap.String("version_id", versionID))
		}
		if err := tx.Where("id = ?", version.ID).Delete(&Version{}).Error; err != nil {
			return s.storageError(opDeleteVersion, "version_delete_failed", err, zap.String("version_id", versionID))
		}
		return nil
	})
}

// RestoreVersion replaces the trip's live graph with the version's snapshot and
// recomputes the end date. The version itself is not modified.
func (s *Service) RestoreVersion(ctx context.Context, userID, tripID, versionID string) (Version, error) {
	var version Version
	err := s.transact(ctx, opRestoreVersion, func(tx *gorm.DB) error {
		trip, err := s.manageableTrip(ctx, tx, opRestoreVersion, userID, tripID, true)
		if err != nil {
			return err
		}
		version, err = s.tripVersion(tx, opRestoreVersion, tripID, versionID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := restoreSnapshot(tx, s.idProvider, tripID, version.Snapshot.Data(), now); err != nil {
			return s.storageError(opRestoreVersion, "restore_failed", err, zap.String("version_id", versionID))
		}
		if err := recalculateEndDate(tx, &trip, now); err != nil {
			return s.storageError(opRestoreVersion, "end_date_failed", err, zap.String("trip_id", tripID))
		}
		return nil
	})
	if err != nil {
		return Version{}, err
	}
	return version, nil
}

func (s *Service) tripVersion(tx *gorm.DB, operation, tripID, versionID string) (Version, error) {
	var version Version
	err := tx.Where("id = ? AND trip_id = ?", versionID, tripID).Take(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Version{}, apperr.NotFound(operation, "version_not_found")
	}
	if err != nil {
		return Version{}, s.storageError(operation, "version_select_failed", err, zap.String("version_id", versionID))
	}
	return version, nil
}
