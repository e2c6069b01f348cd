package itinerary

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

// MovementInput describes a movement between two stops of one trip.
type MovementInput struct {
	FromStopID      string
	ToStopID        string
	Type            string
	DurationMinutes *int
	DepartureTime   *time.Time
	ArrivalTime     *time.Time
	Carrier         string
	BookingRef      string
	Notes           string
	Price           *float64
}

// MovementPatch carries optional movement changes.
type MovementPatch struct {
	Type            *string
	DurationMinutes *int
	DepartureTime   *time.Time
	ArrivalTime     *time.Time
	Carrier         *string
	BookingRef      *string
	Notes           *string
	Price           *float64
}

func (s *Service) ListMovements(ctx context.Context, userID, tripID string) ([]Movement, error) {
	var movements []Movement
	err := s.transact(ctx, opListMovements, func(tx *gorm.DB) error {
		if _, err := s.manageableTrip(ctx, tx, opListMovements, userID, tripID, false); err != nil {
			return err
		}
		if err := tx.Where("trip_id = ?", tripID).Order("created_at ASC, id ASC").Find(&movements).Error; err != nil {
			return s.storageError(opListMovements, "query_failed", err, zap.String("trip_id", tripID))
		}
		return nil
	})
	return movements, err
}

// UpsertMovement creates the movement for (from, to) or overwrites the one that
// already connects that pair. It reports whether a row was created.
func (s *Service) UpsertMovement(ctx context.Context, userID, tripID string, input MovementInput) (Movement, bool, error) {
	if input.FromStopID == "" || input.ToStopID == "" {
		return Movement{}, false, apperr.Validation(opUpsertMovement, "missing_stop", "from_stop_id and to_stop_id are required")
	}
	if input.FromStopID == input.ToStopID {
		return Movement{}, false, apperr.Validation(opUpsertMovement, "self_loop", "a movement must connect two different stops")
	}
	movementType, err := ParseMovementType(input.Type)
	if err != nil {
		return Movement{}, false, apperr.Validation(opUpsertMovement, "invalid_type", err.Error())
	}
	if err := validateDuration(opUpsertMovement, input.DurationMinutes); err != nil {
		return Movement{}, false, err
	}
	if err := validateMovementTexts(opUpsertMovement, &input.Carrier, &input.BookingRef, &input.Notes); err != nil {
		return Movement{}, false, err
	}

	var movement Movement
	var created bool
	err = s.transact(ctx, opUpsertMovement, func(tx *gorm.DB) error {
		if _, err := s.manageableTrip(ctx, tx, opUpsertMovement, userID, tripID, true); err != nil {
			return err
		}
		var endpoints int64
		if err := tx.Model(&Stop{}).
			Where("trip_id = ? AND id IN ?", tripID, []string{input.FromStopID, input.ToStopID}).
			Count(&endpoints).Error; err != nil {
			return s.storageError(opUpsertMovement, "stop_select_failed", err, zap.String("trip_id", tripID))
		}
		if endpoints != 2 {
			return apperr.NotFound(opUpsertMovement, "stop_not_found")
		}

		now := s.now()
		err := tx.Where("from_stop_id = ? AND to_stop_id = ?", input.FromStopID, input.ToStopID).Take(&movement).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			movementID, err := s.idProvider.NewID()
			if err != nil {
				return s.storageError(opUpsertMovement, "id_generation_failed", err)
			}
			movement = Movement{ID: movementID, TripID: tripID, FromStopID: input.FromStopID, ToStopID: input.ToStopID, CreatedAt: now}
			created = true
		case err != nil:
			return s.storageError(opUpsertMovement, "movement_select_failed", err, zap.String("trip_id", tripID))
		}

		movement.Type = movementType
		movement.DurationMinutes = input.DurationMinutes
		movement.DepartureTime = utcPointer(input.DepartureTime)
		movement.ArrivalTime = utcPointer(input.ArrivalTime)
		movement.Carrier = input.Carrier
		movement.BookingRef = input.BookingRef
		movement.Notes = input.Notes
		movement.Price = input.Price
		movement.UpdatedAt = now

		if created {
			if err := tx.Create(&movement).Error; err != nil {
				return s.storageError(opUpsertMovement, "movement_insert_failed", err, zap.String("trip_id", tripID))
			}
			return nil
		}
		if err := tx.Model(&Movement{}).Where("id = ?", movement.ID).Select("*").
			Omit("id", "trip_id", "from_stop_id", "to_stop_id", "created_at").
			Updates(&movement).Error; err != nil {
			return s.storageError(opUpsertMovement, "movement_update_failed", err, zap.String("movement_id", movement.ID))
		}
		return nil
	})
	if err != nil {
		return Movement{}, false, err
	}
	return movement, created, nil
}

func (s *Service) UpdateMovement(ctx context.Context, userID, movementID string, patch MovementPatch) (Movement, error) {
	var movement Movement
	err := s.transact(ctx, opUpdateMovement, func(tx *gorm.DB) error {
		var err error
		movement, err = s.manageableMovement(ctx, tx, opUpdateMovement, userID, movementID)
		if err != nil {
			return err
		}
		if patch.Type != nil {
			movementType, err := ParseMovementType(*patch.Type)
			if err != nil {
				return apperr.Validation(opUpdateMovement, "invalid_type", err.Error())
			}
			movement.Type = movementType
		}
		if patch.DurationMinutes != nil {
			if err := validateDuration(opUpdateMovement, patch.DurationMinutes); err != nil {
				return err
			}
			movement.DurationMinutes = patch.DurationMinutes
		}
		if patch.DepartureTime != nil {
			movement.DepartureTime = utcPointer(patch.DepartureTime)
		}
		if patch.ArrivalTime != nil {
			movement.ArrivalTime = utcPointer(patch.ArrivalTime)
		}
		if patch.Carrier != nil {
			movement.Carrier = *patch.Carrier
		}
		if patch.BookingRef != nil {
			movement.BookingRef = *patch.BookingRef
		}
		if patch.Notes != nil {
			movement.Notes = *patch.Notes
		}
		if patch.Price != nil {
			movement.Price = patch.Price
		}
		if err := validateMovementTexts(opUpdateMovement, &movement.Carrier, &movement.BookingRef, &movement.Notes); err != nil {
			return err
		}
		movement.UpdatedAt = s.now()
		if err := tx.Model(&Movement{}).Where("id = ?", movement.ID).Select("*").
			Omit("id", "trip_id", "from_stop_id", "to_stop_id", "created_at").
			Updates(&movement).Error; err != nil {
			return s.storageError(opUpdateMovement, "movement_update_failed", err, zap.String("movement_id", movementID))
		}
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	return movement, nil
}

func (s *Service) DeleteMovement(ctx context.Context, userID, movementID string) error {
	return s.transact(ctx, opDeleteMovement, func(tx *gorm.DB) error {
		movement, err := s.manageableMovement(ctx, tx, opDeleteMovement, userID, movementID)
		if err != nil {
			return err
		}
		if err := tx.Where("id = ?", movement.ID).Delete(&Movement{}).Error; err != nil {
			return s.storageError(opDeleteMovement, "movement_delete_failed", err, zap.String("movement_id", movementID))
		}
		return nil
	})
}

func (s *Service) manageableMovement(ctx context.Context, tx *gorm.DB, operation, userID, movementID string) (Movement, error) {
	var movement Movement
	err := tx.Where("id = ?", movementID).Take(&movement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Movement{}, apperr.NotFound(operation, "movement_not_found")
	}
	if err != nil {
		return Movement{}, s.storageError(operation, "movement_select_failed", err, zap.String("movement_id", movementID))
	}
	if _, err := s.manageableTrip(ctx, tx, operation, userID, movement.TripID, true); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Movement{}, apperr.NotFound(operation, "movement_not_found")
		}
		return Movement{}, err
	}
	return movement, nil
}

func validateMovementTexts(operation string, carrier, bookingRef, notes *string) error {
	if _, err := validateText(operation, "carrier", *carrier, maxCarrierLength); err != nil {
		return err
	}
	if _, err := validateText(operation, "booking_ref", *bookingRef, maxCarrierLength); err != nil {
		return err
	}
	_, err := validateText(operation, "notes", *notes, maxNotesLength)
	return err
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	converted := value.UTC()
	return &converted
}
