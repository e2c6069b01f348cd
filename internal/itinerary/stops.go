package itinerary

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

// StopInput describes a new stop.
type StopInput struct {
	Name          string
	Lng           float64
	Lat           float64
	Nights        int
	PricePerNight *float64
	Notes         string
}

// StopPatch carries optional stop changes.
type StopPatch struct {
	Name          *string
	Lng           *float64
	Lat           *float64
	Nights        *int
	PricePerNight *float64
	Notes         *string
}

func (s *Service) ListStops(ctx context.Context, userID, tripID string) ([]Stop, error) {
	var stops []Stop
	err := s.transact(ctx, opListStops, func(tx *gorm.DB) error {
		if _, err := s.manageableTrip(ctx, tx, opListStops, userID, tripID, false); err != nil {
			return err
		}
		if err := tx.Where("trip_id = ?", tripID).Order("sort_index ASC").Find(&stops).Error; err != nil {
			return s.storageError(opListStops, "query_failed", err, zap.String("trip_id", tripID))
		}
		return nil
	})
	return stops, err
}

// CreateStop appends a stop after the current last one and recomputes the
// trip's end date.
func (s *Service) CreateStop(ctx context.Context, userID, tripID string, input StopInput) (Stop, error) {
	name, err := validateName(opCreateStop, "name", input.Name)
	if err != nil {
		return Stop{}, err
	}
	if err := validateCoordinates(opCreateStop, input.Lng, input.Lat); err != nil {
		return Stop{}, err
	}
	nights := input.Nights
	if nights == 0 {
		nights = 1
	}
	if err := validateNights(opCreateStop, nights); err != nil {
		return Stop{}, err
	}
	notes, err := validateText(opCreateStop, "notes", input.Notes, maxNotesLength)
	if err != nil {
		return Stop{}, err
	}

	var stop Stop
	err = s.transact(ctx, opCreateStop, func(tx *gorm.DB) error {
		trip, err := s.manageableTrip(ctx, tx, opCreateStop, userID, tripID, true)
		if err != nil {
			return err
		}
		index, err := nextSortIndex(tx, &Stop{}, "trip_id", tripID)
		if err != nil {
			return s.storageError(opCreateStop, "sort_index_failed", err, zap.String("trip_id", tripID))
		}
		stopID, err := s.idProvider.NewID()
		if err != nil {
			return s.storageError(opCreateStop, "id_generation_failed", err)
		}
		now := s.now()
		stop = Stop{
			ID:            stopID,
			TripID:        tripID,
			SortIndex:     index,
			Name:          name,
			Lng:           input.Lng,
			Lat:           input.Lat,
			Nights:        nights,
			PricePerNight: input.PricePerNight,
			Notes:         notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(&stop).Error; err != nil {
			return s.storageError(opCreateStop, "stop_insert_failed", err, zap.String("trip_id", tripID))
		}
		if err := recalculateEndDate(tx, &trip, now); err != nil {
			return s.storageError(opCreateStop, "end_date_failed", err, zap.String("trip_id", tripID))
		}
		return nil
	})
	if err != nil {
		return Stop{}, err
	}
	return stop, nil
}

func (s *Service) UpdateStop(ctx context.Context, userID, stopID string, patch StopPatch) (Stop, error) {
	var updated Stop
	err := s.transact(ctx, opUpdateStop, func(tx *gorm.DB) error {
		stop, trip, err := s.manageableStop(ctx, tx, opUpdateStop, userID, stopID, true)
		if err != nil {
			return err
		}
		if err := applyStopPatch(&stop, patch); err != nil {
			return err
		}
		stop.UpdatedAt = s.now()
		if err := tx.Model(&Stop{}).Where("id = ?", stop.ID).Select(
			"name", "lng", "lat", "nights", "price_per_night", "notes", "updated_at",
		).Updates(&stop).Error; err != nil {
			return s.storageError(opUpdateStop, "stop_update_failed", err, zap.String("stop_id", stopID))
		}
		if patch.Nights != nil {
			if err := recalculateEndDate(tx, &trip, stop.UpdatedAt); err != nil {
				return s.storageError(opUpdateStop, "end_date_failed", err, zap.String("trip_id", trip.ID))
			}
		}
		updated = stop
		return nil
	})
	if err != nil {
		return Stop{}, err
	}
	return updated, nil
}

func applyStopPatch(stop *Stop, patch StopPatch) error {
	if patch.Name != nil {
		name, err := validateName(opUpdateStop, "name", *patch.Name)
		if err != nil {
			return err
		}
		stop.Name = name
	}
	if patch.Lng != nil {
		stop.Lng = *patch.Lng
	}
	if patch.Lat != nil {
		stop.Lat = *patch.Lat
	}
	if err := validateCoordinates(opUpdateStop, stop.Lng, stop.Lat); err != nil {
		return err
	}
	if patch.Nights != nil {
		if err := validateNights(opUpdateStop, *patch.Nights); err != nil {
			return err
		}
		stop.Nights = *patch.Nights
	}
	if patch.PricePerNight != nil {
		stop.PricePerNight = patch.PricePerNight
	}
	if patch.Notes != nil {
		notes, err := validateText(opUpdateStop, "notes", *patch.Notes, maxNotesLength)
		if err != nil {
			return err
		}
		stop.Notes = notes
	}
	return nil
}

// DeleteStop removes a stop with its activities and any movement touching it,
// then closes the gap in the trip's stop order.
func (s *Service) DeleteStop(ctx context.Context, userID, stopID string) error {
	return s.transact(ctx, opDeleteStop, func(tx *gorm.DB) error {
		stop, trip, err := s.manageableStop(ctx, tx, opDeleteStop, userID, stopID, true)
		if err != nil {
			return err
		}
		if err := deleteStops(tx, []string{stop.ID}); err != nil {
			return s.storageError(opDeleteStop, "stop_delete_failed", err, zap.String("stop_id", stopID))
		}
		now := s.now()
		if err := compact(tx, &Stop{}, "trip_id", trip.ID, now); err != nil {
			return s.storageError(opDeleteStop, "renumber_failed", err, zap.String("trip_id", trip.ID))
		}
		if err := recalculateEndDate(tx, &trip, now); err != nil {
			return s.storageError(opDeleteStop, "end_date_failed", err, zap.String("trip_id", trip.ID))
		}
		return nil
	})
}

// ReorderStops moves the stop at fromIndex to toIndex. Every movement of the
// trip is deleted because adjacency no longer holds.
func (s *Service) ReorderStops(ctx context.Context, userID, tripID string, fromIndex, toIndex int) ([]Stop, error) {
	var stops []Stop
	err := s.transact(ctx, opReorderStops, func(tx *gorm.DB) error {
		if _, err := s.manageableTrip(ctx, tx, opReorderStops, userID, tripID, true); err != nil {
			return err
		}
		ids, err := orderedIDs(tx, &Stop{}, "trip_id", tripID)
		if err != nil {
			return s.storageError(opReorderStops, "query_failed", err, zap.String("trip_id", tripID))
		}
		reordered, err := splice(ids, fromIndex, toIndex)
		if err != nil {
			return indexError(opReorderStops, err)
		}
		if err := renumber(tx, &Stop{}, reordered, s.now()); err != nil {
			return s.storageError(opReorderStops, "renumber_failed", err, zap.String("trip_id", tripID))
		}
		if err := tx.Where("trip_id = ?", tripID).Delete(&Movement{}).Error; err != nil {
			return s.storageError(opReorderStops, "movement_delete_failed", err, zap.String("trip_id", tripID))
		}
		if err := tx.Where("trip_id = ?", tripID).Order("sort_index ASC").Find(&stops).Error; err != nil {
			return s.storageError(opReorderStops, "query_failed", err, zap.String("trip_id", tripID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stops, nil
}

func indexError(operation string, err error) error {
	var rangeErr *IndexRangeError
	if errors.As(err, &rangeErr) {
		return apperr.Validation(operation, "index_out_of_range", rangeErr.Error())
	}
	return apperr.Internal(operation, "reorder_failed", err)
}
