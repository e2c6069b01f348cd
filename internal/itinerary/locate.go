package itinerary

import (
	"context"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

const opLocate = "itinerary.locate"

// EntityKind names a row that hangs off a trip.
type EntityKind string

const (
	EntityStop     EntityKind = "stop"
	EntityActivity EntityKind = "activity"
	EntityMovement EntityKind = "movement"
)

// TripIDOf returns the id of the trip that owns the entity. It performs no
// access check and is meant for routing change notifications.
func (s *Service) TripIDOf(ctx context.Context, kind EntityKind, id string) (string, error) {
	query := s.db.WithContext(ctx)
	var tripIDs []string
	var err error
	switch kind {
	case EntityStop:
		err = query.Model(&Stop{}).Where("id = ?", id).Limit(1).Pluck("trip_id", &tripIDs).Error
	case EntityMovement:
		err = query.Model(&Movement{}).Where("id = ?", id).Limit(1).Pluck("trip_id", &tripIDs).Error
	case EntityActivity:
		err = query.Model(&Stop{}).
			Joins("JOIN activities ON activities.trip_stop_id = trip_stops.id").
			Where("activities.id = ?", id).
			Limit(1).
			Pluck("trip_stops.trip_id", &tripIDs).Error
	default:
		return "", apperr.Validation(opLocate, "unknown_entity", "unknown entity kind")
	}
	if err != nil {
		return "", s.storageError(opLocate, "query_failed", err, zap.String("entity", string(kind)), zap.String("id", id))
	}
	if len(tripIDs) == 0 {
		return "", apperr.NotFound(opLocate, string(kind)+"_not_found")
	}
	return tripIDs[0], nil
}
