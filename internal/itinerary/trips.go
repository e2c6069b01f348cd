package itinerary

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

// MembershipChecker reports whether userID belongs to organizationID.
type MembershipChecker interface {
	IsMember(ctx context.Context, tx *gorm.DB, userID, organizationID string) (bool, error)
}

// TripInput describes a new trip.
type TripInput struct {
	Name           string
	CountryCode    string
	StartDate      time.Time
	Status         string
	Currency       string
	Notes          string
	OrganizationID *string
}

// TripPatch carries optional trip changes; nil fields are left untouched.
type TripPatch struct {
	Name        *string
	CountryCode *string
	StartDate   *time.Time
	Status      *string
	Currency    *string
	Notes       *string
}

func (s *Service) CreateTrip(ctx context.Context, userID string, input TripInput) (Trip, error) {
	name, err := validateName(opCreateTrip, "name", input.Name)
	if err != nil {
		return Trip{}, err
	}
	countryCode, err := normalizeCountryCode(opCreateTrip, input.CountryCode)
	if err != nil {
		return Trip{}, err
	}
	currency, err := normalizeCurrency(opCreateTrip, input.Currency)
	if err != nil {
		return Trip{}, err
	}
	status, err := ParseTripStatus(input.Status)
	if err != nil {
		return Trip{}, apperr.Validation(opCreateTrip, "invalid_status", err.Error())
	}
	notes, err := validateText(opCreateTrip, "notes", input.Notes, maxNotesLength)
	if err != nil {
		return Trip{}, err
	}
	if input.StartDate.IsZero() {
		return Trip{}, apperr.Validation(opCreateTrip, "missing_start_date", "start_date is required")
	}

	tripID, err := s.idProvider.NewID()
	if err != nil {
		return Trip{}, s.storageError(opCreateTrip, "id_generation_failed", err)
	}
	now := s.now()
	start := datatypes.Date(dateOnly(input.StartDate))
	end := start
	trip := Trip{
		ID:             tripID,
		UserID:         userID,
		OrganizationID: input.OrganizationID,
		Name:           name,
		CountryCode:    countryCode,
		StartDate:      start,
		EndDate:        &end,
		Status:         status,
		Currency:       currency,
		Notes:          notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.transact(ctx, opCreateTrip, func(tx *gorm.DB) error {
		if trip.OrganizationID != nil {
			if err := s.requireMembership(ctx, tx, opCreateTrip, userID, *trip.OrganizationID); err != nil {
				return err
			}
		}
		if err := s.checkCountryUnique(tx, opCreateTrip, userID, countryCode, ""); err != nil {
			return err
		}
		if err := tx.Create(&trip).Error; err != nil {
			return s.storageError(opCreateTrip, "trip_insert_failed", err, zap.String("user_id", userID))
		}
		return nil
	})
	if err != nil {
		return Trip{}, err
	}
	return trip, nil
}

// ListTrips returns the user's trips, newest first.
func (s *Service) ListTrips(ctx context.Context, userID string) ([]Trip, error) {
	var trips []Trip
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&trips).Error; err != nil {
		return nil, s.storageError(opListTrips, "query_failed", err, zap.String("user_id", userID))
	}
	return trips, nil
}

// GetTrip returns a trip the user may manage.
func (s *Service) GetTrip(ctx context.Context, userID, tripID string) (Trip, error) {
	return s.manageableTrip(ctx, s.db.WithContext(ctx), opGetTrip, userID, tripID, false)
}

func (s *Service) UpdateTrip(ctx context.Context, userID, tripID string, patch TripPatch) (Trip, error) {
	var updated Trip
	err := s.transact(ctx, opUpdateTrip, func(tx *gorm.DB) error {
		trip, err := s.manageableTrip(ctx, tx, opUpdateTrip, userID, tripID, true)
		if err != nil {
			return err
		}
		if err := applyTripPatch(&trip, patch); err != nil {
			return err
		}
		if patch.CountryCode != nil {
			if err := s.checkCountryUnique(tx, opUpdateTrip, trip.UserID, trip.CountryCode, trip.ID); err != nil {
				return err
			}
		}
		trip.UpdatedAt = s.now()
		if err := tx.Model(&Trip{}).Where("id = ?", trip.ID).Select(
			"name", "country_code", "start_date", "status", "currency", "notes", "updated_at",
		).Updates(&trip).Error; err != nil {
			return s.storageError(opUpdateTrip, "trip_update_failed", err, zap.String("trip_id", tripID))
		}
		if patch.StartDate != nil {
			if err := recalculateEndDate(tx, &trip, trip.UpdatedAt); err != nil {
				return s.storageError(opUpdateTrip, "end_date_failed", err, zap.String("trip_id", tripID))
			}
		}
		updated = trip
		return nil
	})
	if err != nil {
		return Trip{}, err
	}
	return updated, nil
}

func applyTripPatch(trip *Trip, patch TripPatch) error {
	if patch.Name != nil {
		name, err := validateName(opUpdateTrip, "name", *patch.Name)
		if err != nil {
			return err
		}
		trip.Name = name
	}
	if patch.CountryCode != nil {
		code, err := normalizeCountryCode(opUpdateTrip, *patch.CountryCode)
		if err != nil {
			return err
		}
		trip.CountryCode = code
	}
	if patch.StartDate != nil {
		if patch.StartDate.IsZero() {
			return apperr.Validation(opUpdateTrip, "missing_start_date", "start_date is required")
		}
		trip.StartDate = datatypes.Date(dateOnly(*patch.StartDate))
	}
	if patch.Status != nil {
		status, err := ParseTripStatus(*patch.Status)
		if err != nil {
			return apperr.Validation(opUpdateTrip, "invalid_status", err.Error())
		}
		trip.Status = status
	}
	if patch.Currency != nil {
		currency, err := normalizeCurrency(opUpdateTrip, *patch.Currency)
		if err != nil {
			return err
		}
		trip.Currency = currency
	}
	if patch.Notes != nil {
		notes, err := validateText(opUpdateTrip, "notes", *patch.Notes, maxNotesLength)
		if err != nil {
			return err
		}
		trip.Notes = notes
	}
	return nil
}

// DeleteTrip removes the trip and everything it owns.
func (s *Service) DeleteTrip(ctx context.Context, userID, tripID string) error {
	return s.transact(ctx, opDeleteTrip, func(tx *gorm.DB) error {
		if _, err := s.manageableTrip(ctx, tx, opDeleteTrip, userID, tripID, true); err != nil {
			return err
		}
		if err := deleteTripGraph(tx, tripID); err != nil {
			return s.storageError(opDeleteTrip, "trip_delete_failed", err, zap.String("trip_id", tripID))
		}
		return nil
	})
}

// GetItinerary assembles the full graph of a trip for its manager.
func (s *Service) GetItinerary(ctx context.Context, userID, tripID string) (*Itinerary, error) {
	var graph *Itinerary
	err := s.transact(ctx, opGetItinerary, func(tx *gorm.DB) error {
		trip, err := s.manageableTrip(ctx, tx, opGetItinerary, userID, tripID, false)
		if err != nil {
			return err
		}
		graph, err = loadItinerary(tx, trip)
		if err != nil {
			return s.storageError(opGetItinerary, "load_failed", err, zap.String("trip_id", tripID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return graph, nil
}

// LoadItinerary assembles the graph of trip without an access check. Callers
// must have authorized the read, as share-token resolution does.
func LoadItinerary(tx *gorm.DB, trip Trip) (*Itinerary, error) {
	return loadItinerary(tx, trip)
}

func (s *Service) checkCountryUnique(tx *gorm.DB, operation, userID, countryCode, excludeTripID string) error {
	if !s.uniqueCountryPerOwner {
		return nil
	}
	query := tx.Model(&Trip{}).Where("user_id = ? AND country_code = ?", userID, countryCode)
	if excludeTripID != "" {
		query = query.Where("id <> ?", excludeTripID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return s.storageError(operation, "country_check_failed", err, zap.String("user_id", userID))
	}
	if count > 0 {
		return apperr.Conflict(operation, "duplicate_country", "a trip for this country already exists")
	}
	return nil
}

func (s *Service) requireMembership(ctx context.Context, tx *gorm.DB, operation, userID, organizationID string) error {
	if s.memberships == nil {
		return apperr.NotFound(operation, "organization_not_found")
	}
	member, err := s.memberships.IsMember(ctx, tx, userID, organizationID)
	if err != nil {
		return s.storageError(operation, "membership_check_failed", err, zap.String("organization_id", organizationID))
	}
	if !member {
		return apperr.NotFound(operation, "organization_not_found")
	}
	return nil
}
