package itinerary

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew       = "itinerary.service.new"
	opCreateTrip       = "itinerary.create_trip"
	opListTrips        = "itinerary.list_trips"
	opGetTrip          = "itinerary.get_trip"
	opUpdateTrip       = "itinerary.update_trip"
	opDeleteTrip       = "itinerary.delete_trip"
	opGetItinerary     = "itinerary.get_itinerary"
	opListStops        = "itinerary.list_stops"
	opCreateStop       = "itinerary.create_stop"
	opUpdateStop       = "itinerary.update_stop"
	opDeleteStop       = "itinerary.delete_stop"
	opReorderStops     = "itinerary.reorder_stops"
	opListActivities   = "itinerary.list_activities"
	opCreateActivity   = "itinerary.create_activity"
	opUpdateActivity   = "itinerary.update_activity"
	opDeleteActivity   = "itinerary.delete_activity"
	opReorderActivity  = "itinerary.reorder_activities"
	opReplacePhotos    = "itinerary.replace_photos"
	opRefreshPhotos    = "itinerary.refresh_photos"
	opListMovements    = "itinerary.list_movements"
	opUpsertMovement   = "itinerary.upsert_movement"
	opUpdateMovement   = "itinerary.update_movement"
	opDeleteMovement   = "itinerary.delete_movement"
	opCreateVersion    = "itinerary.create_version"
	opListVersions     = "itinerary.list_versions"
	opGetVersion       = "itinerary.get_version"
	opDeleteVersion    = "itinerary.delete_version"
	opRestoreVersion   = "itinerary.restore_version"
	opGenerate         = "itinerary.generate"
	reasonTripNotFound = "trip_not_found"
)

// ServiceConfig wires the itinerary service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger

	// Access decides who may manage a trip. Nil means owner only.
	Access AccessPolicy

	// Memberships validates the organization of new trips.
	Memberships MembershipChecker
	Generator   CandidateSource
	Photos      PhotoSource

	// UniqueCountryPerOwner rejects a second trip to the same country for one owner.
	UniqueCountryPerOwner bool
}

// Service implements trip, itinerary, version and ingestion operations. Every
// mutating operation runs in a single transaction.
type Service struct {
	db                    *gorm.DB
	clock                 func() time.Time
	idProvider            IDProvider
	logger                *zap.Logger
	access                AccessPolicy
	memberships           MembershipChecker
	generator             CandidateSource
	photos                PhotoSource
	uniqueCountryPerOwner bool
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	access := cfg.Access
	if access == nil {
		access = OwnerPolicy
	}

	return &Service{
		db:                    cfg.Database,
		clock:                 clock,
		idProvider:            cfg.IDProvider,
		logger:                logger,
		access:                access,
		memberships:           cfg.Memberships,
		generator:             cfg.Generator,
		photos:                cfg.Photos,
		uniqueCountryPerOwner: cfg.UniqueCountryPerOwner,
	}, nil
}

// Database exposes the underlying handle to sibling packages that share the schema.
func (s *Service) Database() *gorm.DB {
	return s.db
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// manageableTrip loads tripID and checks access through tx. Missing and
// forbidden trips are reported identically.
func (s *Service) manageableTrip(ctx context.Context, tx *gorm.DB, operation, userID, tripID string, lock bool) (Trip, error) {
	query := tx
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var trip Trip
	err := query.Where("id = ?", tripID).Take(&trip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Trip{}, apperr.NotFound(operation, reasonTripNotFound)
	}
	if err != nil {
		s.logError(operation, "trip_select_failed", err, zap.String("trip_id", tripID))
		return Trip{}, apperr.Internal(operation, "trip_select_failed", err)
	}
	allowed, err := s.access.CanManageTrip(ctx, tx, userID, trip)
	if err != nil {
		s.logError(operation, "access_check_failed", err, zap.String("trip_id", tripID), zap.String("user_id", userID))
		return Trip{}, apperr.Internal(operation, "access_check_failed", err)
	}
	if !allowed {
		return Trip{}, apperr.NotFound(operation, reasonTripNotFound)
	}
	return trip, nil
}

// AuthorizeTrip resolves tripID for userID inside tx under the access rules of
// the itinerary operations, for packages that extend a trip.
func (s *Service) AuthorizeTrip(ctx context.Context, tx *gorm.DB, operation, userID, tripID string, lock bool) (Trip, error) {
	return s.manageableTrip(ctx, tx, operation, userID, tripID, lock)
}

// manageableStop resolves a stop and its trip for userID. lock takes a row
// lock on the trip, which serializes sibling renumbering across requests.
func (s *Service) manageableStop(ctx context.Context, tx *gorm.DB, operation, userID, stopID string, lock bool) (Stop, Trip, error) {
	var stop Stop
	err := tx.Where("id = ?", stopID).Take(&stop).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Stop{}, Trip{}, apperr.NotFound(operation, "stop_not_found")
	}
	if err != nil {
		s.logError(operation, "stop_select_failed", err, zap.String("stop_id", stopID))
		return Stop{}, Trip{}, apperr.Internal(operation, "stop_select_failed", err)
	}
	trip, err := s.manageableTrip(ctx, tx, operation, userID, stop.TripID, lock)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Stop{}, Trip{}, apperr.NotFound(operation, "stop_not_found")
		}
		return Stop{}, Trip{}, err
	}
	return stop, trip, nil
}

// manageableActivity resolves an activity, its stop and its trip for userID.
func (s *Service) manageableActivity(ctx context.Context, tx *gorm.DB, operation, userID, activityID string, lock bool) (Activity, Stop, Trip, error) {
	var activity Activity
	err := tx.Where("id = ?", activityID).Take(&activity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Activity{}, Stop{}, Trip{}, apperr.NotFound(operation, "activity_not_found")
	}
	if err != nil {
		s.logError(operation, "activity_select_failed", err, zap.String("activity_id", activityID))
		return Activity{}, Stop{}, Trip{}, apperr.Internal(operation, "activity_select_failed", err)
	}
	stop, trip, err := s.manageableStop(ctx, tx, operation, userID, activity.StopID, lock)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Activity{}, Stop{}, Trip{}, apperr.NotFound(operation, "activity_not_found")
		}
		return Activity{}, Stop{}, Trip{}, err
	}
	return activity, stop, trip, nil
}

// transact runs fn in a transaction and passes through *apperr.Error values
// unchanged; anything else becomes an internal failure for operation.
func (s *Service) transact(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	s.logError(operation, "transaction_failed", err)
	return apperr.Internal(operation, "transaction_failed", err)
}

// storageError logs and wraps a storage failure.
func (s *Service) storageError(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return apperr.Internal(operation, reason, err)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("itinerary service error", attrs...)
}
