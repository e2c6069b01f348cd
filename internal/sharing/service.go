package sharing

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
	"github.com/MarcoPoloResearchLab/plantrip/internal/notify"
)

var (
	errMissingTrips      = errors.New("itinerary service is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew      = "sharing.service.new"
	opCreateShare     = "sharing.create_share"
	opGetShare        = "sharing.get_share"
	opRevokeShare     = "sharing.revoke_share"
	opSharedView      = "sharing.shared_view"
	opCreateFeedback  = "sharing.create_feedback"
	opFeedbackReport  = "sharing.feedback_report"
	reasonShareAbsent = "share_not_found"

	// DefaultTokenTTL is how long a share link stays valid.
	DefaultTokenTTL = 24 * time.Hour
	tokenBytes      = 32
)

// Notifier queues an outbound email. Implementations must not block.
type Notifier interface {
	Dispatch(ctx context.Context, message notify.Message)
}

// OwnerDirectory resolves the contact address of a trip owner. An empty
// address means the owner cannot be notified.
type OwnerDirectory interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}

// ServiceConfig wires the sharing service.
type ServiceConfig struct {
	Trips      *itinerary.Service
	IDProvider itinerary.IDProvider
	Clock      func() time.Time
	TokenTTL   time.Duration
	Logger     *zap.Logger
	Notifier   Notifier
	Owners     OwnerDirectory
	// ReportURL builds the owner-facing feedback link for a trip. Optional.
	ReportURL func(tripID string) string
}

// Service issues share links, serves the public itinerary view and records
// viewer feedback.
type Service struct {
	trips      *itinerary.Service
	db         *gorm.DB
	idProvider itinerary.IDProvider
	clock      func() time.Time
	tokenTTL   time.Duration
	logger     *zap.Logger
	notifier   Notifier
	owners     OwnerDirectory
	reportURL  func(tripID string) string
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Trips == nil {
		return nil, apperr.Internal(opServiceNew, "missing_itinerary_service", errMissingTrips)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		trips:      cfg.Trips,
		db:         cfg.Trips.Database(),
		idProvider: cfg.IDProvider,
		clock:      clock,
		tokenTTL:   ttl,
		logger:     logger,
		notifier:   cfg.Notifier,
		owners:     cfg.Owners,
		reportURL:  cfg.ReportURL,
	}, nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// CreateShare issues a fresh token for tripID. Earlier tokens of the trip and
// expired tokens of any trip are removed in the same transaction.
func (s *Service) CreateShare(ctx context.Context, userID, tripID string) (itinerary.ShareToken, error) {
	now := s.now()
	var token itinerary.ShareToken
	err := s.transact(ctx, opCreateShare, func(tx *gorm.DB) error {
		if _, err := s.trips.AuthorizeTrip(ctx, tx, opCreateShare, userID, tripID, true); err != nil {
			return err
		}

		var staleIDs []string
		if err := tx.Model(&itinerary.ShareToken{}).
			Where("trip_id = ? OR expires_at < ?", tripID, now).
			Pluck("id", &staleIDs).Error; err != nil {
			return s.storageError(opCreateShare, "token_select_failed", err, zap.String("trip_id", tripID))
		}
		if err := deleteTokens(tx, staleIDs); err != nil {
			return s.storageError(opCreateShare, "token_delete_failed", err, zap.String("trip_id", tripID))
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			return s.storageError(opCreateShare, "id_generation_failed", err)
		}
		value, err := newTokenValue()
		if err != nil {
			return s.storageError(opCreateShare, "token_generation_failed", err)
		}
		token = itinerary.ShareToken{
			ID:        id,
			TripID:    tripID,
			UserID:    userID,
			Token:     value,
			ExpiresAt: now.Add(s.tokenTTL),
			CreatedAt: now,
		}
		if err := tx.Create(&token).Error; err != nil {
			return s.storageError(opCreateShare, "token_insert_failed", err, zap.String("trip_id", tripID))
		}
		return nil
	})
	if err != nil {
		return itinerary.ShareToken{}, err
	}
	return token, nil
}

// GetShare returns the live token of tripID.
func (s *Service) GetShare(ctx context.Context, userID, tripID string) (itinerary.ShareToken, error) {
	now := s.now()
	var token itinerary.ShareToken
	err := s.transact(ctx, opGetShare, func(tx *gorm.DB) error {
		if _, err := s.trips.AuthorizeTrip(ctx, tx, opGetShare, userID, tripID, false); err != nil {
			return err
		}
		var tokens []itinerary.ShareToken
		if err := tx.Where("trip_id = ?", tripID).Order("created_at DESC").Find(&tokens).Error; err != nil {
			return s.storageError(opGetShare, "token_select_failed", err, zap.String("trip_id", tripID))
		}
		for _, candidate := range tokens {
			if candidate.ExpiresAt.After(now) {
				token = candidate
				return nil
			}
		}
		return apperr.NotFound(opGetShare, reasonShareAbsent)
	})
	if err != nil {
		return itinerary.ShareToken{}, err
	}
	return token, nil
}

// RevokeShare deletes every token of tripID. Feedback keeps its rows.
func (s *Service) RevokeShare(ctx context.Context, userID, tripID string) error {
	return s.transact(ctx, opRevokeShare, func(tx *gorm.DB) error {
		if _, err := s.trips.AuthorizeTrip(ctx, tx, opRevokeShare, userID, tripID, true); err != nil {
			return err
		}
		var ids []string
		if err := tx.Model(&itinerary.ShareToken{}).Where("trip_id = ?", tripID).Pluck("id", &ids).Error; err != nil {
			return s.storageError(opRevokeShare, "token_select_failed", err, zap.String("trip_id", tripID))
		}
		if len(ids) == 0 {
			return apperr.NotFound(opRevokeShare, reasonShareAbsent)
		}
		if err := deleteTokens(tx, ids); err != nil {
			return s.storageError(opRevokeShare, "token_delete_failed", err, zap.String("trip_id", tripID))
		}
		return nil
	})
}

// SharedItinerary is the anonymous read view behind a share link.
type SharedItinerary struct {
	Graph     *itinerary.Itinerary
	Budget    itinerary.Budget
	ExpiresAt time.Time
}

// SharedView loads the itinerary behind token. Unknown and expired tokens are
// reported identically.
func (s *Service) SharedView(ctx context.Context, token string) (SharedItinerary, error) {
	var view SharedItinerary
	err := s.transact(ctx, opSharedView, func(tx *gorm.DB) error {
		share, err := s.liveToken(tx, opSharedView, token)
		if err != nil {
			return err
		}
		var trip itinerary.Trip
		err = tx.Where("id = ?", share.TripID).Take(&trip).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound(opSharedView, reasonShareAbsent)
		}
		if err != nil {
			return s.storageError(opSharedView, "trip_select_failed", err, zap.String("trip_id", share.TripID))
		}
		graph, err := itinerary.LoadItinerary(tx, trip)
		if err != nil {
			return s.storageError(opSharedView, "itinerary_load_failed", err, zap.String("trip_id", trip.ID))
		}
		view = SharedItinerary{Graph: graph, Budget: itinerary.ComputeBudget(graph), ExpiresAt: share.ExpiresAt}
		return nil
	})
	if err != nil {
		return SharedItinerary{}, err
	}
	return view, nil
}

func (s *Service) liveToken(tx *gorm.DB, operation, value string) (itinerary.ShareToken, error) {
	if value == "" || len(value) > 64 {
		return itinerary.ShareToken{}, apperr.NotFound(operation, reasonShareAbsent)
	}
	var share itinerary.ShareToken
	err := tx.Where("token = ?", value).Take(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return itinerary.ShareToken{}, apperr.NotFound(operation, reasonShareAbsent)
	}
	if err != nil {
		return itinerary.ShareToken{}, s.storageError(operation, "token_select_failed", err)
	}
	if !share.ExpiresAt.After(s.now()) {
		return itinerary.ShareToken{}, apperr.NotFound(operation, reasonShareAbsent)
	}
	return share, nil
}

// deleteTokens removes tokens and detaches the feedback that referenced them.
func deleteTokens(tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Model(&itinerary.Feedback{}).
		Where("share_token_id IN ?", ids).
		Update("share_token_id", nil).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&itinerary.ShareToken{}).Error
}

func newTokenValue() (string, error) {
	buffer := make([]byte, tokenBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

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

func (s *Service) storageError(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return apperr.Internal(operation, reason, err)
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
	logger := s.logger
	if logger == nil {
		logger = noOpLogger
	}
	logger.Error("sharing service error", attrs...)
}
