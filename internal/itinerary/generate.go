package itinerary

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

const maxPromptLength = 2000

// GenerationRequest is what a candidate source needs to propose an itinerary.
type GenerationRequest struct {
	Prompt      string
	TripName    string
	CountryCode string
	StartDate   time.Time
	Currency    string
}

// CandidateSource proposes an itinerary. Failures are *apperr.Error values of
// kind Unavailable or Upstream.
type CandidateSource interface {
	Generate(ctx context.Context, request GenerationRequest) (Candidate, error)
}

// Generate asks the candidate source for an itinerary and replaces the trip's
// graph with it. The source is called before any transaction opens.
func (s *Service) Generate(ctx context.Context, userID, tripID, prompt string) (*Itinerary, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, apperr.Validation(opGenerate, "missing_prompt", "prompt is required")
	}
	if len([]rune(prompt)) > maxPromptLength {
		return nil, apperr.Validation(opGenerate, "invalid_prompt", "prompt must be at most 2000 characters")
	}

	trip, err := s.GetTrip(ctx, userID, tripID)
	if err != nil {
		return nil, err
	}
	if s.generator == nil {
		return nil, apperr.New(apperr.KindUnavailable, opGenerate, "not_configured", nil).
			WithMessage("itinerary generation is not configured")
	}

	candidate, err := s.generator.Generate(ctx, GenerationRequest{
		Prompt:      prompt,
		TripName:    trip.Name,
		CountryCode: trip.CountryCode,
		StartDate:   time.Time(trip.StartDate),
		Currency:    trip.Currency,
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		s.logError(opGenerate, "provider_failed", err, zap.String("trip_id", tripID))
		return nil, apperr.New(apperr.KindUpstream, opGenerate, "provider_failed", err)
	}

	return s.Ingest(ctx, userID, tripID, candidate)
}

// Ingest replaces the trip's itinerary with candidate in one transaction.
func (s *Service) Ingest(ctx context.Context, userID, tripID string, candidate Candidate) (*Itinerary, error) {
	var graph *Itinerary
	err := s.transact(ctx, opGenerate, func(tx *gorm.DB) error {
		trip, err := s.manageableTrip(ctx, tx, opGenerate, userID, tripID, true)
		if err != nil {
			return err
		}
		now := s.now()
		plan, err := planIngestion(trip, candidate, s.idProvider, now)
		if err != nil {
			var empty errNoCandidateStops
			if errors.As(err, &empty) {
				return apperr.Validation(opGenerate, "no_stops", "no stops generated")
			}
			return s.storageError(opGenerate, "plan_failed", err, zap.String("trip_id", tripID))
		}
		if err := applyIngestionPlan(tx, tripID, plan); err != nil {
			return s.storageError(opGenerate, "replace_failed", err, zap.String("trip_id", tripID))
		}
		if err := recalculateEndDate(tx, &trip, now); err != nil {
			return s.storageError(opGenerate, "end_date_failed", err, zap.String("trip_id", tripID))
		}
		graph, err = loadItinerary(tx, trip)
		if err != nil {
			return s.storageError(opGenerate, "load_failed", err, zap.String("trip_id", tripID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return graph, nil
}
