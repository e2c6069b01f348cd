package generation

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

// FixturePrefix marks prompts answered with the canned itinerary instead of
// a provider call.
const FixturePrefix = "__TEST__"

// Fixtures answers prefixed prompts locally and delegates the rest to Next.
type Fixtures struct {
	Next itinerary.CandidateSource
}

func (f Fixtures) Generate(ctx context.Context, request itinerary.GenerationRequest) (itinerary.Candidate, error) {
	if strings.HasPrefix(request.Prompt, FixturePrefix) {
		return CannedItinerary(), nil
	}
	if f.Next == nil {
		return itinerary.Candidate{}, apperr.New(apperr.KindUnavailable, opAnthropic, "not_configured", nil).
			WithMessage("AI generation is not configured")
	}
	return f.Next.Generate(ctx, request)
}

// CannedItinerary is a two-stop Rome and Florence trip joined by a train.
func CannedItinerary() itinerary.Candidate {
	from, to := 0, 1
	return itinerary.Candidate{
		Stops: []itinerary.CandidateStop{
			{
				Name:          "Rome",
				Lng:           12.4964,
				Lat:           41.9028,
				Nights:        2,
				Notes:         "The Eternal City",
				PricePerNight: floatPtr(120),
				Activities: []itinerary.CandidateActivity{{
					Title:           "Visit the Colosseum",
					DayOffset:       0,
					StartTime:       "09:00",
					DurationMinutes: intPtr(120),
					Lng:             floatPtr(12.4922),
					Lat:             floatPtr(41.8902),
					Address:         "Piazza del Colosseo, 1, Rome",
					Category:        "sightseeing",
					Price:           floatPtr(16),
				}},
			},
			{
				Name:          "Florence",
				Lng:           11.2558,
				Lat:           43.7696,
				Nights:        2,
				Notes:         "Cradle of the Renaissance",
				PricePerNight: floatPtr(110),
				Activities: []itinerary.CandidateActivity{{
					Title:           "Uffizi Gallery",
					DayOffset:       0,
					StartTime:       "10:00",
					DurationMinutes: intPtr(180),
					Lng:             floatPtr(11.2553),
					Lat:             floatPtr(43.7677),
					Address:         "Piazzale degli Uffizi, 6, Florence",
					Category:        "museum",
					Price:           floatPtr(20),
				}},
			},
		},
		Movements: []itinerary.CandidateMovement{{
			FromStopIndex:   &from,
			ToStopIndex:     &to,
			Type:            "train",
			DurationMinutes: intPtr(95),
			Carrier:         "Trenitalia",
			Price:           floatPtr(45),
		}},
	}
}

func floatPtr(value float64) *float64 {
	return &value
}

func intPtr(value int) *int {
	return &value
}
