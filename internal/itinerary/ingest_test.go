package itinerary

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

func candidateWithStops(count int) Candidate {
	candidate := Candidate{}
	for index := 0; index < count; index++ {
		candidate.Stops = append(candidate.Stops, CandidateStop{Name: "Stop", Lng: 10, Lat: 10, Nights: 1})
	}
	return candidate
}

func TestPlanIngestionTruncatesStops(t *testing.T) {
	trip := Trip{ID: "trip", StartDate: datatypes.Date(day(2026, time.June, 1))}
	plan, err := planIngestion(trip, candidateWithStops(25), NewUUIDProvider(), fixedNow)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(plan.Stops) != MaxCandidateStops {
		t.Fatalf("expected %d stops, got %d", MaxCandidateStops, len(plan.Stops))
	}
	for index, stop := range plan.Stops {
		if stop.SortIndex != index {
			t.Fatalf("expected dense sort index %d, got %d", index, stop.SortIndex)
		}
	}
}

func TestPlanIngestionRejectsEmptyCandidate(t *testing.T) {
	trip := Trip{ID: "trip", StartDate: datatypes.Date(day(2026, time.June, 1))}
	_, err := planIngestion(trip, Candidate{}, NewUUIDProvider(), fixedNow)
	var empty errNoCandidateStops
	if !errors.As(err, &empty) {
		t.Fatalf("expected empty candidate error, got %v", err)
	}
}

func TestPlanIngestionRepairsFields(t *testing.T) {
	trip := Trip{ID: "trip", StartDate: datatypes.Date(day(2026, time.June, 1))}
	longName := make([]rune, 250)
	for index := range longName {
		longName[index] = 'x'
	}
	candidate := Candidate{
		Stops: []CandidateStop{
			{Name: string(longName), Lng: 200, Lat: -95, Nights: 0, Activities: []CandidateActivity{
				{Title: "Morning", DayOffset: 1, StartTime: "9:05", Category: "bogus", Lng: floatPtr(-190), Lat: floatPtr(10)},
			}},
			{Name: "Second", Lng: 1, Lat: 1, Nights: 2, Activities: []CandidateActivity{
				{Title: "Later", DayOffset: -3, StartTime: "late", Category: "museum"},
			}},
		},
		Movements: []CandidateMovement{
			{FromStopIndex: intPtr(0), ToStopIndex: intPtr(99), Type: "train"},
			{FromStopIndex: intPtr(1), ToStopIndex: intPtr(1), Type: "train"},
			{FromStopIndex: intPtr(0), ToStopIndex: intPtr(1), Type: "hovercraft"},
			{FromStopIndex: intPtr(0), ToStopIndex: intPtr(1), Type: "bus"},
			{ToStopIndex: intPtr(1), Type: "bus"},
		},
	}
	plan, err := planIngestion(trip, candidate, NewUUIDProvider(), fixedNow)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	first := plan.Stops[0]
	if len([]rune(first.Name)) != maxNameLength {
		t.Fatalf("expected name truncated to %d, got %d", maxNameLength, len([]rune(first.Name)))
	}
	if first.Lng != 180 || first.Lat != -90 || first.Nights != 1 {
		t.Fatalf("expected clamped stop, got lng=%v lat=%v nights=%d", first.Lng, first.Lat, first.Nights)
	}

	morning, later := plan.Activities[0], plan.Activities[1]
	if got := time.Time(*morning.Date).Format("2006-01-02"); got != "2026-06-02" {
		t.Fatalf("expected first activity on 2026-06-02, got %s", got)
	}
	if morning.StartTime == nil || *morning.StartTime != "09:05" {
		t.Fatalf("expected start time 09:05, got %v", morning.StartTime)
	}
	if morning.Category != "" || *morning.Lng != -180 {
		t.Fatalf("expected repaired activity, got category=%q lng=%v", morning.Category, *morning.Lng)
	}
	if got := time.Time(*later.Date).Format("2006-01-02"); got != "2026-06-02" {
		t.Fatalf("expected second stop activity on arrival day 2026-06-02, got %s", got)
	}
	if later.StartTime != nil || later.Category != "museum" {
		t.Fatalf("expected unparsable time dropped and category kept, got %v %q", later.StartTime, later.Category)
	}

	if len(plan.Movements) != 1 {
		t.Fatalf("expected one surviving movement, got %d", len(plan.Movements))
	}
	if plan.Movements[0].Type != MovementTrain {
		t.Fatalf("expected unknown type to default to train, got %s", plan.Movements[0].Type)
	}
}

type stubCandidateSource struct {
	candidate Candidate
	err       error
	requests  []GenerationRequest
}

func (s *stubCandidateSource) Generate(_ context.Context, request GenerationRequest) (Candidate, error) {
	s.requests = append(s.requests, request)
	return s.candidate, s.err
}

func TestGenerateReplacesItinerary(t *testing.T) {
	source := &stubCandidateSource{candidate: Candidate{
		Stops: []CandidateStop{
			{Name: "Rome", Lng: 12.4964, Lat: 41.9028, Nights: 2, PricePerNight: floatPtr(120),
				Activities: []CandidateActivity{{Title: "Colosseum", Category: "sightseeing", Price: floatPtr(16)}}},
			{Name: "Florence", Lng: 11.2558, Lat: 43.7696, Nights: 2, PricePerNight: floatPtr(110)},
		},
		Movements: []CandidateMovement{{FromStopIndex: intPtr(0), ToStopIndex: intPtr(1), Type: "train", Price: floatPtr(45)}},
	}}
	service := mustService(t, func(cfg *ServiceConfig) { cfg.Generator = source })
	ctx := context.Background()
	trip := mustTrip(t, service, day(2026, time.June, 1))
	mustStop(t, service, trip.ID, "Old", 5, nil)

	graph, err := service.Generate(ctx, ownerUserID, trip.ID, "two cities")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if names := stopNames(graph.Stops); len(names) != 2 || names[0] != "Rome" || names[1] != "Florence" {
		t.Fatalf("unexpected stops %v", names)
	}
	if got := time.Time(*graph.Trip.EndDate).Format("2006-01-02"); got != "2026-06-04" {
		t.Fatalf("expected end date 2026-06-04, got %s", got)
	}
	if budget := ComputeBudget(graph); budget.GrandTotal != 16+460+45 {
		t.Fatalf("unexpected budget %+v", budget)
	}
	if len(source.requests) != 1 || source.requests[0].CountryCode != "IT" {
		t.Fatalf("unexpected generation requests %+v", source.requests)
	}
}

func TestGenerateKeepsItineraryOnFailure(t *testing.T) {
	ctx := context.Background()
	upstream := apperr.New(apperr.KindUpstream, "generation.generate", "provider_failed", nil)
	source := &stubCandidateSource{err: upstream}
	service := mustService(t, func(cfg *ServiceConfig) { cfg.Generator = source })
	trip := mustTrip(t, service, day(2026, time.June, 1))
	mustStop(t, service, trip.ID, "Old", 1, nil)

	if _, err := service.Generate(ctx, ownerUserID, trip.ID, "anything"); !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	source.err = nil
	source.candidate = Candidate{}
	if _, err := service.Generate(ctx, ownerUserID, trip.ID, "anything"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty candidate, got %v", err)
	}
	if names := stopNames(mustItinerary(t, service, trip.ID).Stops); len(names) != 1 || names[0] != "Old" {
		t.Fatalf("expected previous itinerary intact, got %v", names)
	}

	unconfigured := mustService(t)
	other := mustTrip(t, unconfigured, day(2026, time.June, 1))
	if _, err := unconfigured.Generate(ctx, ownerUserID, other.ID, "anything"); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
