package itinerary

import (
	"testing"
	"time"
)

func TestEndDate(t *testing.T) {
	start := day(2026, time.June, 1)
	testCases := []struct {
		name     string
		nights   int
		expected time.Time
	}{
		{name: "no stops", nights: 0, expected: start},
		{name: "single night", nights: 1, expected: start},
		{name: "five nights", nights: 5, expected: day(2026, time.June, 5)},
		{name: "crosses month", nights: 31, expected: day(2026, time.July, 1)},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := EndDate(start, testCase.nights); !got.Equal(testCase.expected) {
				t.Fatalf("expected %s, got %s", testCase.expected, got)
			}
		})
	}
}

func TestComputeBudgetTreatsMissingPricesAsZero(t *testing.T) {
	graph := &Itinerary{
		Stops: []Stop{
			{ID: "a", Nights: 2, PricePerNight: floatPtr(100)},
			{ID: "b", Nights: 3},
		},
		ActivitiesByStop: map[string][]ActivityWithPhotos{
			"a": {{Activity: Activity{Price: floatPtr(16)}}, {Activity: Activity{}}},
			"b": {{Activity: Activity{Price: floatPtr(4.5)}}},
		},
		Movements: []Movement{{Price: floatPtr(45)}, {}},
	}
	budget := ComputeBudget(graph)
	if budget.AccommodationTotal != 200 {
		t.Fatalf("expected accommodation 200, got %v", budget.AccommodationTotal)
	}
	if budget.ActivitiesTotal != 20.5 {
		t.Fatalf("expected activities 20.5, got %v", budget.ActivitiesTotal)
	}
	if budget.TransportTotal != 45 {
		t.Fatalf("expected transport 45, got %v", budget.TransportTotal)
	}
	if budget.GrandTotal != 265.5 {
		t.Fatalf("expected grand total 265.5, got %v", budget.GrandTotal)
	}
}
