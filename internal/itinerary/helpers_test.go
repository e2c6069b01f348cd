package itinerary

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const (
	ownerUserID    = "user-owner"
	strangerUserID = "user-stranger"
)

var fixedNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func mustDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "itinerary.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return database
}

func mustService(t *testing.T, mutate ...func(*ServiceConfig)) *Service {
	t.Helper()
	cfg := ServiceConfig{
		Database:   mustDatabase(t),
		Clock:      func() time.Time { return fixedNow },
		IDProvider: NewUUIDProvider(),
	}
	for _, apply := range mutate {
		apply(&cfg)
	}
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func mustTrip(t *testing.T, service *Service, start time.Time) Trip {
	t.Helper()
	trip, err := service.CreateTrip(context.Background(), ownerUserID, TripInput{
		Name:        "Summer",
		CountryCode: "it",
		StartDate:   start,
		Currency:    "eur",
	})
	if err != nil {
		t.Fatalf("create trip failed: %v", err)
	}
	return trip
}

func mustStop(t *testing.T, service *Service, tripID, name string, nights int, price *float64) Stop {
	t.Helper()
	stop, err := service.CreateStop(context.Background(), ownerUserID, tripID, StopInput{
		Name:          name,
		Lng:           12.5,
		Lat:           41.9,
		Nights:        nights,
		PricePerNight: price,
	})
	if err != nil {
		t.Fatalf("create stop %s failed: %v", name, err)
	}
	return stop
}

func mustActivity(t *testing.T, service *Service, stopID, title string, price *float64) Activity {
	t.Helper()
	activity, err := service.CreateActivity(context.Background(), ownerUserID, stopID, ActivityInput{
		Title: title,
		Price: price,
	})
	if err != nil {
		t.Fatalf("create activity %s failed: %v", title, err)
	}
	return activity
}

func mustMovement(t *testing.T, service *Service, tripID, fromID, toID string, price *float64) Movement {
	t.Helper()
	movement, _, err := service.UpsertMovement(context.Background(), ownerUserID, tripID, MovementInput{
		FromStopID: fromID,
		ToStopID:   toID,
		Type:       "train",
		Price:      price,
	})
	if err != nil {
		t.Fatalf("upsert movement failed: %v", err)
	}
	return movement
}

func mustItinerary(t *testing.T, service *Service, tripID string) *Itinerary {
	t.Helper()
	graph, err := service.GetItinerary(context.Background(), ownerUserID, tripID)
	if err != nil {
		t.Fatalf("get itinerary failed: %v", err)
	}
	return graph
}

func stopNames(stops []Stop) []string {
	names := make([]string, 0, len(stops))
	for _, stop := range stops {
		names = append(names, stop.Name)
	}
	return names
}

func assertDense(t *testing.T, indexes []int) {
	t.Helper()
	for position, index := range indexes {
		if index != position {
			t.Fatalf("expected dense indexes 0..%d, got %v", len(indexes)-1, indexes)
		}
	}
}

func stopIndexes(stops []Stop) []int {
	indexes := make([]int, 0, len(stops))
	for _, stop := range stops {
		indexes = append(indexes, stop.SortIndex)
	}
	return indexes
}

func floatPtr(value float64) *float64 {
	return &value
}

func intPtr(value int) *int {
	return &value
}

func day(year int, month time.Month, dayOfMonth int) time.Time {
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)
}
