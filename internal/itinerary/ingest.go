package itinerary

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// MaxCandidateStops caps the number of stops accepted from one ingestion.
	MaxCandidateStops = 20

	maxNameLength    = 200
	maxNotesLength   = 10000
	maxAddressLength = 500
	maxCarrierLength = 200
)

// Candidate is a loosely structured itinerary produced outside the service,
// typically by a generation provider. Movements refer to stops by position.
type Candidate struct {
	Stops     []CandidateStop     `json:"stops"`
	Movements []CandidateMovement `json:"movements"`
}

type CandidateStop struct {
	Name          string              `json:"name"`
	Lng           float64             `json:"lng"`
	Lat           float64             `json:"lat"`
	Nights        int                 `json:"nights"`
	Notes         string              `json:"notes"`
	PricePerNight *float64            `json:"price_per_night"`
	Activities    []CandidateActivity `json:"activities"`
}

type CandidateActivity struct {
	Title           string   `json:"title"`
	DayOffset       int      `json:"day_offset"`
	StartTime       string   `json:"start_time"`
	DurationMinutes *int     `json:"duration_minutes"`
	Lng             *float64 `json:"lng"`
	Lat             *float64 `json:"lat"`
	Address         string   `json:"address"`
	Notes           string   `json:"notes"`
	Category        string   `json:"category"`
	Price           *float64 `json:"price"`
}

type CandidateMovement struct {
	FromStopIndex   *int     `json:"from_stop_index"`
	ToStopIndex     *int     `json:"to_stop_index"`
	Type            string   `json:"type"`
	DurationMinutes *int     `json:"duration_minutes"`
	Carrier         string   `json:"carrier"`
	Notes           string   `json:"notes"`
	Price           *float64 `json:"price"`
}

// ingestionPlan holds the rows that replace a trip's itinerary.
type ingestionPlan struct {
	Stops      []Stop
	Activities []Activity
	Movements  []Movement
}

// errNoCandidateStops is returned when a candidate has nothing to ingest.
type errNoCandidateStops struct{}

func (errNoCandidateStops) Error() string { return "candidate itinerary contains no stops" }

// planIngestion clamps, truncates and resolves candidate into concrete rows for
// trip. Bad fields are repaired or dropped; only an empty stop list fails.
func planIngestion(trip Trip, candidate Candidate, ids IDProvider, now time.Time) (ingestionPlan, error) {
	rawStops := candidate.Stops
	if len(rawStops) > MaxCandidateStops {
		rawStops = rawStops[:MaxCandidateStops]
	}
	if len(rawStops) == 0 {
		return ingestionPlan{}, errNoCandidateStops{}
	}

	start := dateOnly(time.Time(trip.StartDate))
	plan := ingestionPlan{Stops: make([]Stop, 0, len(rawStops))}
	nightsBefore := 0
	for index, raw := range rawStops {
		stopID, err := ids.NewID()
		if err != nil {
			return ingestionPlan{}, err
		}
		nights := raw.Nights
		if nights < 1 {
			nights = 1
		}
		name := truncate(strings.TrimSpace(raw.Name), maxNameLength)
		if name == "" {
			name = "Unknown"
		}
		plan.Stops = append(plan.Stops, Stop{
			ID:            stopID,
			TripID:        trip.ID,
			SortIndex:     index,
			Name:          name,
			Lng:           clamp(raw.Lng, -180, 180),
			Lat:           clamp(raw.Lat, -90, 90),
			Nights:        nights,
			PricePerNight: raw.PricePerNight,
			Notes:         truncate(raw.Notes, maxNotesLength),
			CreatedAt:     now,
			UpdatedAt:     now,
		})

		for activityIndex, rawActivity := range raw.Activities {
			activity, err := planActivity(rawActivity, stopID, activityIndex, start.AddDate(0, 0, nightsBefore), ids, now)
			if err != nil {
				return ingestionPlan{}, err
			}
			plan.Activities = append(plan.Activities, activity)
		}
		nightsBefore += nights
	}

	seen := make(map[[2]int]struct{}, len(candidate.Movements))
	for _, raw := range candidate.Movements {
		if raw.FromStopIndex == nil || raw.ToStopIndex == nil {
			continue
		}
		from, to := *raw.FromStopIndex, *raw.ToStopIndex
		if from < 0 || to < 0 || from >= len(plan.Stops) || to >= len(plan.Stops) || from == to {
			continue
		}
		pair := [2]int{from, to}
		if _, duplicate := seen[pair]; duplicate {
			continue
		}
		seen[pair] = struct{}{}

		movementType, err := ParseMovementType(raw.Type)
		if err != nil || movementType == MovementOther {
			movementType = MovementTrain
		}
		movementID, err := ids.NewID()
		if err != nil {
			return ingestionPlan{}, err
		}
		plan.Movements = append(plan.Movements, Movement{
			ID:              movementID,
			TripID:          trip.ID,
			FromStopID:      plan.Stops[from].ID,
			ToStopID:        plan.Stops[to].ID,
			Type:            movementType,
			DurationMinutes: nonNegative(raw.DurationMinutes),
			Carrier:         truncate(raw.Carrier, maxCarrierLength),
			Notes:           truncate(raw.Notes, maxNotesLength),
			Price:           raw.Price,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return plan, nil
}

func planActivity(raw CandidateActivity, stopID string, index int, arrival time.Time, ids IDProvider, now time.Time) (Activity, error) {
	activityID, err := ids.NewID()
	if err != nil {
		return Activity{}, err
	}
	dayOffset := raw.DayOffset
	if dayOffset < 0 {
		dayOffset = 0
	}
	date := datatypes.Date(arrival.AddDate(0, 0, dayOffset))

	var lng, lat *float64
	if raw.Lng != nil && raw.Lat != nil {
		clampedLng, clampedLat := clamp(*raw.Lng, -180, 180), clamp(*raw.Lat, -90, 90)
		lng, lat = &clampedLng, &clampedLat
	}

	category, err := ParseActivityCategory(raw.Category)
	if err != nil {
		category = ""
	}
	title := truncate(strings.TrimSpace(raw.Title), maxNameLength)
	if title == "" {
		title = "Activity"
	}
	startTime := raw.StartTime

	return Activity{
		ID:              activityID,
		StopID:          stopID,
		SortIndex:       index,
		Title:           title,
		Date:            &date,
		StartTime:       parseClock(&startTime),
		DurationMinutes: nonNegative(raw.DurationMinutes),
		Lng:             lng,
		Lat:             lat,
		Address:         truncate(raw.Address, maxAddressLength),
		Notes:           truncate(raw.Notes, maxNotesLength),
		Category:        category,
		Price:           raw.Price,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// applyIngestionPlan swaps the trip's current graph for plan.
func applyIngestionPlan(tx *gorm.DB, tripID string, plan ingestionPlan) error {
	if err := tx.Where("trip_id = ?", tripID).Delete(&Movement{}).Error; err != nil {
		return err
	}
	var stopIDs []string
	if err := tx.Model(&Stop{}).Where("trip_id = ?", tripID).Pluck("id", &stopIDs).Error; err != nil {
		return err
	}
	if err := deleteStops(tx, stopIDs); err != nil {
		return err
	}
	if err := tx.Create(&plan.Stops).Error; err != nil {
		return err
	}
	if len(plan.Activities) > 0 {
		if err := tx.Create(&plan.Activities).Error; err != nil {
			return err
		}
	}
	if len(plan.Movements) > 0 {
		if err := tx.Create(&plan.Movements).Error; err != nil {
			return err
		}
	}
	return nil
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func nonNegative(value *int) *int {
	if value == nil || *value < 0 {
		return nil
	}
	return value
}

// truncate cuts value to at most limit characters.
func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
