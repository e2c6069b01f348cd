package itinerary

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EndDate returns start + (sum(nights) - 1) days, floored at start.
func EndDate(start time.Time, totalNights int) time.Time {
	if totalNights <= 1 {
		return start
	}
	return start.AddDate(0, 0, totalNights-1)
}

// Budget is the read-time cost projection of an itinerary.
type Budget struct {
	ActivitiesTotal    float64
	AccommodationTotal float64
	TransportTotal     float64
	GrandTotal         float64
}

// ComputeBudget sums prices over the graph, treating missing prices as zero.
func ComputeBudget(graph *Itinerary) Budget {
	var budget Budget
	if graph == nil {
		return budget
	}
	for _, stop := range graph.Stops {
		if stop.PricePerNight != nil {
			budget.AccommodationTotal += *stop.PricePerNight * float64(stop.Nights)
		}
		for _, activity := range graph.ActivitiesByStop[stop.ID] {
			if activity.Price != nil {
				budget.ActivitiesTotal += *activity.Price
			}
		}
	}
	for _, movement := range graph.Movements {
		if movement.Price != nil {
			budget.TransportTotal += *movement.Price
		}
	}
	budget.GrandTotal = budget.ActivitiesTotal + budget.AccommodationTotal + budget.TransportTotal
	return budget
}

// recalculateEndDate persists the end date derived from the trip's start date
// and the current nights of its stops.
func recalculateEndDate(tx *gorm.DB, trip *Trip, now time.Time) error {
	var totalNights int
	row := tx.Model(&Stop{}).
		Select("COALESCE(SUM(nights), 0)").
		Where("trip_id = ?", trip.ID).
		Row()
	if err := row.Scan(&totalNights); err != nil {
		return err
	}
	endDate := datatypes.Date(EndDate(time.Time(trip.StartDate), totalNights))
	if err := tx.Model(&Trip{}).Where("id = ?", trip.ID).UpdateColumns(map[string]any{
		"end_date":   endDate,
		"updated_at": now,
	}).Error; err != nil {
		return err
	}
	trip.EndDate = &endDate
	trip.UpdatedAt = now
	return nil
}

// dateOnly truncates t to a UTC calendar date.
func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
