package itinerary

import (
	"gorm.io/gorm"
)

// ActivityWithPhotos pairs an activity with its photos ordered by sort_index.
type ActivityWithPhotos struct {
	Activity
	Photos []Photo
}

// Itinerary is the assembled object graph of one trip. It is the single read
// model behind owner views, share views and version snapshots.
type Itinerary struct {
	Trip      Trip
	Stops     []Stop
	Movements []Movement
	// MovementByFrom exposes at most one outgoing movement per stop.
	MovementByFrom   map[string]Movement
	ActivitiesByStop map[string][]ActivityWithPhotos
}

// loadItinerary reads the full graph of trip through tx.
func loadItinerary(tx *gorm.DB, trip Trip) (*Itinerary, error) {
	graph := &Itinerary{
		Trip:             trip,
		MovementByFrom:   make(map[string]Movement),
		ActivitiesByStop: make(map[string][]ActivityWithPhotos),
	}

	if err := tx.Where("trip_id = ?", trip.ID).Order("sort_index ASC").Find(&graph.Stops).Error; err != nil {
		return nil, err
	}

	if err := tx.Where("trip_id = ?", trip.ID).Order("created_at ASC, id ASC").Find(&graph.Movements).Error; err != nil {
		return nil, err
	}
	for _, movement := range graph.Movements {
		if _, exists := graph.MovementByFrom[movement.FromStopID]; !exists {
			graph.MovementByFrom[movement.FromStopID] = movement
		}
	}

	if len(graph.Stops) == 0 {
		return graph, nil
	}

	stopIDs := make([]string, 0, len(graph.Stops))
	for _, stop := range graph.Stops {
		stopIDs = append(stopIDs, stop.ID)
	}

	var activities []Activity
	if err := tx.Where("trip_stop_id IN ?", stopIDs).
		Order("trip_stop_id ASC, sort_index ASC").
		Find(&activities).Error; err != nil {
		return nil, err
	}
	if len(activities) == 0 {
		return graph, nil
	}

	activityIDs := make([]string, 0, len(activities))
	for _, activity := range activities {
		activityIDs = append(activityIDs, activity.ID)
	}

	var photos []Photo
	if err := tx.Where("activity_id IN ?", activityIDs).
		Order("activity_id ASC, sort_index ASC").
		Find(&photos).Error; err != nil {
		return nil, err
	}
	photosByActivity := make(map[string][]Photo, len(activities))
	for _, photo := range photos {
		photosByActivity[photo.ActivityID] = append(photosByActivity[photo.ActivityID], photo)
	}

	for _, activity := range activities {
		graph.ActivitiesByStop[activity.StopID] = append(graph.ActivitiesByStop[activity.StopID], ActivityWithPhotos{
			Activity: activity,
			Photos:   photosByActivity[activity.ID],
		})
	}
	return graph, nil
}
