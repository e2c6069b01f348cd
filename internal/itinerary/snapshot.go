package itinerary

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultPhotoSource = "unsplash"

// Snapshot is a position-keyed copy of an itinerary graph. It holds no row
// identities: movements refer to stops by sort_index so the graph can be
// rebuilt under fresh ids.
type Snapshot struct {
	Stops     []SnapshotStop     `json:"stops"`
	Movements []SnapshotMovement `json:"movements"`
}

// SnapshotStop is a stop with its nested activities. Pointer fields default
// when absent from older payloads.
type SnapshotStop struct {
	SortIndex     int                `json:"sort_index"`
	Name          string             `json:"name"`
	Lng           float64            `json:"lng"`
	Lat           float64            `json:"lat"`
	Notes         string             `json:"notes"`
	Nights        *int               `json:"nights"`
	PricePerNight *float64           `json:"price_per_night"`
	Activities    []SnapshotActivity `json:"activities"`
}

type SnapshotActivity struct {
	SortIndex       int             `json:"sort_index"`
	Title           string          `json:"title"`
	Date            *string         `json:"date"`
	StartTime       *string         `json:"start_time"`
	DurationMinutes *int            `json:"duration_minutes"`
	Lng             *float64        `json:"lng"`
	Lat             *float64        `json:"lat"`
	Address         string          `json:"address"`
	Notes           string          `json:"notes"`
	Category        string          `json:"category"`
	OpeningHours    string          `json:"opening_hours"`
	Price           *float64        `json:"price"`
	Tips            string          `json:"tips"`
	WebsiteURL      string          `json:"website_url"`
	Phone           string          `json:"phone"`
	Rating          *float64        `json:"rating"`
	GuideInfo       string          `json:"guide_info"`
	TransportInfo   string          `json:"transport_info"`
	PlaceRef        string          `json:"opentripmap_xid"`
	Photos          []SnapshotPhoto `json:"photos"`
}

type SnapshotPhoto struct {
	URL              string  `json:"url"`
	ThumbnailURL     string  `json:"thumbnail_url"`
	Attribution      string  `json:"attribution"`
	PhotographerName string  `json:"photographer_name"`
	PhotographerURL  string  `json:"photographer_url"`
	Source           *string `json:"source"`
	Width            *int    `json:"width"`
	Height           *int    `json:"height"`
	SortIndex        int     `json:"sort_index"`
}

type SnapshotMovement struct {
	FromSortIndex   int      `json:"from_sort_index"`
	ToSortIndex     int      `json:"to_sort_index"`
	Type            string   `json:"type"`
	DurationMinutes *int     `json:"duration_minutes"`
	DepartureTime   *string  `json:"departure_time"`
	ArrivalTime     *string  `json:"arrival_time"`
	Carrier         string   `json:"carrier"`
	BookingRef      string   `json:"booking_ref"`
	Notes           string   `json:"notes"`
	Price           *float64 `json:"price"`
}

const (
	snapshotDateLayout = "2006-01-02"
	snapshotTimeLayout = "2006-01-02T15:04:05Z07:00"
)

// BuildSnapshot serializes graph by position.
func BuildSnapshot(graph *Itinerary) Snapshot {
	snapshot := Snapshot{
		Stops:     make([]SnapshotStop, 0, len(graph.Stops)),
		Movements: make([]SnapshotMovement, 0, len(graph.Movements)),
	}

	positionByStop := make(map[string]int, len(graph.Stops))
	for _, stop := range graph.Stops {
		positionByStop[stop.ID] = stop.SortIndex
		nights := stop.Nights
		entry := SnapshotStop{
			SortIndex:     stop.SortIndex,
			Name:          stop.Name,
			Lng:           stop.Lng,
			Lat:           stop.Lat,
			Notes:         stop.Notes,
			Nights:        &nights,
			PricePerNight: stop.PricePerNight,
			Activities:    make([]SnapshotActivity, 0, len(graph.ActivitiesByStop[stop.ID])),
		}
		for _, activity := range graph.ActivitiesByStop[stop.ID] {
			entry.Activities = append(entry.Activities, snapshotActivity(activity))
		}
		snapshot.Stops = append(snapshot.Stops, entry)
	}

	for _, movement := range graph.Movements {
		from, fromOK := positionByStop[movement.FromStopID]
		to, toOK := positionByStop[movement.ToStopID]
		if !fromOK || !toOK {
			continue
		}
		snapshot.Movements = append(snapshot.Movements, SnapshotMovement{
			FromSortIndex:   from,
			ToSortIndex:     to,
			Type:            string(movement.Type),
			DurationMinutes: movement.DurationMinutes,
			DepartureTime:   formatTimestamp(movement.DepartureTime),
			ArrivalTime:     formatTimestamp(movement.ArrivalTime),
			Carrier:         movement.Carrier,
			BookingRef:      movement.BookingRef,
			Notes:           movement.Notes,
			Price:           movement.Price,
		})
	}
	return snapshot
}

func snapshotActivity(activity ActivityWithPhotos) SnapshotActivity {
	entry := SnapshotActivity{
		SortIndex:       activity.SortIndex,
		Title:           activity.Title,
		StartTime:       activity.StartTime,
		DurationMinutes: activity.DurationMinutes,
		Lng:             activity.Lng,
		Lat:             activity.Lat,
		Address:         activity.Address,
		Notes:           activity.Notes,
		Category:        string(activity.Category),
		OpeningHours:    activity.OpeningHours,
		Price:           activity.Price,
		Tips:            activity.Tips,
		WebsiteURL:      activity.WebsiteURL,
		Phone:           activity.Phone,
		Rating:          activity.Rating,
		GuideInfo:       activity.GuideInfo,
		TransportInfo:   activity.TransportInfo,
		PlaceRef:        activity.PlaceRef,
		Photos:          make([]SnapshotPhoto, 0, len(activity.Photos)),
	}
	if activity.Date != nil {
		formatted := time.Time(*activity.Date).Format(snapshotDateLayout)
		entry.Date = &formatted
	}
	for _, photo := range activity.Photos {
		source := photo.Source
		entry.Photos = append(entry.Photos, SnapshotPhoto{
			URL:              photo.URL,
			ThumbnailURL:     photo.ThumbnailURL,
			Attribution:      photo.Attribution,
			PhotographerName: photo.PhotographerName,
			PhotographerURL:  photo.PhotographerURL,
			Source:           &source,
			Width:            photo.Width,
			Height:           photo.Height,
			SortIndex:        photo.SortIndex,
		})
	}
	return entry
}

// restoreSnapshot replaces the live graph of trip with snapshot. Stops,
// activities and photos keep their recorded sort indexes; movements are
// re-targeted through the position map and dropped when a side is missing.
func restoreSnapshot(tx *gorm.DB, ids IDProvider, tripID string, snapshot Snapshot, now time.Time) error {
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

	stopByPosition := make(map[int]string, len(snapshot.Stops))
	for _, entry := range snapshot.Stops {
		stopID, err := ids.NewID()
		if err != nil {
			return err
		}
		nights := 1
		if entry.Nights != nil {
			nights = *entry.Nights
		}
		stop := Stop{
			ID:            stopID,
			TripID:        tripID,
			SortIndex:     entry.SortIndex,
			Name:          entry.Name,
			Lng:           entry.Lng,
			Lat:           entry.Lat,
			Nights:        nights,
			PricePerNight: entry.PricePerNight,
			Notes:         entry.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(&stop).Error; err != nil {
			return err
		}
		stopByPosition[entry.SortIndex] = stopID

		for _, activityEntry := range entry.Activities {
			if err := restoreActivity(tx, ids, stopID, activityEntry, now); err != nil {
				return err
			}
		}
	}

	for _, entry := range snapshot.Movements {
		fromID, fromOK := stopByPosition[entry.FromSortIndex]
		toID, toOK := stopByPosition[entry.ToSortIndex]
		if !fromOK || !toOK || fromID == toID {
			continue
		}
		movementID, err := ids.NewID()
		if err != nil {
			return err
		}
		movementType, err := ParseMovementType(entry.Type)
		if err != nil {
			movementType = MovementOther
		}
		movement := Movement{
			ID:              movementID,
			TripID:          tripID,
			FromStopID:      fromID,
			ToStopID:        toID,
			Type:            movementType,
			DurationMinutes: entry.DurationMinutes,
			DepartureTime:   parseTimestamp(entry.DepartureTime),
			ArrivalTime:     parseTimestamp(entry.ArrivalTime),
			Carrier:         entry.Carrier,
			BookingRef:      entry.BookingRef,
			Price:           entry.Price,
			Notes:           entry.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return err
		}
	}
	return nil
}

func restoreActivity(tx *gorm.DB, ids IDProvider, stopID string, entry SnapshotActivity, now time.Time) error {
	activityID, err := ids.NewID()
	if err != nil {
		return err
	}
	category, err := ParseActivityCategory(entry.Category)
	if err != nil {
		category = ""
	}
	activity := Activity{
		ID:              activityID,
		StopID:          stopID,
		SortIndex:       entry.SortIndex,
		Title:           entry.Title,
		Date:            parseDate(entry.Date),
		StartTime:       parseClock(entry.StartTime),
		DurationMinutes: entry.DurationMinutes,
		Lng:             entry.Lng,
		Lat:             entry.Lat,
		Address:         entry.Address,
		Notes:           entry.Notes,
		Category:        category,
		OpeningHours:    entry.OpeningHours,
		Price:           entry.Price,
		Tips:            entry.Tips,
		WebsiteURL:      entry.WebsiteURL,
		Phone:           entry.Phone,
		Rating:          entry.Rating,
		GuideInfo:       entry.GuideInfo,
		TransportInfo:   entry.TransportInfo,
		PlaceRef:        entry.PlaceRef,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.Create(&activity).Error; err != nil {
		return err
	}

	for _, photoEntry := range entry.Photos {
		photoID, err := ids.NewID()
		if err != nil {
			return err
		}
		source := defaultPhotoSource
		if photoEntry.Source != nil && *photoEntry.Source != "" {
			source = *photoEntry.Source
		}
		photo := Photo{
			ID:               photoID,
			ActivityID:       activityID,
			SortIndex:        photoEntry.SortIndex,
			URL:              photoEntry.URL,
			ThumbnailURL:     photoEntry.ThumbnailURL,
			Attribution:      photoEntry.Attribution,
			PhotographerName: photoEntry.PhotographerName,
			PhotographerURL:  photoEntry.PhotographerURL,
			Source:           source,
			Width:            photoEntry.Width,
			Height:           photoEntry.Height,
			CreatedAt:        now,
		}
		if err := tx.Create(&photo).Error; err != nil {
			return err
		}
	}
	return nil
}

func formatTimestamp(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := value.UTC().Format(snapshotTimeLayout)
	return &formatted
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseTimestamp accepts RFC 3339 and zone-less ISO timestamps. Anything else
// yields nil.
func parseTimestamp(value *string) *time.Time {
	if value == nil {
		return nil
	}
	raw := strings.TrimSpace(*value)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}

func parseDate(value *string) *datatypes.Date {
	if value == nil {
		return nil
	}
	parsed, err := time.Parse(snapshotDateLayout, strings.TrimSpace(*value))
	if err != nil {
		return nil
	}
	date := datatypes.Date(parsed)
	return &date
}

// parseClock normalizes "HH:MM" or "HH:MM:SS" to "HH:MM".
func parseClock(value *string) *string {
	if value == nil {
		return nil
	}
	raw := strings.TrimSpace(*value)
	for _, layout := range []string{"15:04", "15:04:05", "15:04:05.999999"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			formatted := parsed.Format("15:04")
			return &formatted
		}
	}
	return nil
}
