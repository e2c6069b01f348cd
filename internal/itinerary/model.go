package itinerary

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// TripStatus enumerates the lifecycle states of a trip.
type TripStatus string

const (
	TripStatusPlanning  TripStatus = "planning"
	TripStatusBooked    TripStatus = "booked"
	TripStatusActive    TripStatus = "active"
	TripStatusCompleted TripStatus = "completed"
	TripStatusCancelled TripStatus = "cancelled"
)

// ParseTripStatus validates raw input. An empty value yields planning.
func ParseTripStatus(raw string) (TripStatus, error) {
	switch status := TripStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case "":
		return TripStatusPlanning, nil
	case TripStatusPlanning, TripStatusBooked, TripStatusActive, TripStatusCompleted, TripStatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("unknown trip status %q", raw)
	}
}

// MovementType enumerates transport modes between stops.
type MovementType string

const (
	MovementTrain MovementType = "train"
	MovementCar   MovementType = "car"
	MovementPlane MovementType = "plane"
	MovementBus   MovementType = "bus"
	MovementFerry MovementType = "ferry"
	MovementWalk  MovementType = "walk"
	MovementOther MovementType = "other"
)

// ParseMovementType validates raw input; "flight" is accepted as an alias of plane.
func ParseMovementType(raw string) (MovementType, error) {
	switch kind := MovementType(strings.ToLower(strings.TrimSpace(raw))); kind {
	case "flight":
		return MovementPlane, nil
	case MovementTrain, MovementCar, MovementPlane, MovementBus, MovementFerry, MovementWalk, MovementOther:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown movement type %q", raw)
	}
}

// ActivityCategory enumerates activity kinds. The empty category is valid.
type ActivityCategory string

var activityCategories = map[ActivityCategory]struct{}{
	"":            {},
	"sightseeing": {},
	"food":        {},
	"museum":      {},
	"outdoors":    {},
	"shopping":    {},
	"nightlife":   {},
	"culture":     {},
	"relaxation":  {},
	"adventure":   {},
	"transport":   {},
}

// ParseActivityCategory validates raw input.
func ParseActivityCategory(raw string) (ActivityCategory, error) {
	category := ActivityCategory(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := activityCategories[category]; !ok {
		return "", fmt.Errorf("unknown activity category %q", raw)
	}
	return category, nil
}

// Sentiment is a viewer reaction to an activity.
type Sentiment string

const (
	SentimentLike    Sentiment = "like"
	SentimentDislike Sentiment = "dislike"
)

// ParseSentiment validates raw input.
func ParseSentiment(raw string) (Sentiment, error) {
	switch sentiment := Sentiment(strings.ToLower(strings.TrimSpace(raw))); sentiment {
	case SentimentLike, SentimentDislike:
		return sentiment, nil
	default:
		return "", fmt.Errorf("unknown sentiment %q", raw)
	}
}

// Trip is the root of an itinerary graph.
type Trip struct {
	ID             string          `gorm:"column:id;primaryKey;size:36"`
	UserID         string          `gorm:"column:user_id;size:190;not null;index:idx_trips_user_created,priority:1"`
	OrganizationID *string         `gorm:"column:organization_id;size:36;index:idx_trips_organization_id"`
	Name           string          `gorm:"column:name;size:200;not null"`
	CountryCode    string          `gorm:"column:country_code;size:10;not null"`
	StartDate      datatypes.Date  `gorm:"column:start_date;not null"`
	EndDate        *datatypes.Date `gorm:"column:end_date"`
	Status         TripStatus      `gorm:"column:status;size:20;not null"`
	Currency       string          `gorm:"column:currency;size:3;not null"`
	Notes          string          `gorm:"column:notes;type:text;not null;default:''"`
	VersionSeq     int             `gorm:"column:version_seq;not null;default:0"`
	CreatedAt      time.Time       `gorm:"column:created_at;not null;index:idx_trips_user_created,priority:2"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Trip) TableName() string {
	return "trips"
}

// Stop is a place visited during a trip. SortIndex is dense per trip.
type Stop struct {
	ID            string    `gorm:"column:id;primaryKey;size:36"`
	TripID        string    `gorm:"column:trip_id;size:36;not null;uniqueIndex:uq_trip_stop_sort,priority:1"`
	SortIndex     int       `gorm:"column:sort_index;not null;uniqueIndex:uq_trip_stop_sort,priority:2"`
	Name          string    `gorm:"column:name;size:200;not null"`
	Lng           float64   `gorm:"column:lng;not null"`
	Lat           float64   `gorm:"column:lat;not null"`
	Nights        int       `gorm:"column:nights;not null"`
	PricePerNight *float64  `gorm:"column:price_per_night"`
	Notes         string    `gorm:"column:notes;type:text;not null;default:''"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Stop) TableName() string {
	return "trip_stops"
}

// Movement is a transport leg between two stops of the same trip.
type Movement struct {
	ID              string       `gorm:"column:id;primaryKey;size:36"`
	TripID          string       `gorm:"column:trip_id;size:36;not null;index"`
	FromStopID      string       `gorm:"column:from_stop_id;size:36;not null;uniqueIndex:uq_movement_pair,priority:1"`
	ToStopID        string       `gorm:"column:to_stop_id;size:36;not null;uniqueIndex:uq_movement_pair,priority:2;index"`
	Type            MovementType `gorm:"column:type;size:20;not null"`
	DurationMinutes *int         `gorm:"column:duration_minutes"`
	DepartureTime   *time.Time   `gorm:"column:departure_time"`
	ArrivalTime     *time.Time   `gorm:"column:arrival_time"`
	Carrier         string       `gorm:"column:carrier;size:200;not null;default:''"`
	BookingRef      string       `gorm:"column:booking_ref;size:200;not null;default:''"`
	Price           *float64     `gorm:"column:price"`
	Notes           string       `gorm:"column:notes;type:text;not null;default:''"`
	CreatedAt       time.Time    `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time    `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Movement) TableName() string {
	return "movements"
}

// Activity is an item nested under a stop. SortIndex is dense per stop.
type Activity struct {
	ID              string           `gorm:"column:id;primaryKey;size:36"`
	StopID          string           `gorm:"column:trip_stop_id;size:36;not null;uniqueIndex:uq_activity_sort,priority:1"`
	SortIndex       int              `gorm:"column:sort_index;not null;uniqueIndex:uq_activity_sort,priority:2"`
	Title           string           `gorm:"column:title;size:200;not null"`
	Date            *datatypes.Date  `gorm:"column:date"`
	StartTime       *string          `gorm:"column:start_time;size:5"`
	DurationMinutes *int             `gorm:"column:duration_minutes"`
	Lng             *float64         `gorm:"column:lng"`
	Lat             *float64         `gorm:"column:lat"`
	Address         string           `gorm:"column:address;type:text;not null;default:''"`
	Notes           string           `gorm:"column:notes;type:text;not null;default:''"`
	Category        ActivityCategory `gorm:"column:category;size:100;not null;default:''"`
	OpeningHours    string           `gorm:"column:opening_hours;type:text;not null;default:''"`
	Price           *float64         `gorm:"column:price"`
	Tips            string           `gorm:"column:tips;type:text;not null;default:''"`
	WebsiteURL      string           `gorm:"column:website_url;size:500;not null;default:''"`
	Phone           string           `gorm:"column:phone;size:50;not null;default:''"`
	Rating          *float64         `gorm:"column:rating"`
	GuideInfo       string           `gorm:"column:guide_info;type:text;not null;default:''"`
	TransportInfo   string           `gorm:"column:transport_info;type:text;not null;default:''"`
	PlaceRef        string           `gorm:"column:opentripmap_xid;size:100;not null;default:''"`
	CreatedAt       time.Time        `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Activity) TableName() string {
	return "activities"
}

// Photo is an image attached to an activity. It is replaced wholesale on refresh.
type Photo struct {
	ID               string    `gorm:"column:id;primaryKey;size:36"`
	ActivityID       string    `gorm:"column:activity_id;size:36;not null;uniqueIndex:uq_activity_photo_sort,priority:1"`
	SortIndex        int       `gorm:"column:sort_index;not null;uniqueIndex:uq_activity_photo_sort,priority:2"`
	URL              string    `gorm:"column:url;size:1000;not null"`
	ThumbnailURL     string    `gorm:"column:thumbnail_url;size:1000;not null;default:''"`
	Attribution      string    `gorm:"column:attribution;type:text;not null;default:''"`
	PhotographerName string    `gorm:"column:photographer_name;size:200;not null;default:''"`
	PhotographerURL  string    `gorm:"column:photographer_url;size:500;not null;default:''"`
	Source           string    `gorm:"column:source;size:50;not null"`
	Width            *int      `gorm:"column:width"`
	Height           *int      `gorm:"column:height"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Photo) TableName() string {
	return "activity_photos"
}

// Version is an immutable, position-keyed snapshot of a trip's itinerary.
type Version struct {
	ID            string                       `gorm:"column:id;primaryKey;size:36"`
	TripID        string                       `gorm:"column:trip_id;size:36;not null;uniqueIndex:uq_trip_versions_trip_version,priority:1"`
	VersionNumber int                          `gorm:"column:version_number;not null;uniqueIndex:uq_trip_versions_trip_version,priority:2"`
	Label         string                       `gorm:"column:label;size:200;not null;default:''"`
	Snapshot      datatypes.JSONType[Snapshot] `gorm:"column:snapshot_data;not null"`
	CreatedAt     time.Time                    `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Version) TableName() string {
	return "trip_versions"
}

// ShareToken grants read-only public access to one trip until it expires.
type ShareToken struct {
	ID        string    `gorm:"column:id;primaryKey;size:36"`
	TripID    string    `gorm:"column:trip_id;size:36;not null;index"`
	UserID    string    `gorm:"column:user_id;size:190;not null"`
	Token     string    `gorm:"column:token;size:64;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ShareToken) TableName() string {
	return "share_tokens"
}

// Feedback is an append-only viewer reaction. Its references are weak and are
// nulled rather than cascaded when the referenced rows disappear.
type Feedback struct {
	ID              string    `gorm:"column:id;primaryKey;size:36"`
	TripID          string    `gorm:"column:trip_id;size:36;not null;index"`
	ShareTokenID    *string   `gorm:"column:share_token_id;size:36;index"`
	ActivityID      *string   `gorm:"column:activity_id;size:36;index"`
	VersionID       *string   `gorm:"column:version_id;size:36;index"`
	ActivityTitle   string    `gorm:"column:activity_title;size:200;not null;default:''"`
	ViewerSessionID string    `gorm:"column:viewer_session_id;size:64;not null"`
	ViewerName      string    `gorm:"column:viewer_name;size:100;not null"`
	Sentiment       Sentiment `gorm:"column:sentiment;size:10;not null"`
	Message         string    `gorm:"column:message;type:text;not null;default:''"`
	CreatedAt       time.Time `gorm:"column:created_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Feedback) TableName() string {
	return "activity_feedback"
}

// Models lists every entity owned by this package, in migration order.
func Models() []any {
	return []any{
		&Trip{},
		&Stop{},
		&Movement{},
		&Activity{},
		&Photo{},
		&Version{},
		&ShareToken{},
		&Feedback{},
	}
}
