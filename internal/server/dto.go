package server

import (
	"time"

	"gorm.io/datatypes"

	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
	"github.com/MarcoPoloResearchLab/plantrip/internal/orgs"
	"github.com/MarcoPoloResearchLab/plantrip/internal/sharing"
)

const dateLayout = "2006-01-02"

type tripPayload struct {
	ID             string    `json:"id"`
	OrganizationID *string   `json:"organization_id"`
	Name           string    `json:"name"`
	CountryCode    string    `json:"country_code"`
	StartDate      string    `json:"start_date"`
	EndDate        *string   `json:"end_date"`
	Status         string    `json:"status"`
	Currency       string    `json:"currency"`
	Notes          string    `json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type stopPayload struct {
	ID            string    `json:"id"`
	TripID        string    `json:"trip_id"`
	SortIndex     int       `json:"sort_index"`
	Name          string    `json:"name"`
	Lng           float64   `json:"lng"`
	Lat           float64   `json:"lat"`
	Notes         string    `json:"notes"`
	Nights        int       `json:"nights"`
	PricePerNight *float64  `json:"price_per_night"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type movementPayload struct {
	ID              string     `json:"id"`
	TripID          string     `json:"trip_id"`
	FromStopID      string     `json:"from_stop_id"`
	ToStopID        string     `json:"to_stop_id"`
	Type            string     `json:"type"`
	DurationMinutes *int       `json:"duration_minutes"`
	DepartureTime   *time.Time `json:"departure_time"`
	ArrivalTime     *time.Time `json:"arrival_time"`
	Carrier         string     `json:"carrier"`
	BookingRef      string     `json:"booking_ref"`
	Notes           string     `json:"notes"`
	Price           *float64   `json:"price"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type photoPayload struct {
	ID               string `json:"id"`
	URL              string `json:"url"`
	ThumbnailURL     string `json:"thumbnail_url"`
	Attribution      string `json:"attribution"`
	PhotographerName string `json:"photographer_name"`
	PhotographerURL  string `json:"photographer_url"`
	Source           string `json:"source"`
	Width            *int   `json:"width"`
	Height           *int   `json:"height"`
	SortIndex        int    `json:"sort_index"`
}

type activityPayload struct {
	ID              string         `json:"id"`
	StopID          string         `json:"trip_stop_id"`
	SortIndex       int            `json:"sort_index"`
	Title           string         `json:"title"`
	Date            *string        `json:"date"`
	StartTime       *string        `json:"start_time"`
	DurationMinutes *int           `json:"duration_minutes"`
	Lng             *float64       `json:"lng"`
	Lat             *float64       `json:"lat"`
	Address         string         `json:"address"`
	Notes           string         `json:"notes"`
	Category        string         `json:"category"`
	OpeningHours    string         `json:"opening_hours"`
	Price           *float64       `json:"price"`
	Tips            string         `json:"tips"`
	WebsiteURL      string         `json:"website_url"`
	Phone           string         `json:"phone"`
	Rating          *float64       `json:"rating"`
	GuideInfo       string         `json:"guide_info"`
	TransportInfo   string         `json:"transport_info"`
	PlaceRef        string         `json:"opentripmap_xid"`
	Photos          []photoPayload `json:"photos"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type budgetPayload struct {
	ActivitiesTotal    float64 `json:"activities_total"`
	AccommodationTotal float64 `json:"accommodation_total"`
	TransportTotal     float64 `json:"transport_total"`
	GrandTotal         float64 `json:"grand_total"`
}

type itineraryStopPayload struct {
	Stop           stopPayload       `json:"stop"`
	Activities     []activityPayload `json:"activities"`
	MovementToNext *movementPayload  `json:"movement_to_next"`
}

type itineraryPayload struct {
	Trip   tripPayload            `json:"trip"`
	Stops  []itineraryStopPayload `json:"stops"`
	Budget budgetPayload          `json:"budget"`
}

type sharedTripPayload struct {
	TripName    string                 `json:"trip_name"`
	CountryCode string                 `json:"country_code"`
	StartDate   string                 `json:"start_date"`
	EndDate     *string                `json:"end_date"`
	Status      string                 `json:"status"`
	Currency    string                 `json:"currency"`
	Stops       []itineraryStopPayload `json:"stops"`
	Budget      budgetPayload          `json:"budget"`
	ExpiresAt   time.Time              `json:"expires_at"`
}

type versionPayload struct {
	ID            string              `json:"id"`
	TripID        string              `json:"trip_id"`
	VersionNumber int                 `json:"version_number"`
	Label         string              `json:"label"`
	CreatedAt     time.Time           `json:"created_at"`
	Snapshot      *itinerary.Snapshot `json:"snapshot_data,omitempty"`
}

type shareTokenPayload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	TripID    string    `json:"trip_id"`
}

type feedbackPayload struct {
	ID            string    `json:"id"`
	ActivityID    *string   `json:"activity_id"`
	ActivityTitle string    `json:"activity_title"`
	VersionID     *string   `json:"version_id"`
	VersionNumber *int      `json:"version_number"`
	VersionLabel  *string   `json:"version_label"`
	ViewerName    string    `json:"viewer_name"`
	Sentiment     string    `json:"sentiment"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}

type activitySummaryPayload struct {
	ActivityID    *string           `json:"activity_id"`
	ActivityTitle string            `json:"activity_title"`
	Likes         int               `json:"likes"`
	Dislikes      int               `json:"dislikes"`
	Feedback      []feedbackPayload `json:"feedback"`
}

type versionGroupPayload struct {
	VersionID     *string                  `json:"version_id"`
	VersionNumber *int                     `json:"version_number"`
	VersionLabel  *string                  `json:"version_label"`
	Activities    []activitySummaryPayload `json:"activities"`
}

type feedbackReportPayload struct {
	TripID   string                `json:"trip_id"`
	Versions []versionGroupPayload `json:"versions"`
}

type organizationPayload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

type memberPayload struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

func formatDate(value datatypes.Date) string {
	return time.Time(value).Format(dateLayout)
}

func formatOptionalDate(value *datatypes.Date) *string {
	if value == nil {
		return nil
	}
	formatted := formatDate(*value)
	return &formatted
}

func newTripPayload(trip itinerary.Trip) tripPayload {
	return tripPayload{
		ID:             trip.ID,
		OrganizationID: trip.OrganizationID,
		Name:           trip.Name,
		CountryCode:    trip.CountryCode,
		StartDate:      formatDate(trip.StartDate),
		EndDate:        formatOptionalDate(trip.EndDate),
		Status:         string(trip.Status),
		Currency:       trip.Currency,
		Notes:          trip.Notes,
		CreatedAt:      trip.CreatedAt,
		UpdatedAt:      trip.UpdatedAt,
	}
}

func newTripPayloads(trips []itinerary.Trip) []tripPayload {
	result := make([]tripPayload, 0, len(trips))
	for _, trip := range trips {
		result = append(result, newTripPayload(trip))
	}
	return result
}

func newStopPayload(stop itinerary.Stop) stopPayload {
	return stopPayload{
		ID:            stop.ID,
		TripID:        stop.TripID,
		SortIndex:     stop.SortIndex,
		Name:          stop.Name,
		Lng:           stop.Lng,
		Lat:           stop.Lat,
		Notes:         stop.Notes,
		Nights:        stop.Nights,
		PricePerNight: stop.PricePerNight,
		CreatedAt:     stop.CreatedAt,
		UpdatedAt:     stop.UpdatedAt,
	}
}

func newStopPayloads(stops []itinerary.Stop) []stopPayload {
	result := make([]stopPayload, 0, len(stops))
	for _, stop := range stops {
		result = append(result, newStopPayload(stop))
	}
	return result
}

func newMovementPayload(movement itinerary.Movement) movementPayload {
	return movementPayload{
		ID:              movement.ID,
		TripID:          movement.TripID,
		FromStopID:      movement.FromStopID,
		ToStopID:        movement.ToStopID,
		Type:            string(movement.Type),
		DurationMinutes: movement.DurationMinutes,
		DepartureTime:   movement.DepartureTime,
		ArrivalTime:     movement.ArrivalTime,
		Carrier:         movement.Carrier,
		BookingRef:      movement.BookingRef,
		Notes:           movement.Notes,
		Price:           movement.Price,
		CreatedAt:       movement.CreatedAt,
		UpdatedAt:       movement.UpdatedAt,
	}
}

func newMovementPayloads(movements []itinerary.Movement) []movementPayload {
	result := make([]movementPayload, 0, len(movements))
	for _, movement := range movements {
		result = append(result, newMovementPayload(movement))
	}
	return result
}

func newActivityPayload(activity itinerary.Activity, photos []itinerary.Photo) activityPayload {
	photoPayloads := make([]photoPayload, 0, len(photos))
	for _, photo := range photos {
		photoPayloads = append(photoPayloads, photoPayload{
			ID:               photo.ID,
			URL:              photo.URL,
			ThumbnailURL:     photo.ThumbnailURL,
			Attribution:      photo.Attribution,
			PhotographerName: photo.PhotographerName,
			PhotographerURL:  photo.PhotographerURL,
			Source:           photo.Source,
			Width:            photo.Width,
			Height:           photo.Height,
			SortIndex:        photo.SortIndex,
		})
	}
	return activityPayload{
		ID:              activity.ID,
		StopID:          activity.StopID,
		SortIndex:       activity.SortIndex,
		Title:           activity.Title,
		Date:            formatOptionalDate(activity.Date),
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
		Photos:          photoPayloads,
		CreatedAt:       activity.CreatedAt,
		UpdatedAt:       activity.UpdatedAt,
	}
}

func newActivityPayloads(activities []itinerary.ActivityWithPhotos) []activityPayload {
	result := make([]activityPayload, 0, len(activities))
	for _, activity := range activities {
		result = append(result, newActivityPayload(activity.Activity, activity.Photos))
	}
	return result
}

func newBudgetPayload(budget itinerary.Budget) budgetPayload {
	return budgetPayload{
		ActivitiesTotal:    budget.ActivitiesTotal,
		AccommodationTotal: budget.AccommodationTotal,
		TransportTotal:     budget.TransportTotal,
		GrandTotal:         budget.GrandTotal,
	}
}

func newItineraryStops(graph *itinerary.Itinerary) []itineraryStopPayload {
	stops := make([]itineraryStopPayload, 0, len(graph.Stops))
	for _, stop := range graph.Stops {
		entry := itineraryStopPayload{
			Stop:       newStopPayload(stop),
			Activities: newActivityPayloads(graph.ActivitiesByStop[stop.ID]),
		}
		if movement, ok := graph.MovementByFrom[stop.ID]; ok {
			payload := newMovementPayload(movement)
			entry.MovementToNext = &payload
		}
		stops = append(stops, entry)
	}
	return stops
}

func newItineraryPayload(graph *itinerary.Itinerary) itineraryPayload {
	return itineraryPayload{
		Trip:   newTripPayload(graph.Trip),
		Stops:  newItineraryStops(graph),
		Budget: newBudgetPayload(itinerary.ComputeBudget(graph)),
	}
}

func newSharedTripPayload(view sharing.SharedItinerary) sharedTripPayload {
	trip := view.Graph.Trip
	return sharedTripPayload{
		TripName:    trip.Name,
		CountryCode: trip.CountryCode,
		StartDate:   formatDate(trip.StartDate),
		EndDate:     formatOptionalDate(trip.EndDate),
		Status:      string(trip.Status),
		Currency:    trip.Currency,
		Stops:       newItineraryStops(view.Graph),
		Budget:      newBudgetPayload(view.Budget),
		ExpiresAt:   view.ExpiresAt,
	}
}

func newVersionPayload(version itinerary.Version, withSnapshot bool) versionPayload {
	payload := versionPayload{
		ID:            version.ID,
		TripID:        version.TripID,
		VersionNumber: version.VersionNumber,
		Label:         version.Label,
		CreatedAt:     version.CreatedAt,
	}
	if withSnapshot {
		snapshot := version.Snapshot.Data()
		payload.Snapshot = &snapshot
	}
	return payload
}

func newVersionPayloads(versions []itinerary.Version) []versionPayload {
	result := make([]versionPayload, 0, len(versions))
	for _, version := range versions {
		result = append(result, newVersionPayload(version, false))
	}
	return result
}

func newShareTokenPayload(token itinerary.ShareToken) shareTokenPayload {
	return shareTokenPayload{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
		TripID:    token.TripID,
	}
}

func newFeedbackPayload(entry sharing.FeedbackEntry) feedbackPayload {
	return feedbackPayload{
		ID:            entry.ID,
		ActivityID:    entry.ActivityID,
		ActivityTitle: entry.ActivityTitle,
		VersionID:     entry.VersionID,
		VersionNumber: entry.VersionNumber,
		VersionLabel:  entry.VersionLabel,
		ViewerName:    entry.ViewerName,
		Sentiment:     string(entry.Sentiment),
		Message:       entry.Message,
		CreatedAt:     entry.CreatedAt,
	}
}

func newFeedbackReportPayload(report sharing.FeedbackReport) feedbackReportPayload {
	versions := make([]versionGroupPayload, 0, len(report.Versions))
	for _, group := range report.Versions {
		activities := make([]activitySummaryPayload, 0, len(group.Activities))
		for _, summary := range group.Activities {
			entries := make([]feedbackPayload, 0, len(summary.Feedback))
			for _, entry := range summary.Feedback {
				entries = append(entries, newFeedbackPayload(entry))
			}
			activities = append(activities, activitySummaryPayload{
				ActivityID:    summary.ActivityID,
				ActivityTitle: summary.ActivityTitle,
				Likes:         summary.Likes,
				Dislikes:      summary.Dislikes,
				Feedback:      entries,
			})
		}
		versions = append(versions, versionGroupPayload{
			VersionID:     group.VersionID,
			VersionNumber: group.VersionNumber,
			VersionLabel:  group.VersionLabel,
			Activities:    activities,
		})
	}
	return feedbackReportPayload{TripID: report.TripID, Versions: versions}
}

func newOrganizationPayload(organization orgs.Organization) organizationPayload {
	return organizationPayload{
		ID:        organization.ID,
		Name:      organization.Name,
		Slug:      organization.Slug,
		CreatedAt: organization.CreatedAt,
	}
}

func newMemberPayload(member orgs.Member) memberPayload {
	return memberPayload{
		OrganizationID: member.OrganizationID,
		UserID:         member.UserID,
		Role:           string(member.Role),
		CreatedAt:      member.CreatedAt,
	}
}
