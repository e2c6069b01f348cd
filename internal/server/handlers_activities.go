package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

type activityRequest struct {
	Title           *string  `json:"title" binding:"omitempty,max=200"`
	Date            *string  `json:"date" binding:"omitempty,isodate"`
	StartTime       *string  `json:"start_time" binding:"omitempty,clock"`
	DurationMinutes *int     `json:"duration_minutes" binding:"omitempty,gte=0"`
	Lng             *float64 `json:"lng" binding:"omitempty,gte=-180,lte=180"`
	Lat             *float64 `json:"lat" binding:"omitempty,gte=-90,lte=90"`
	Address         *string  `json:"address"`
	Notes           *string  `json:"notes"`
	Category        *string  `json:"category"`
	OpeningHours    *string  `json:"opening_hours"`
	Price           *float64 `json:"price" binding:"omitempty,gte=0"`
	Tips            *string  `json:"tips"`
	WebsiteURL      *string  `json:"website_url"`
	Phone           *string  `json:"phone"`
	Rating          *float64 `json:"rating"`
	GuideInfo       *string  `json:"guide_info"`
	TransportInfo   *string  `json:"transport_info"`
	PlaceRef        *string  `json:"opentripmap_xid"`
}

type photoRequest struct {
	URL              string `json:"url" binding:"required"`
	ThumbnailURL     string `json:"thumbnail_url"`
	Attribution      string `json:"attribution"`
	PhotographerName string `json:"photographer_name"`
	PhotographerURL  string `json:"photographer_url"`
	Source           string `json:"source"`
	Width            *int   `json:"width"`
	Height           *int   `json:"height"`
}

type replacePhotosRequest struct {
	Photos []photoRequest `json:"photos" binding:"dive"`
}

func (r activityRequest) patch() (itinerary.ActivityPatch, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return itinerary.ActivityPatch{}, err
	}
	return itinerary.ActivityPatch{
		Title:           r.Title,
		Date:            date,
		StartTime:       r.StartTime,
		DurationMinutes: r.DurationMinutes,
		Lng:             r.Lng,
		Lat:             r.Lat,
		Address:         r.Address,
		Notes:           r.Notes,
		Category:        r.Category,
		OpeningHours:    r.OpeningHours,
		Price:           r.Price,
		Tips:            r.Tips,
		WebsiteURL:      r.WebsiteURL,
		Phone:           r.Phone,
		Rating:          r.Rating,
		GuideInfo:       r.GuideInfo,
		TransportInfo:   r.TransportInfo,
		PlaceRef:        r.PlaceRef,
	}, nil
}

func (r activityRequest) input() (itinerary.ActivityInput, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return itinerary.ActivityInput{}, err
	}
	return itinerary.ActivityInput{
		Title:           valueOf(r.Title),
		Date:            date,
		StartTime:       r.StartTime,
		DurationMinutes: r.DurationMinutes,
		Lng:             r.Lng,
		Lat:             r.Lat,
		Address:         valueOf(r.Address),
		Notes:           valueOf(r.Notes),
		Category:        valueOf(r.Category),
		OpeningHours:    valueOf(r.OpeningHours),
		Price:           r.Price,
		Tips:            valueOf(r.Tips),
		WebsiteURL:      valueOf(r.WebsiteURL),
		Phone:           valueOf(r.Phone),
		Rating:          r.Rating,
		GuideInfo:       valueOf(r.GuideInfo),
		TransportInfo:   valueOf(r.TransportInfo),
		PlaceRef:        valueOf(r.PlaceRef),
	}, nil
}

func valueOf(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func (h *httpHandler) handleListActivities(c *gin.Context) {
	activities, err := h.trips.ListActivities(c.Request.Context(), currentUserID(c), c.Param("stopID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newActivityPayloads(activities))
}

func (h *httpHandler) handleCreateActivity(c *gin.Context) {
	var request activityRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	input, err := request.input()
	if err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	stopID := c.Param("stopID")
	activity, err := h.trips.CreateActivity(c.Request.Context(), currentUserID(c), stopID, input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, h.tripOf(c, itinerary.EntityStop, stopID), "activity", activity.ID)
	c.JSON(http.StatusCreated, newActivityPayload(activity, nil))
}

func (h *httpHandler) handleUpdateActivity(c *gin.Context) {
	var request activityRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	patch, err := request.patch()
	if err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	activityID := c.Param("activityID")
	activity, err := h.trips.UpdateActivity(c.Request.Context(), currentUserID(c), activityID, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, h.tripOf(c, itinerary.EntityActivity, activityID), "activity", activityID)
	c.JSON(http.StatusOK, newActivityPayload(activity.Activity, activity.Photos))
}

func (h *httpHandler) handleDeleteActivity(c *gin.Context) {
	activityID := c.Param("activityID")
	tripID := h.tripOf(c, itinerary.EntityActivity, activityID)
	if err := h.trips.DeleteActivity(c.Request.Context(), currentUserID(c), activityID); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, tripID, "activity", activityID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleReorderActivities(c *gin.Context) {
	var request reorderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	stopID := c.Param("stopID")
	activities, err := h.trips.ReorderActivities(c.Request.Context(), currentUserID(c), stopID, *request.FromIndex, *request.ToIndex)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ids := make([]string, 0, len(activities))
	for _, activity := range activities {
		ids = append(ids, activity.ID)
	}
	h.publish(c, h.tripOf(c, itinerary.EntityStop, stopID), "activity", ids...)
	c.JSON(http.StatusOK, newActivityPayloads(activities))
}

func (h *httpHandler) handleReplacePhotos(c *gin.Context) {
	var request replacePhotosRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	inputs := make([]itinerary.PhotoInput, 0, len(request.Photos))
	for _, photo := range request.Photos {
		inputs = append(inputs, itinerary.PhotoInput{
			URL:              photo.URL,
			ThumbnailURL:     photo.ThumbnailURL,
			Attribution:      photo.Attribution,
			PhotographerName: photo.PhotographerName,
			PhotographerURL:  photo.PhotographerURL,
			Source:           photo.Source,
			Width:            photo.Width,
			Height:           photo.Height,
		})
	}
	activityID := c.Param("activityID")
	activity, err := h.trips.ReplacePhotos(c.Request.Context(), currentUserID(c), activityID, inputs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, h.tripOf(c, itinerary.EntityActivity, activityID), "activity", activityID)
	c.JSON(http.StatusOK, newActivityPayload(activity.Activity, activity.Photos))
}

func (h *httpHandler) handleRefreshPhotos(c *gin.Context) {
	activityID := c.Param("activityID")
	activity, err := h.trips.RefreshPhotos(c.Request.Context(), currentUserID(c), activityID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, h.tripOf(c, itinerary.EntityActivity, activityID), "activity", activityID)
	c.JSON(http.StatusOK, newActivityPayload(activity.Activity, activity.Photos))
}
