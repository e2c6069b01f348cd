package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

type createTripRequest struct {
	Name           string  `json:"name" binding:"required,max=200"`
	CountryCode    string  `json:"country_code" binding:"required,country_code"`
	StartDate      string  `json:"start_date" binding:"required,isodate"`
	Status         string  `json:"status"`
	Currency       string  `json:"currency" binding:"omitempty,currency"`
	Notes          string  `json:"notes"`
	OrganizationID *string `json:"organization_id"`
}

type updateTripRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=200"`
	CountryCode *string `json:"country_code" binding:"omitempty,country_code"`
	StartDate   *string `json:"start_date" binding:"omitempty,isodate"`
	Status      *string `json:"status"`
	Currency    *string `json:"currency" binding:"omitempty,currency"`
	Notes       *string `json:"notes"`
}

type generateRequest struct {
	Prompt string `json:"prompt" binding:"required,max=2000"`
}

func (h *httpHandler) handleListTrips(c *gin.Context) {
	trips, err := h.trips.ListTrips(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTripPayloads(trips))
}

func (h *httpHandler) handleCreateTrip(c *gin.Context) {
	var request createTripRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	startDate, _ := time.Parse(dateLayout, request.StartDate)
	trip, err := h.trips.CreateTrip(c.Request.Context(), currentUserID(c), itinerary.TripInput{
		Name:           request.Name,
		CountryCode:    request.CountryCode,
		StartDate:      startDate,
		Status:         request.Status,
		Currency:       request.Currency,
		Notes:          request.Notes,
		OrganizationID: request.OrganizationID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTripPayload(trip))
}

func (h *httpHandler) handleGetTrip(c *gin.Context) {
	trip, err := h.trips.GetTrip(c.Request.Context(), currentUserID(c), c.Param("tripID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTripPayload(trip))
}

func (h *httpHandler) handleUpdateTrip(c *gin.Context) {
	var request updateTripRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	startDate, err := parseDate(request.StartDate)
	if err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	tripID := c.Param("tripID")
	trip, err := h.trips.UpdateTrip(c.Request.Context(), currentUserID(c), tripID, itinerary.TripPatch{
		Name:        request.Name,
		CountryCode: request.CountryCode,
		StartDate:   startDate,
		Status:      request.Status,
		Currency:    request.Currency,
		Notes:       request.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, tripID, "trip", tripID)
	c.JSON(http.StatusOK, newTripPayload(trip))
}

func (h *httpHandler) handleDeleteTrip(c *gin.Context) {
	tripID := c.Param("tripID")
	if err := h.trips.DeleteTrip(c.Request.Context(), currentUserID(c), tripID); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, tripID, "trip", tripID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleGetItinerary(c *gin.Context) {
	graph, err := h.trips.GetItinerary(c.Request.Context(), currentUserID(c), c.Param("tripID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newItineraryPayload(graph))
}

func (h *httpHandler) handleGenerate(c *gin.Context) {
	var request generateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	tripID := c.Param("tripID")
	graph, err := h.trips.Generate(c.Request.Context(), currentUserID(c), tripID, request.Prompt)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, tripID, "itinerary", tripID)
	c.JSON(http.StatusOK, newItineraryPayload(graph))
}
