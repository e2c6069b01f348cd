package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

type createStopRequest struct {
	Name          string   `json:"name" binding:"required,max=200"`
	Lng           *float64 `json:"lng" binding:"required,gte=-180,lte=180"`
	Lat           *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Notes         string   `json:"notes"`
	Nights        *int     `json:"nights" binding:"omitempty,gte=1"`
	PricePerNight *float64 `json:"price_per_night" binding:"omitempty,gte=0"`
}

type updateStopRequest struct {
	Name          *string  `json:"name" binding:"omitempty,max=200"`
	Lng           *float64 `json:"lng" binding:"omitempty,gte=-180,lte=180"`
	Lat           *float64 `json:"lat" binding:"omitempty,gte=-90,lte=90"`
	Notes         *string  `json:"notes"`
	Nights        *int     `json:"nights" binding:"omitempty,gte=1"`
	PricePerNight *float64 `json:"price_per_night" binding:"omitempty,gte=0"`
}

type reorderRequest struct {
	FromIndex *int `json:"from_index" binding:"required"`
	ToIndex   *int `json:"to_index" binding:"required"`
}

func (h *httpHandler) handleListStops(c *gin.Context) {
	stops, err := h.trips.ListStops(c.Request.Context(), currentUserID(c), c.Param("tripID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStopPayloads(stops))
}

func (h *httpHandler) handleCreateStop(c *gin.Context) {
	var request createStopRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	nights := 1
	if request.Nights != nil {
		nights = *request.Nights
	}
	tripID := c.Param("tripID")
	stop, err := h.trips.CreateStop(c.Request.Context(), currentUserID(c), tripID, itinerary.StopInput{
		Name:          request.Name,
		Lng:           *request.Lng,
		Lat:           *request.Lat,
		Nights:        nights,
		PricePerNight: request.PricePerNight,
		Notes:         request.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, tripID, "stop", stop.ID)
	c.JSON(http.StatusCreated, newStopPayload(stop))
}

func (h *httpHandler) handleUpdateStop(c *gin.Context) {
	var request updateStopRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	stop, err := h.trips.UpdateStop(c.Request.Context(), currentUserID(c), c.Param("stopID"), itinerary.StopPatch{
		Name:          request.Name,
		Lng:           request.Lng,
		Lat:           request.Lat,
		Nights:        request.Nights,
		PricePerNight: request.PricePerNight,
		Notes:         request.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, stop.TripID, "stop", stop.ID)
	c.JSON(http.StatusOK, newStopPayload(stop))
}

func (h *httpHandler) handleDeleteStop(c *gin.Context) {
	stopID := c.Param("stopID")
	tripID := h.tripOf(c, itinerary.EntityStop, stopID)
	if err := h.trips.DeleteStop(c.Request.Context(), currentUserID(c), stopID); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, tripID, "stop", stopID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleReorderStops(c *gin.Context) {
	var request reorderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	tripID := c.Param("tripID")
	stops, err := h.trips.ReorderStops(c.Request.Context(), currentUserID(c), tripID, *request.FromIndex, *request.ToIndex)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, tripID, "stop", stopIDs(stops)...)
	c.JSON(http.StatusOK, newStopPayloads(stops))
}

func stopIDs(stops []itinerary.Stop) []string {
	ids := make([]string, 0, len(stops))
	for _, stop := range stops {
		ids = append(ids, stop.ID)
	}
	return ids
}
