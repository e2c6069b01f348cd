package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

type upsertMovementRequest struct {
	FromStopID      string     `json:"from_stop_id" binding:"required"`
	ToStopID        string     `json:"to_stop_id" binding:"required"`
	Type            string     `json:"type" binding:"required"`
	DurationMinutes *int       `json:"duration_minutes" binding:"omitempty,gte=0"`
	DepartureTime   *time.Time `json:"departure_time"`
	ArrivalTime     *time.Time `json:"arrival_time"`
	Carrier         string     `json:"carrier"`
	BookingRef      string     `json:"booking_ref"`
	Notes           string     `json:"notes"`
	Price           *float64   `json:"price" binding:"omitempty,gte=0"`
}

type updateMovementRequest struct {
	Type            *string    `json:"type"`
	DurationMinutes *int       `json:"duration_minutes" binding:"omitempty,gte=0"`
	DepartureTime   *time.Time `json:"departure_time"`
	ArrivalTime     *time.Time `json:"arrival_time"`
	Carrier         *string    `json:"carrier"`
	BookingRef      *string    `json:"booking_ref"`
	Notes           *string    `json:"notes"`
	Price           *float64   `json:"price" binding:"omitempty,gte=0"`
}

func (h *httpHandler) handleListMovements(c *gin.Context) {
	movements, err := h.trips.ListMovements(c.Request.Context(), currentUserID(c), c.Param("tripID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMovementPayloads(movements))
}

// handleUpsertMovement answers 201 for a new pair and 200 when an existing
// movement between the same stops was overwritten.
func (h *httpHandler) handleUpsertMovement(c *gin.Context) {
	var request upsertMovementRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	tripID := c.Param("tripID")
	movement, created, err := h.trips.UpsertMovement(c.Request.Context(), currentUserID(c), tripID, itinerary.MovementInput{
		FromStopID:      request.FromStopID,
		ToStopID:        request.ToStopID,
		Type:            request.Type,
		DurationMinutes: request.DurationMinutes,
		DepartureTime:   request.DepartureTime,
		ArrivalTime:     request.ArrivalTime,
		Carrier:         request.Carrier,
		BookingRef:      request.BookingRef,
		Notes:           request.Notes,
		Price:           request.Price,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, tripID, "movement", movement.ID)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, newMovementPayload(movement))
}

func (h *httpHandler) handleUpdateMovement(c *gin.Context) {
	var request updateMovementRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	movement, err := h.trips.UpdateMovement(c.Request.Context(), currentUserID(c), c.Param("movementID"), itinerary.MovementPatch{
		Type:            request.Type,
		DurationMinutes: request.DurationMinutes,
		DepartureTime:   request.DepartureTime,
		ArrivalTime:     request.ArrivalTime,
		Carrier:         request.Carrier,
		BookingRef:      request.BookingRef,
		Notes:           request.Notes,
		Price:           request.Price,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, movement.TripID, "movement", movement.ID)
	c.JSON(http.StatusOK, newMovementPayload(movement))
}

func (h *httpHandler) handleDeleteMovement(c *gin.Context) {
	movementID := c.Param("movementID")
	tripID := h.tripOf(c, itinerary.EntityMovement, movementID)
	if err := h.trips.DeleteMovement(c.Request.Context(), currentUserID(c), movementID); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, tripID, "movement", movementID)
	c.Status(http.StatusNoContent)
}
