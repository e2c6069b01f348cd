package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type createVersionRequest struct {
	Label string `json:"label" binding:"max=200"`
}

func (h *httpHandler) handleListVersions(c *gin.Context) {
	versions, err := h.trips.ListVersions(c.Request.Context(), currentUserID(c), c.Param("tripID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newVersionPayloads(versions))
}

func (h *httpHandler) handleCreateVersion(c *gin.Context) {
	var request createVersionRequest
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		h.respondInvalidRequest(c, err)
		return
	}
	tripID := c.Param("tripID")
	version, err := h.trips.CreateVersion(c.Request.Context(), currentUserID(c), tripID, request.Label)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, tripID, "version", version.ID)
	c.JSON(http.StatusCreated, newVersionPayload(version, false))
}

func (h *httpHandler) handleGetVersion(c *gin.Context) {
	version, err := h.trips.GetVersion(c.Request.Context(), currentUserID(c), c.Param("tripID"), c.Param("versionID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newVersionPayload(version, true))
}

func (h *httpHandler) handleDeleteVersion(c *gin.Context) {
	tripID, versionID := c.Param("tripID"), c.Param("versionID")
	if err := h.trips.DeleteVersion(c.Request.Context(), currentUserID(c), tripID, versionID); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, tripID, "version", versionID)
	c.Status(http.StatusNoContent)
}

// handleRestoreVersion replaces the itinerary with the snapshot and returns
// the rebuilt graph.
func (h *httpHandler) handleRestoreVersion(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUserID(c)
	tripID, versionID := c.Param("tripID"), c.Param("versionID")
	if _, err := h.trips.RestoreVersion(ctx, userID, tripID, versionID); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(c, tripID, "itinerary", tripID)
	graph, err := h.trips.GetItinerary(ctx, userID, tripID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newItineraryPayload(graph))
}
