package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/plantrip/internal/sharing"
)

type feedbackRequest struct {
	ActivityID      string `json:"activity_id" binding:"required"`
	ViewerSessionID string `json:"viewer_session_id" binding:"required,max=64"`
	ViewerName      string `json:"viewer_name" binding:"max=100"`
	Sentiment       string `json:"sentiment" binding:"required,oneof=like dislike"`
	Message         string `json:"message" binding:"max=2000"`
}

func (h *httpHandler) handleCreateShare(c *gin.Context) {
	token, err := h.sharing.CreateShare(c.Request.Context(), currentUserID(c), c.Param("tripID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newShareTokenPayload(token))
}

func (h *httpHandler) handleGetShare(c *gin.Context) {
	token, err := h.sharing.GetShare(c.Request.Context(), currentUserID(c), c.Param("tripID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newShareTokenPayload(token))
}

func (h *httpHandler) handleRevokeShare(c *gin.Context) {
	if err := h.sharing.RevokeShare(c.Request.Context(), currentUserID(c), c.Param("tripID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSharedView(c *gin.Context) {
	view, err := h.sharing.SharedView(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSharedTripPayload(view))
}

func (h *httpHandler) handleCreateFeedback(c *gin.Context) {
	var request feedbackRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	entry, err := h.sharing.CreateFeedback(c.Request.Context(), c.Param("token"), sharing.FeedbackInput{
		ActivityID:      request.ActivityID,
		ViewerSessionID: request.ViewerSessionID,
		ViewerName:      request.ViewerName,
		Sentiment:       request.Sentiment,
		Message:         request.Message,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newFeedbackPayload(entry))
}

func (h *httpHandler) handleFeedbackReport(c *gin.Context) {
	report, err := h.sharing.Report(c.Request.Context(), currentUserID(c), c.Param("tripID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFeedbackReportPayload(report))
}
