package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createOrganizationRequest struct {
	Name string `json:"name" binding:"required,max=200"`
}

type addMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"omitempty,oneof=admin designer"`
}

type changeRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=admin designer"`
}

func (h *httpHandler) handleCreateOrganization(c *gin.Context) {
	var request createOrganizationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	organization, member, err := h.organizations.CreateOrganization(c.Request.Context(), currentUserID(c), request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"organization": newOrganizationPayload(organization),
		"membership":   newMemberPayload(member),
	})
}

func (h *httpHandler) handleAddMember(c *gin.Context) {
	var request addMemberRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	member, err := h.organizations.AddMember(c.Request.Context(), currentUserID(c), c.Param("orgID"), request.UserID, request.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newMemberPayload(member))
}

func (h *httpHandler) handleChangeRole(c *gin.Context) {
	var request changeRoleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	member, err := h.organizations.ChangeRole(c.Request.Context(), currentUserID(c), c.Param("orgID"), c.Param("userID"), request.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMemberPayload(member))
}

func (h *httpHandler) handleRemoveMember(c *gin.Context) {
	if err := h.organizations.RemoveMember(c.Request.Context(), currentUserID(c), c.Param("orgID"), c.Param("userID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
