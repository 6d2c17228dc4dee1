package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/switchboard/internal/user/domain"
)

type createUserRequest struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	VoicemailEnabled *bool  `json:"voicemail_enabled"`
	DNDEnabled       bool   `json:"dnd_enabled"`
	ForwardNumber    string `json:"forward_number"`
}

type updateUserRequest struct {
	Name             *string `json:"name"`
	Active           *bool   `json:"active"`
	VoicemailEnabled *bool   `json:"voicemail_enabled"`
	DNDEnabled       *bool   `json:"dnd_enabled"`
	ForwardNumber    *string `json:"forward_number"`
}

func (s *Server) CreateUser(c *gin.Context) {
	tenantID, ok := pathID(c, "tenantId", "tenant_id")
	if !ok {
		return
	}

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.userSvc.Create(c.Request.Context(), userdomain.CreateUserRequest{
		TenantID:         tenantID,
		Name:             strings.TrimSpace(req.Name),
		Email:            strings.TrimSpace(req.Email),
		VoicemailEnabled: req.VoicemailEnabled,
		DNDEnabled:       req.DNDEnabled,
		ForwardNumber:    strings.TrimSpace(req.ForwardNumber),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListUsers(c *gin.Context) {
	tenantID, ok := pathID(c, "tenantId", "tenant_id")
	if !ok {
		return
	}

	resp, err := s.userSvc.List(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetUser(c *gin.Context) {
	id, ok := pathID(c, "userId", "user_id")
	if !ok {
		return
	}

	resp, err := s.userSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateUser(c *gin.Context) {
	id, ok := pathID(c, "userId", "user_id")
	if !ok {
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.userSvc.Update(c.Request.Context(), userdomain.UpdateUserRequest{
		ID:               id,
		Name:             req.Name,
		Active:           req.Active,
		VoicemailEnabled: req.VoicemailEnabled,
		DNDEnabled:       req.DNDEnabled,
		ForwardNumber:    req.ForwardNumber,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteUser(c *gin.Context) {
	id, ok := pathID(c, "userId", "user_id")
	if !ok {
		return
	}
	cascade, err := parseOptionalBool(c.Query("cascade"))
	if err != nil {
		AbortWithError(c, newValidationError("cascade", "invalid_cascade", "invalid cascade"))
		return
	}

	if err := s.userSvc.Delete(c.Request.Context(), id, cascade != nil && *cascade); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
