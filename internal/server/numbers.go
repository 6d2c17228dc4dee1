package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
)

type importPhoneNumbersRequest struct {
	Numbers  []string       `json:"numbers"`
	Provider string         `json:"provider"`
	Metadata map[string]any `json:"metadata"`
}

type allocatePhoneNumberRequest struct {
	TenantID      snowflake.ID `json:"tenant_id"`
	PhoneNumberID snowflake.ID `json:"phone_number_id"`
}

type deallocatePhoneNumberRequest struct {
	Cascade bool `json:"cascade"`
}

func (s *Server) ImportPhoneNumbers(c *gin.Context) {
	var req importPhoneNumbersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.resourceSvc.ImportPhoneNumbers(c.Request.Context(), resourcedomain.ImportPhoneNumbersRequest{
		Numbers:  req.Numbers,
		Provider: strings.TrimSpace(req.Provider),
		Metadata: req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPhoneNumbers(c *gin.Context) {
	var query struct {
		TenantID string `form:"tenant_id"`
		Status   string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, err := parseOptionalSnowflakeID(query.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
		return
	}
	status := resourcedomain.PhoneNumberStatus(strings.ToLower(strings.TrimSpace(query.Status)))
	switch status {
	case "", resourcedomain.PhoneNumberUnassigned, resourcedomain.PhoneNumberAllocated, resourcedomain.PhoneNumberAssigned:
	default:
		AbortWithError(c, resourcedomain.ErrInvalidStatus)
		return
	}

	resp, err := s.resourceSvc.ListPhoneNumbers(c.Request.Context(), resourcedomain.PhoneNumberFilter{
		TenantID: tenantID,
		Status:   status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPhoneNumber(c *gin.Context) {
	id, ok := pathID(c, "numberId", "phone_number_id")
	if !ok {
		return
	}

	resp, err := s.resourceSvc.GetPhoneNumber(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AllocatePhoneNumber(c *gin.Context) {
	var req allocatePhoneNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.TenantID <= 0 {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "tenant_id is required"))
		return
	}

	resp, err := s.resourceSvc.AllocatePhoneNumber(c.Request.Context(), resourcedomain.AllocatePhoneNumberRequest{
		TenantID:      req.TenantID,
		PhoneNumberID: req.PhoneNumberID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeallocatePhoneNumber(c *gin.Context) {
	id, ok := pathID(c, "numberId", "phone_number_id")
	if !ok {
		return
	}

	var req deallocatePhoneNumberRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.resourceSvc.DeallocatePhoneNumber(c.Request.Context(), resourcedomain.DeallocatePhoneNumberRequest{
		PhoneNumberID: id,
		Cascade:       req.Cascade,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeletePhoneNumber(c *gin.Context) {
	id, ok := pathID(c, "numberId", "phone_number_id")
	if !ok {
		return
	}

	if err := s.resourceSvc.DeletePhoneNumber(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Bind routes the number to the destination in the body. A number that is
// already bound is rejected with 409 rather than rebound.
func (s *Server) Bind(c *gin.Context) {
	id, ok := pathID(c, "numberId", "phone_number_id")
	if !ok {
		return
	}

	var dest resourcedomain.Destination
	if err := c.ShouldBindJSON(&dest); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	dest.Kind = resourcedomain.DestinationKind(strings.ToLower(strings.TrimSpace(string(dest.Kind))))

	resp, err := s.resourceSvc.Bind(c.Request.Context(), resourcedomain.BindRequest{
		ResourceID:  id,
		Destination: dest,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) Unbind(c *gin.Context) {
	id, ok := pathID(c, "numberId", "phone_number_id")
	if !ok {
		return
	}

	if err := s.resourceSvc.Unbind(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetBinding(c *gin.Context) {
	id, ok := pathID(c, "numberId", "phone_number_id")
	if !ok {
		return
	}

	resp, err := s.resourceSvc.GetBinding(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListBindings(c *gin.Context) {
	tenantID, err := parseOptionalSnowflakeID(c.Query("tenant_id"))
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
		return
	}

	resp, err := s.resourceSvc.ListBindings(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
