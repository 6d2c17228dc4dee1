package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
)

type createTenantRequest struct {
	Name               string `json:"name"`
	Slug               string `json:"slug"`
	ExtMin             *int   `json:"ext_min"`
	ExtMax             *int   `json:"ext_max"`
	AllowLongDistance  *bool  `json:"allow_long_distance"`
	AllowInternational bool   `json:"allow_international"`
}

type updateRangeRequest struct {
	ExtMin *int `json:"ext_min"`
	ExtMax *int `json:"ext_max"`
}

type updatePolicyRequest struct {
	AllowLongDistance  bool `json:"allow_long_distance"`
	AllowInternational bool `json:"allow_international"`
}

func (s *Server) CreateTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.Create(c.Request.Context(), tenantdomain.CreateTenantRequest{
		Name:               strings.TrimSpace(req.Name),
		Slug:               strings.TrimSpace(req.Slug),
		ExtMin:             req.ExtMin,
		ExtMax:             req.ExtMax,
		AllowLongDistance:  req.AllowLongDistance,
		AllowInternational: req.AllowInternational,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListTenants(c *gin.Context) {
	resp, err := s.tenantSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTenant(c *gin.Context) {
	id, ok := pathID(c, "tenantId", "tenant_id")
	if !ok {
		return
	}

	resp, err := s.tenantSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateTenantRange(c *gin.Context) {
	id, ok := pathID(c, "tenantId", "tenant_id")
	if !ok {
		return
	}

	var req updateRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.ExtMin == nil || req.ExtMax == nil {
		AbortWithError(c, newValidationError("range", "invalid_extension_range", "ext_min and ext_max are required"))
		return
	}

	resp, err := s.tenantSvc.UpdateRange(c.Request.Context(), tenantdomain.UpdateRangeRequest{
		ID:     id,
		ExtMin: *req.ExtMin,
		ExtMax: *req.ExtMax,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateTenantPolicy(c *gin.Context) {
	id, ok := pathID(c, "tenantId", "tenant_id")
	if !ok {
		return
	}

	var req updatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.UpdatePolicy(c.Request.Context(), tenantdomain.UpdatePolicyRequest{
		ID:                 id,
		AllowLongDistance:  req.AllowLongDistance,
		AllowInternational: req.AllowInternational,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteTenant(c *gin.Context) {
	id, ok := pathID(c, "tenantId", "tenant_id")
	if !ok {
		return
	}

	if err := s.tenantSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
