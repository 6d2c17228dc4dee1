package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
)

func (s *Server) ListExtensions(c *gin.Context) {
	tenantID, ok := pathID(c, "tenantId", "tenant_id")
	if !ok {
		return
	}

	resp, err := s.resourceSvc.ListExtensions(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ReserveExtension allocates the tenant's lowest free extension without an
// owner.
func (s *Server) ReserveExtension(c *gin.Context) {
	tenantID, ok := pathID(c, "tenantId", "tenant_id")
	if !ok {
		return
	}

	resp, err := s.resourceSvc.AllocateExtension(c.Request.Context(), resourcedomain.AllocateExtensionRequest{
		TenantID: tenantID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) FreeExtension(c *gin.Context) {
	id, ok := pathID(c, "extensionId", "extension_id")
	if !ok {
		return
	}

	if err := s.resourceSvc.FreeExtension(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
