package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	applydomain "github.com/smallbiznis/switchboard/internal/apply/domain"
	"github.com/smallbiznis/switchboard/pkg/db/pagination"
)

// Apply runs a full apply synchronously. Failures carry the terminal job in
// the error body so the caller sees the manifest and rollback outcome.
func (s *Server) Apply(c *gin.Context) {
	job, err := s.applySvc.Apply(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": job})
}

func (s *Server) ListApplyJobs(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.applySvc.List(c.Request.Context(), applydomain.ListJobsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Status: strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Jobs, "page_info": resp.PageInfo})
}

func (s *Server) GetApplyJob(c *gin.Context) {
	id, ok := pathID(c, "jobId", "job_id")
	if !ok {
		return
	}

	job, err := s.applySvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": job})
}
