package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/switchboard/internal/auditcontext"
	obscontext "github.com/smallbiznis/switchboard/internal/observability/context"
)

const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorType = "X-Actor-Type"

	defaultActorType = "user"
)

// ActorContext attributes the request to the caller named in X-Actor-Id.
// Authentication happens in front of this service; requests without the
// header are recorded as the system actor.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if actorID == "" {
			c.Next()
			return
		}
		actorType := strings.TrimSpace(c.GetHeader(HeaderActorType))
		if actorType == "" {
			actorType = defaultActorType
		}

		ctx := c.Request.Context()
		ctx = auditcontext.WithActor(ctx, actorType, actorID)
		ctx = obscontext.WithActor(ctx, actorType, actorID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// TenantContext tags logs with the tenant named in the route.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tenantID := strings.TrimSpace(c.Param("tenantId")); tenantID != "" {
			c.Request = c.Request.WithContext(obscontext.WithTenantID(c.Request.Context(), tenantID))
		}
		c.Next()
	}
}
