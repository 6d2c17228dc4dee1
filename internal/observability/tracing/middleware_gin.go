package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/switchboard/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Route parameters recorded on request spans. Values are snowflake ids, never
// secrets.
var spanParams = map[string]string{
	"userId":      "switchboard.user_id",
	"numberId":    "switchboard.phone_number_id",
	"extensionId": "switchboard.extension_id",
	"jobId":       "switchboard.apply_job_id",
}

// GinMiddleware opens a server span per request. Actor and tenant are
// attached after the handler chain runs, since later middleware resolves
// them.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("switchboard/http")
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		}
		attrs = append(attrs, requestAttributes(c)...)
		span.SetAttributes(SafeAttributes(attrs...)...)

		switch {
		case status >= http.StatusInternalServerError:
			if last := c.Errors.Last(); last != nil {
				if safeErr := SafeError(last.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		case status == http.StatusConflict || status == http.StatusServiceUnavailable:
			// Retryable rejections (apply in progress, allocation contention).
			if retry := c.Writer.Header().Get("Retry-After"); retry != "" {
				span.SetAttributes(attribute.String("http.retry_after", retry))
			}
		}
	}
}

// requestAttributes reads the actor and tenant resolved by the handler chain
// plus the resource ids named in the route.
func requestAttributes(c *gin.Context) []attribute.KeyValue {
	ctx := c.Request.Context()
	var attrs []attribute.KeyValue

	if actorType, actorID := obscontext.ActorFromContext(ctx); actorID != "" {
		attrs = append(attrs,
			attribute.String("switchboard.actor_type", actorType),
			attribute.String("switchboard.actor_id", actorID),
		)
	}
	if tenantID := obscontext.TenantIDFromContext(ctx); tenantID != "" {
		attrs = append(attrs, attribute.String("switchboard.tenant_id", tenantID))
	} else if tenantID := strings.TrimSpace(c.Query("tenant_id")); tenantID != "" {
		attrs = append(attrs, attribute.String("switchboard.tenant_id", tenantID))
	}

	for _, p := range c.Params {
		if key, ok := spanParams[p.Key]; ok && p.Value != "" {
			attrs = append(attrs, attribute.String(key, p.Value))
		}
	}
	return attrs
}
