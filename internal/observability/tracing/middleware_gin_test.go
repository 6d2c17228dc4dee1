package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/switchboard/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(t.Context())
	})
	return recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]string {
	out := make(map[attribute.Key]string)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestGinMiddlewareRecordsActorTenantAndRouteIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := recordSpans(t)

	router := gin.New()
	router.Use(GinMiddleware())
	router.Use(func(c *gin.Context) {
		ctx := obscontext.WithActor(c.Request.Context(), "user", "ops-1")
		ctx = obscontext.WithTenantID(ctx, c.Param("tenantId"))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	router.GET("/tenants/:tenantId/users/:userId", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tenants/11/users/22", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET /tenants/:tenantId/users/:userId", spans[0].Name())
	attrs := spanAttrs(spans[0])
	assert.Equal(t, "ops-1", attrs["switchboard.actor_id"])
	assert.Equal(t, "user", attrs["switchboard.actor_type"])
	assert.Equal(t, "11", attrs["switchboard.tenant_id"])
	assert.Equal(t, "22", attrs["switchboard.user_id"])
	assert.Equal(t, "200", attrs["http.status_code"])
}

func TestGinMiddlewareMarksRetryableRejection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := recordSpans(t)

	router := gin.New()
	router.Use(GinMiddleware())
	router.POST("/apply", func(c *gin.Context) {
		c.Header("Retry-After", "5")
		c.Status(http.StatusConflict)
	})
	router.GET("/numbers", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/apply", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/numbers?tenant_id=42", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "5", spanAttrs(spans[0])["http.retry_after"])
	_, hasActor := spanAttrs(spans[0])["switchboard.actor_id"]
	assert.False(t, hasActor)
	assert.Equal(t, "42", spanAttrs(spans[1])["switchboard.tenant_id"])
}
