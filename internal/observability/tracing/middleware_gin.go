package tracing

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/botquota/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens one server span per ops API request, continuing any
// trace the caller propagated.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(instrumentationName + "/http")
	propagator := otel.GetTextMapPropagator()

	return func(c *gin.Context) {
		parent := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(parent, c.Request.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("request_id", obscontext.RequestIDFromContext(parent)),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		if route := c.FullPath(); route != "" {
			span.SetName(fmt.Sprintf("%s %s", c.Request.Method, route))
			span.SetAttributes(attribute.String("http.route", route))
		}
		if id, err := strconv.ParseInt(c.Param("id"), 10, 64); err == nil {
			span.SetAttributes(AccountID(id))
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))

		if status < http.StatusInternalServerError {
			return
		}
		if last := c.Errors.Last(); last != nil {
			span.RecordError(last.Err)
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
