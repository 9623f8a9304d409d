package httppresentation

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"paygate/internal/observability"
	"paygate/internal/observability/logctx"
)

const headerRequestID = "X-Request-ID"

// Observability combines, per request:
// - W3C trace context extraction and a server span
// - X-Request-ID generation + echo back
// - request-scoped logger injection (dynamic fields only)
// - HTTP metrics and one access log line, labeled by route template
func Observability(base observability.Logger, tel observability.Telemetry) echo.MiddlewareFunc {
	if base == nil {
		base = observability.NopLogger()
	}
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	prop := otel.GetTextMapPropagator()
	tracer := otel.Tracer("paygate.http")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			route := c.Path()

			ctx := prop.Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			ctx, span := tracer.Start(ctx,
				req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
					attribute.String("http.target", req.URL.Path),
					attribute.String("http.user_agent", req.UserAgent()),
				),
			)
			defer span.End()

			rid := req.Header.Get(headerRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(headerRequestID, rid)

			fields := []observability.Field{observability.F("request_id", rid)}
			if sc := span.SpanContext(); sc.IsValid() {
				fields = append(fields,
					observability.F("trace_id", sc.TraceID().String()),
					observability.F("span_id", sc.SpanID().String()),
				)
			}
			reqLogger := base.With(fields...)
			ctx = logctx.With(ctx, reqLogger)
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}
			status := c.Response().Status
			statusLabel := strconv.Itoa(status)

			tel.Counter("http_requests_total").Add(1,
				observability.L("method", req.Method),
				observability.L("route", route),
				observability.L("status", statusLabel),
			)
			tel.Histogram("http_request_duration_seconds").Observe(time.Since(start).Seconds(),
				observability.L("method", req.Method),
				observability.L("route", route),
				observability.L("status", statusLabel),
			)
			if status >= http.StatusInternalServerError {
				reqLogger.Warn("http_access",
					observability.F("method", req.Method),
					observability.F("route", route),
					observability.F("path", req.URL.Path),
					observability.F("status", status),
					observability.F("latency_ms", time.Since(start).Milliseconds()),
				)
			} else {
				reqLogger.Info("http_access",
					observability.F("method", req.Method),
					observability.F("route", route),
					observability.F("path", req.URL.Path),
					observability.F("status", status),
					observability.F("latency_ms", time.Since(start).Milliseconds()),
				)
			}
			return err
		}
	}
}
