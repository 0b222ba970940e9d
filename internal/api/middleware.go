package api

import (
	"net/http"
	"strconv"
	"time"

	"shop-sync-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "shop-sync-service"

// route parameters copied onto the request span
var spanParams = map[string]string{
	"shopId":  "shop_id",
	"orderId": "order_id",
	"id":      "job_id",
}

// tracingMiddleware opens a server span per request and tags it with the
// shop, order and job the route addresses.
func tracingMiddleware(service string) []gin.HandlerFunc {
	base := otelgin.Middleware(service, otelgin.WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/health" && r.URL.Path != "/metrics"
	}))
	return []gin.HandlerFunc{base, tagSpan}
}

func tagSpan(c *gin.Context) {
	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		for param, key := range spanParams {
			if v := c.Param(param); v != "" {
				span.SetAttributes(attribute.String(key, v))
			}
		}
	}
	c.Next()
}

func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
