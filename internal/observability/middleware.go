package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Transfer headers set by device read/write routes. The request logger
// copies them into the access line.
const (
	HeaderTransferCount    = "X-Memdev-Count"
	HeaderTransferPosition = "X-Memdev-Position"
)

// unmatchedRoute labels requests that hit no route, so scanners cannot grow
// the path label set.
const unmatchedRoute = "unmatched"

// DeviceRequestLogger writes one access line per request. Requests on device
// or session routes carry the device name, the session id, and, for
// transfers, the byte count and resulting cursor.
func DeviceRequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		if device := c.Param("device"); device != "" {
			event = event.Str("device", device)
		}
		if session := c.Param("session"); session != "" {
			event = event.Str("session", session)
		}
		header := c.Writer.Header()
		if n, err := strconv.Atoi(header.Get(HeaderTransferCount)); err == nil {
			event = event.Int("transferred", n)
		}
		if pos, err := strconv.ParseInt(header.Get(HeaderTransferPosition), 10, 64); err == nil {
			event = event.Int64("position", pos)
		}

		event.
			Str("method", c.Request.Method).
			Str("route", routeLabel(c)).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("device_request")
	}
}

// DeviceRequestMetrics records request counts and latency under daemon, keyed
// by route pattern rather than raw path, so per-device and per-session URLs
// share one series.
func DeviceRequestMetrics(daemon string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(daemon, c.Request.Method, routeLabel(c), c.Writer.Status(), time.Since(start))
	}
}

func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}
