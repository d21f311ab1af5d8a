package server

import (
	"strconv"
	"time"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records every request under its route template, so
// /tickets/1 and /tickets/2 share a series. Unmatched paths go under "unmatched".
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.RecordHTTPRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}
