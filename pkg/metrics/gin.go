package metrics

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Instrument returns gin middleware that records HTTP metrics for every
// request using gin's matched route template (c.FullPath()) as the path
// label, so dynamic segments like :task_id never blow up cardinality.
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		IncInFlight()
		defer DecInFlight()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		ObserveHTTPRequest(strings.ToUpper(c.Request.Method), path, c.Writer, time.Since(start))
	}
}
