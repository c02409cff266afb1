package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RestrictHours rejects requests outside [open, close) local hours.
func RestrictHours(openHour, closeHour int, loc *time.Location, now func() time.Time) gin.HandlerFunc {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	message := fmt.Sprintf("Chat access is restricted during these hours. Available from %s to %s.",
		clockHour(openHour), clockHour(closeHour))

	return func(c *gin.Context) {
		current := now().In(loc)
		if hour := current.Hour(); hour < openHour || hour >= closeHour {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":        message,
				"code":         "restricted_hours",
				"status":       "forbidden",
				"current_time": current.Format("15:04:05"),
			})
			return
		}
		c.Next()
	}
}

func clockHour(h int) string {
	return time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC).Format("3 PM")
}
