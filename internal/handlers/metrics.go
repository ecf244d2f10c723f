package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/movinesta/swipe-ingest/internal/models"
)

const (
	defaultHealthHours = 72
	maxHealthHours     = 24 * 30
	defaultHealthTopN  = 12
	maxHealthTopN      = 50
)

// HealthReader reads the sampled ingest rollups.
type HealthReader interface {
	IngestHealth(ctx context.Context, since time.Time, topN int) ([]models.HourlyHealth, []models.IssueTotal, error)
}

// RegisterIngestHealthRoutes registers the admin read path for ingest rollups.
//
// GET /admin/swipe-ingest-health?hours=72&top_n=12
// - Requires the admin role
// - Returns hourly rows newest first and the top issue codes in the window
func RegisterIngestHealthRoutes(r gin.IRoutes, st HealthReader, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.GET("/admin/swipe-ingest-health", func(c *gin.Context) {
		hours, ok := intQuery(c, "hours", defaultHealthHours, 1, maxHealthHours)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "code": "BAD_INPUT", "message": "hours must be an integer in [1,720]"})
			return
		}
		topN, ok := intQuery(c, "top_n", defaultHealthTopN, 1, maxHealthTopN)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "code": "BAD_INPUT", "message": "top_n must be an integer in [1,50]"})
			return
		}

		since := now().UTC().Add(-time.Duration(hours) * time.Hour)

		hourly, issues, err := st.IngestHealth(c.Request.Context(), since, topN)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "code": "QUERY_FAILED"})
			return
		}
		if hourly == nil {
			hourly = []models.HourlyHealth{}
		}
		if issues == nil {
			issues = []models.IssueTotal{}
		}

		c.JSON(http.StatusOK, gin.H{
			"ok":     true,
			"since":  since.Format(time.RFC3339),
			"hours":  hours,
			"hourly": hourly,
			"issues": issues,
		})
	})
}

// intQuery parses an optional integer query parameter within [lo,hi].
func intQuery(c *gin.Context, name string, def, lo, hi int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}
