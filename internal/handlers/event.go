package handlers

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/movinesta/swipe-ingest/internal/auth"
	"github.com/movinesta/swipe-ingest/internal/ingest"
	"github.com/movinesta/swipe-ingest/internal/logger"
	"github.com/movinesta/swipe-ingest/internal/models"
)

// Ingester runs the synchronous ingest pipeline for one request body.
type Ingester interface {
	Ingest(ctx context.Context, userID string, body []byte) ingest.Result
}

// Enqueuer schedules post-response work without blocking.
type Enqueuer interface {
	Enqueue(b *models.AcceptedBatch) bool
}

// RegisterSwipeRoutes registers the ingestion-path endpoint.
//
// POST /media-swipe-event
// - Requires an authenticated user
// - Returns 200 with a per-event verdict for every parseable body
// - Background fan-out is queued only after the response is written
func RegisterSwipeRoutes(r gin.IRoutes, ing Ingester, q Enqueuer, maxBodyBytes int64, log *logger.Logger) {
	r.POST("/media-swipe-event", func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "code": "UNAUTHORIZED"})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "code": "PAYLOAD_TOO_LARGE", "limit": tooLarge.Limit})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "code": "BAD_REQUEST"})
			return
		}

		res := ing.Ingest(c.Request.Context(), userID, body)
		if res.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		}
		c.JSON(http.StatusOK, res.Response)

		if q != nil && res.Batch != nil && !q.Enqueue(res.Batch) {
			log.Debug("fanout batch not queued", "request_id", res.Batch.RequestID)
		}
	})
}
