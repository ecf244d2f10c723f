package fanout

import (
	"context"
	"maps"
	"time"

	"github.com/movinesta/swipe-ingest/internal/config"
	"github.com/movinesta/swipe-ingest/internal/models"
)

// sampleRollup records the request into its hourly bucket with probability
// RollupSampleRate. The rate is stored with the counts so readers can
// scale them back up.
func (p *Processor) sampleRollup(ctx context.Context, b *models.AcceptedBatch, s config.Settings) error {
	if s.RollupSampleRate <= 0 || p.rand() >= s.RollupSampleRate {
		return nil
	}
	t := b.Tally
	return p.deps.Rollups.AddRollup(ctx, models.IngestRollup{
		BucketStart: b.ReceivedAt.UTC().Truncate(time.Hour),
		Requests:    1,
		Accepted:    t.Accepted,
		Rejected:    t.Rejected,
		Retry:       t.Retry,
		Likes:       t.Likes,
		Dislikes:    t.Dislikes,
		SampleRate:  s.RollupSampleRate,
		Issues:      maps.Clone(t.Issues),
	})
}
