package fanout

import (
	"context"
	"errors"
	"fmt"

	"github.com/movinesta/swipe-ingest/internal/models"
)

// syncDiary applies diary ops in submission order. Categories are looked up
// once per batch; a failed lookup leaves them empty rather than skipping
// the writes.
func (p *Processor) syncDiary(ctx context.Context, b *models.AcceptedBatch) error {
	ids := make([]string, 0, len(b.DiaryOps))
	seen := make(map[string]struct{}, len(b.DiaryOps))
	for _, op := range b.DiaryOps {
		if _, ok := seen[op.MediaItemID]; ok {
			continue
		}
		seen[op.MediaItemID] = struct{}{}
		ids = append(ids, op.MediaItemID)
	}

	var errs []error
	categories, err := p.deps.Diary.MediaCategories(ctx, ids)
	if err != nil {
		errs = append(errs, fmt.Errorf("media categories: %w", err))
		categories = nil
	}

	at := b.ReceivedAt
	for _, op := range b.DiaryOps {
		category := categories[op.MediaItemID]
		var err error
		switch op.Kind {
		case models.DiaryOpStatus:
			err = p.deps.Diary.UpsertDiaryStatus(ctx, b.UserID, op.MediaItemID, op.Status, category, at)
		case models.DiaryOpWatchlist:
			err = p.deps.Diary.SetWatchlist(ctx, b.UserID, op.MediaItemID, op.InWatchlist, category, at)
		case models.DiaryOpRating:
			err = p.deps.Diary.UpsertRating(ctx, b.UserID, op.MediaItemID, op.Rating, category, at)
		default:
			err = fmt.Errorf("unknown diary op %q", op.Kind)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", op.Kind, op.ClientEventID, err))
		}
	}
	return errors.Join(errs...)
}
