package fanout

import (
	"context"
	"errors"
	"fmt"

	"github.com/movinesta/swipe-ingest/internal/config"
	"github.com/movinesta/swipe-ingest/internal/models"
)

func tasteRelevant(t models.EventType) bool {
	switch t {
	case models.EventLike, models.EventDislike, models.EventSkip, models.EventDwell, models.EventShare,
		models.EventWatchlist, models.EventWatchlistAdd, models.EventWatchlistRemove,
		models.EventRating, models.EventRatingSet:
		return true
	}
	return false
}

// strongSignal marks interactions that should move the taste vector more
// than a passive one.
func strongSignal(r models.EventRow, s config.Settings) bool {
	switch r.EventType {
	case models.EventLike, models.EventDislike, models.EventShare:
		return true
	case models.EventWatchlist, models.EventWatchlistAdd:
		return r.InWatchlist != nil && *r.InWatchlist
	case models.EventRating, models.EventRatingSet:
		return r.Rating0To10 != nil &&
			(*r.Rating0To10 >= s.StrongPositiveRating || *r.Rating0To10 <= s.StrongNegativeRating)
	case models.EventDwell:
		return r.Synthetic || (r.DwellMs != nil && *r.DwellMs >= s.StrongPositiveDwellMs)
	}
	return false
}

// strongPositive is the subset of strong signals that can trigger a
// centroid refresh.
func strongPositive(r models.EventRow, s config.Settings) bool {
	switch r.EventType {
	case models.EventLike:
		return true
	case models.EventWatchlist, models.EventWatchlistAdd:
		return r.InWatchlist != nil && *r.InWatchlist
	case models.EventRating, models.EventRatingSet:
		return r.Rating0To10 != nil && *r.Rating0To10 >= s.StrongPositiveRating
	case models.EventDwell:
		return r.Synthetic
	}
	return false
}

func (p *Processor) updateTaste(ctx context.Context, b *models.AcceptedBatch, s config.Settings) error {
	var errs []error
	for _, r := range b.Rows {
		if !tasteRelevant(r.EventType) {
			continue
		}
		err := p.deps.Taste.UpdateTaste(ctx, TasteUpdate{
			UserID:      b.UserID,
			SessionID:   r.SessionID,
			MediaItemID: r.MediaItemID,
			EventType:   r.EventType,
			DwellMs:     r.DwellMs,
			Rating:      r.Rating0To10,
			InWatchlist: r.InWatchlist,
			Strong:      strongSignal(r, s),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("taste %s: %w", r.ClientEventID, err))
		}
	}
	return errors.Join(errs...)
}

// maybeRefreshCentroids refreshes at most once per batch, and only with
// probability CentroidRefreshRate.
func (p *Processor) maybeRefreshCentroids(ctx context.Context, b *models.AcceptedBatch, s config.Settings) error {
	found := false
	for _, r := range b.Rows {
		if strongPositive(r, s) {
			found = true
			break
		}
	}
	if !found || p.rand() >= s.CentroidRefreshRate {
		return nil
	}
	return p.deps.Taste.RefreshCentroids(ctx, b.UserID, s.CentroidK, s.CentroidMaxItems)
}
