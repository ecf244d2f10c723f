package fanout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/movinesta/swipe-ingest/internal/config"
	"github.com/movinesta/swipe-ingest/internal/models"
)

// outcomeLabels maps one row to the ranking labels it implies.
func outcomeLabels(r models.EventRow, s config.Settings) []string {
	var labels []string
	switch r.EventType {
	case models.EventLike, models.EventShare:
		labels = append(labels, models.LabelPositive)
	case models.EventDislike:
		labels = append(labels, models.LabelNotInterested)
	case models.EventSkip:
		labels = append(labels, models.LabelSkipped)
	case models.EventDetailOpen:
		labels = append(labels, models.LabelOpened)
	case models.EventWatchlist, models.EventWatchlistAdd:
		if r.InWatchlist != nil && *r.InWatchlist {
			labels = append(labels, models.LabelPositive)
		}
	case models.EventRating, models.EventRatingSet:
		if r.Rating0To10 != nil {
			switch {
			case *r.Rating0To10 >= s.StrongPositiveRating:
				labels = append(labels, models.LabelPositive)
			case *r.Rating0To10 <= s.StrongNegativeRating:
				labels = append(labels, models.LabelNotInterested)
			}
		}
	case models.EventDwell:
		if r.Synthetic {
			labels = append(labels, models.LabelPositive)
		}
	}
	if action, _ := r.Payload["action"].(string); isHideAction(action) {
		labels = append(labels, models.LabelHidden)
	}
	return labels
}

func isHideAction(action string) bool {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "hide", "hidden":
		return true
	}
	return false
}

// mergeLabels groups labels by served key, in first-seen order, and asks
// the sink to union each group into what is already stored.
func (p *Processor) mergeLabels(ctx context.Context, b *models.AcceptedBatch, s config.Settings) error {
	var keys []string
	byKey := make(map[string][]string)
	for _, r := range b.Rows {
		if r.ServedDedupeKey == nil {
			continue
		}
		labels := outcomeLabels(r, s)
		if len(labels) == 0 {
			continue
		}
		key := *r.ServedDedupeKey
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = appendUnique(byKey[key], labels...)
	}

	var errs []error
	for _, key := range keys {
		if err := p.deps.Labels.MergeLabels(ctx, b.UserID, key, byKey[key]); err != nil {
			errs = append(errs, fmt.Errorf("labels %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func appendUnique(set []string, labels ...string) []string {
	for _, l := range labels {
		found := false
		for _, have := range set {
			if have == l {
				found = true
				break
			}
		}
		if !found {
			set = append(set, l)
		}
	}
	return set
}
