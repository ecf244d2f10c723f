package store

import (
	"context"
)

// MergeLabels unions labels into the stored set for one serving. The union
// happens inside the upsert, so concurrent merges never lose a label.
func (p *PostgresStore) MergeLabels(ctx context.Context, userID, servedKey string, labels []string) (err error) {
	if len(labels) == 0 {
		return nil
	}
	ctx, span := startSpan(ctx, "store.MergeLabels")
	defer func() { endSpan(span, err) }()

	_, err = p.pool.Exec(ctx, `
		INSERT INTO rec_outcome_labels (user_id, served_dedupe_key, labels, updated_at)
		VALUES ($1, $2, ARRAY(SELECT DISTINCT unnest($3::text[]) ORDER BY 1), now())
		ON CONFLICT (user_id, served_dedupe_key) DO UPDATE
		SET labels = ARRAY(
		        SELECT DISTINCT unnest(rec_outcome_labels.labels || EXCLUDED.labels) ORDER BY 1
		    ),
		    updated_at = now()
	`, userID, servedKey, labels)
	return err
}
