package store

import (
	"context"
)

// LoadSettings reads raw JSON values from the app_settings registry.
func (p *PostgresStore) LoadSettings(ctx context.Context, keys []string) (_ map[string][]byte, err error) {
	ctx, span := startSpan(ctx, "store.LoadSettings")
	defer func() { endSpan(span, err) }()

	rows, err := p.pool.Query(ctx, `
		SELECT key, value
		FROM app_settings
		WHERE key = ANY($1)
	`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]byte, len(keys))
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}
