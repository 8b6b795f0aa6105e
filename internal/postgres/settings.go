package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// GetSetting implements settings.Querier.
func (q *Queries) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := q.db.QueryRow(ctx,
		`SELECT value FROM chatbot_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// UpsertSetting implements settings.Querier.
func (q *Queries) UpsertSetting(ctx context.Context, key, value string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO chatbot_settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value)
	return err
}
