package store

import (
	"context"
	"fmt"
)

// WebhookSubscription is a registered callback URL for one cell. Multiple
// subscriptions may target the same cell.
type WebhookSubscription struct {
	ID     string
	CellID string
	URL    string
}

// InsertSubscription registers a webhook for a cell.
func (q *Queries) InsertSubscription(ctx context.Context, sub WebhookSubscription) error {
	if _, err := q.db.ExecContext(ctx, `
		INSERT INTO cell_webhooks (id, cell_id, url)
		VALUES (?, ?, ?)
	`, sub.ID, sub.CellID, sub.URL); err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// SubscriptionsForCells returns every subscription targeting any of the
// given cells. Returns an empty slice (not nil) when none exist.
func (q *Queries) SubscriptionsForCells(ctx context.Context, cellIDs []string) ([]WebhookSubscription, error) {
	if len(cellIDs) == 0 {
		return []WebhookSubscription{}, nil
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, cell_id, url
		FROM cell_webhooks
		WHERE cell_id IN (`+placeholders(len(cellIDs))+`)
		ORDER BY cell_id ASC, id ASC
	`, stringArgs(cellIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []WebhookSubscription{}
	for rows.Next() {
		var sub WebhookSubscription
		if err := rows.Scan(&sub.ID, &sub.CellID, &sub.URL); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}
