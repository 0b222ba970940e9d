package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shop-sync-service/internal/models"
)

// EnqueueWebhook stores a raw webhook event for the next drain pass
func (s *Store) EnqueueWebhook(ctx context.Context, payload string, verified bool) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		"INSERT INTO webhook_events (payload, verified) VALUES ($1, $2) RETURNING id",
		payload, verified)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue webhook: %w", err)
	}
	return id, nil
}

// ListQueuedWebhooks retrieves queued events oldest first
func (s *Store) ListQueuedWebhooks(ctx context.Context) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := s.db.SelectContext(ctx, &events, "SELECT * FROM webhook_events ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return events, nil
}

// DeleteWebhook removes a queued event
func (s *Store) DeleteWebhook(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM webhook_events WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete webhook %d: %w", id, err)
	}
	return nil
}

// CreateNotification stores a notification
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	var data *string
	if n.Data != nil {
		raw, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("failed to encode notification data: %w", err)
		}
		encoded := string(raw)
		data = &encoded
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, type, title, message, user_id, shop_id, order_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.Type, n.Title, n.Message, n.UserID, n.ShopID, n.OrderID, data, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// DeleteNotificationsBefore deletes notifications created before a cutoff
func (s *Store) DeleteNotificationsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE created_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return res.RowsAffected()
}
