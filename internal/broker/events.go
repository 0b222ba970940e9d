package broker

import (
	"context"
	"fmt"
	"time"

	"shop-sync-service/internal/models"

	"github.com/google/uuid"
)

// NotificationPublisher writes notifications to the notifications topic
type NotificationPublisher struct {
	producer *Producer
}

// NewNotificationPublisher creates a new notification publisher
func NewNotificationPublisher(producer *Producer) *NotificationPublisher {
	return &NotificationPublisher{producer: producer}
}

// PublishNotification publishes a NotificationCreated event keyed by shop
func (np *NotificationPublisher) PublishNotification(ctx context.Context, n *models.Notification) error {
	event := &models.NotificationCreatedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeNotificationCreated),
		Notification: n,
	}
	return np.producer.PublishEvent(ctx, notificationKey(n), event)
}

func notificationKey(n *models.Notification) string {
	if n.ShopID != nil && *n.ShopID != "" {
		return fmt.Sprintf("shop-%s", *n.ShopID)
	}
	return fmt.Sprintf("user-%s", n.UserID)
}

// RefreshRequestPublisher asks the finance flow to refresh unsettled transactions
type RefreshRequestPublisher struct {
	producer *Producer
}

// NewRefreshRequestPublisher creates a new refresh request publisher
func NewRefreshRequestPublisher(producer *Producer) *RefreshRequestPublisher {
	return &RefreshRequestPublisher{producer: producer}
}

// RequestTransactionRefresh publishes a TransactionRefreshRequested event
func (rp *RefreshRequestPublisher) RequestTransactionRefresh(ctx context.Context, shop *models.ShopCredential, orderID string) error {
	event := &models.TransactionRefreshRequestedEvent{
		BaseEvent: newBaseEvent(models.EventTypeTransactionRefreshRequested),
		ShopID:    shop.ShopID,
		UserID:    shop.UserID,
		OrderID:   orderID,
	}
	return rp.producer.PublishEvent(ctx, fmt.Sprintf("shop-%s", shop.ShopID), event)
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}
