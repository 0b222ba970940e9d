package service

import (
	"context"
	"time"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier hands notifications to the store and the notification sink.
// Delivery is best effort: failures are logged and never returned.
type Notifier struct {
	repo      NotificationRepository
	publisher NotificationPublisher
	alerts    AlertSender
	alertOn   map[string]bool
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotifier creates a notifier; either collaborator may be nil
func NewNotifier(repo NotificationRepository, publisher NotificationPublisher) *Notifier {
	return &Notifier{
		repo:      repo,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// WithAlerts also sends notifications of the given types to an operator channel
func (n *Notifier) WithAlerts(sender AlertSender, types ...string) *Notifier {
	n.alerts = sender
	n.alertOn = make(map[string]bool, len(types))
	for _, t := range types {
		n.alertOn[t] = true
	}
	return n
}

// Notify persists and publishes one notification
func (n *Notifier) Notify(ctx context.Context, notification *models.Notification) {
	if n == nil {
		return
	}
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = n.now().UTC()
	}
	if notification.Data == nil {
		notification.Data = map[string]any{}
	}

	util.NotificationsTotal.WithLabelValues(notification.Type).Inc()

	if n.repo != nil {
		if err := n.repo.CreateNotification(ctx, notification); err != nil {
			n.logger.Error("Failed to store notification",
				zap.String("type", notification.Type),
				zap.Error(err))
		}
	}

	if n.publisher != nil {
		if err := n.publisher.PublishNotification(ctx, notification); err != nil {
			n.logger.Error("Failed to publish notification",
				zap.String("type", notification.Type),
				zap.Error(err))
		}
	}

	if n.alerts != nil && n.alertOn[notification.Type] {
		if err := n.alerts.SendAlert(ctx, notification); err != nil {
			n.logger.Warn("Failed to send alert",
				zap.String("type", notification.Type),
				zap.Error(err))
		}
	}
}

// shopNotification builds a notification addressed to the owner of a shop
func shopNotification(shop *models.ShopCredential, kind, title, message string, orderID string, data map[string]any) *models.Notification {
	n := &models.Notification{
		Type:    kind,
		Title:   title,
		Message: message,
		Data:    data,
	}
	if shop != nil {
		shopID := shop.ShopID
		n.UserID = shop.UserID
		n.ShopID = &shopID
	}
	if orderID != "" {
		n.OrderID = &orderID
	}
	return n
}
