package service

import (
	"context"
	"encoding/json"
	"time"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/tiktok"
)

// ShopRepository reads shop credentials. Lookups return nil, nil when absent.
type ShopRepository interface {
	GetShopCredential(ctx context.Context, shopID string) (*models.ShopCredential, error)
	ListActiveShops(ctx context.Context, channel string) ([]models.ShopCredential, error)
	UpdateShopStatus(ctx context.Context, shopID, status string) error
	ExpireStaleTokens(ctx context.Context, now time.Time) (int64, error)
}

// OrderRepository persists the order replica. FindOrder returns nil, nil when absent.
type OrderRepository interface {
	FindOrder(ctx context.Context, shopID, orderID string) (*models.Order, error)
	CreateOrderSnapshot(ctx context.Context, snapshot *models.OrderSnapshot) error
	ReplaceOrderSnapshot(ctx context.Context, snapshot *models.OrderSnapshot) error
	UpdateSplitAttributes(ctx context.Context, orderID string, canSplit, mustSplit bool) error
	PatchOrder(ctx context.Context, orderID string, patch models.OrderPatch) error
}

// WebhookRepository is the queue of inbound webhook events
type WebhookRepository interface {
	EnqueueWebhook(ctx context.Context, payload string, verified bool) (int64, error)
	ListQueuedWebhooks(ctx context.Context) ([]models.WebhookEvent, error)
	DeleteWebhook(ctx context.Context, id int64) error
}

// NotificationRepository stores notifications for display
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	DeleteNotificationsBefore(ctx context.Context, before time.Time) (int64, error)
}

// NotificationPublisher forwards notifications to the notification sink
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n *models.Notification) error
}

// AlertSender delivers a notification to operators
type AlertSender interface {
	SendAlert(ctx context.Context, n *models.Notification) error
}

// PlatformClient is the subset of the remote platform API used by the sync engine
type PlatformClient interface {
	SearchOrders(ctx context.Context, req *tiktok.SearchOrdersRequest) (*tiktok.SearchOrdersResponse, error)
	GetOrders(ctx context.Context, orderIDs []string) ([]tiktok.Order, error)
	GetPackageDetail(ctx context.Context, packageID string) (*tiktok.PackageDetail, error)
	GetPriceDetail(ctx context.Context, orderID string) (json.RawMessage, error)
	GetSplitAttributes(ctx context.Context, orderIDs []string) ([]tiktok.SplitAttribute, error)
}

// ClientFactory builds a platform client bound to one shop
type ClientFactory func(config *tiktok.Config) (PlatformClient, error)

// NewTikTokClient is the production ClientFactory
func NewTikTokClient(config *tiktok.Config) (PlatformClient, error) {
	return tiktok.NewClient(config)
}

// DedupCache is a time-windowed idempotency cache
type DedupCache interface {
	// MarkIfAbsent records key and reports true when it was not seen within ttl
	MarkIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// ShopLocker serializes full sync passes of one shop
type ShopLocker interface {
	AcquireShopLock(ctx context.Context, shopID string, ttl time.Duration) (token string, acquired bool, err error)
	ReleaseShopLock(ctx context.Context, shopID, token string) error
}

// TransactionRefresher requests a refresh of a shop's unsettled transactions
type TransactionRefresher interface {
	RequestTransactionRefresh(ctx context.Context, shop *models.ShopCredential, orderID string) error
}

// JobStore persists job definitions created by the fan-out
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
}

// JobScheduler arms triggers for persisted jobs
type JobScheduler interface {
	ScheduleJob(job *models.Job) error
}
