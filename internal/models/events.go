package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Webhook event types pushed by the platform
const (
	WebhookTypeOrderStatusChange        = 1
	WebhookTypeReverseStatusUpdate      = 2
	WebhookTypeCancellationStatusChange = 11
)

// Cancellation statuses carried by cancellation webhooks
const (
	CancellationBuyerCancelled     = "BUYER_CANCELLED"
	CancellationSellerCancelled    = "SELLER_CANCELLED"
	CancellationSystemCancelled    = "SYSTEM_CANCELLED"
	CancellationFullyCancelled     = "FULLY_CANCELLED"
	CancellationPartiallyCancelled = "PARTIALLY_CANCELLED"
)

// IsTerminalCancellation reports whether a cancellation status cancels the whole order
func IsTerminalCancellation(status string) bool {
	switch status {
	case CancellationBuyerCancelled, CancellationSellerCancelled,
		CancellationSystemCancelled, CancellationFullyCancelled:
		return true
	}
	return false
}

// WebhookEvent is a queued inbound notification awaiting the drain pass
type WebhookEvent struct {
	ID        int64     `db:"id" json:"id"`
	Payload   string    `db:"payload" json:"payload"`
	Verified  bool      `db:"verified" json:"verified"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// WebhookPayload is the body pushed by the platform
type WebhookPayload struct {
	Type           int         `json:"type"`
	NotificationID string      `json:"tts_notification_id"`
	ShopID         string      `json:"shop_id"`
	Timestamp      int64       `json:"timestamp"`
	Data           WebhookData `json:"data"`
}

// WebhookData is the type-specific part of a webhook payload
type WebhookData struct {
	OrderID            string          `json:"order_id"`
	OrderStatus        string          `json:"order_status,omitempty"`
	UpdateTime         int64           `json:"update_time,omitempty"`
	CancellationID     string          `json:"cancellation_id,omitempty"`
	CancellationStatus string          `json:"cancellation_status,omitempty"`
	CancelReason       string          `json:"cancel_reason,omitempty"`
	CancelTime         int64           `json:"cancel_time,omitempty"`
	CancelUser         string          `json:"cancel_user,omitempty"`
	LineItems          json.RawMessage `json:"line_items,omitempty"`
}

// DedupKey identifies equivalent events within a processing window
func (p *WebhookPayload) DedupKey() string {
	return fmt.Sprintf("%s:%d:%s:%s", p.ShopID, p.Type, p.Data.OrderID, p.Data.CancellationID)
}

// Notification types produced for the notification sink
const (
	NotificationOrderSyncSuccess        = "ORDER_SYNC_SUCCESS"
	NotificationOrderSyncFailed         = "ORDER_SYNC_FAILED"
	NotificationShopReauthRequired      = "SHOP_REAUTH_REQUIRED"
	NotificationSystemAlert             = "SYSTEM_ALERT"
	NotificationOrderSyncRequired       = "ORDER_SYNC_REQUIRED"
	NotificationOrderAwaitingShipment   = "ORDER_AWAITING_SHIPMENT"
	NotificationOrderDelivered          = "ORDER_DELIVERED"
	NotificationOrderCancelled          = "ORDER_CANCELLED"
	NotificationOrderUnpaid             = "ORDER_UNPAID"
	NotificationOrderInTransit          = "ORDER_IN_TRANSIT"
	NotificationOrderStatusChanged      = "ORDER_STATUS_CHANGED"
	NotificationOrderCancelledByBuyer   = "ORDER_CANCELLED_BY_BUYER"
	NotificationOrderCancelledBySeller  = "ORDER_CANCELLED_BY_SELLER"
	NotificationOrderCancelledBySystem  = "ORDER_CANCELLED_BY_SYSTEM"
	NotificationOrderFullyCancelled     = "ORDER_FULLY_CANCELLED"
	NotificationOrderPartiallyCancelled = "ORDER_PARTIALLY_CANCELLED"
	NotificationCancellationUnknown     = "ORDER_CANCELLATION_UNKNOWN"
)

// Notification is one event handed to the notification sink
type Notification struct {
	ID        string         `db:"id" json:"id"`
	Type      string         `db:"type" json:"type"`
	Title     string         `db:"title" json:"title"`
	Message   string         `db:"message" json:"message"`
	UserID    string         `db:"user_id" json:"userId"`
	ShopID    *string        `db:"shop_id" json:"shopId,omitempty"`
	OrderID   *string        `db:"order_id" json:"orderId,omitempty"`
	Data      map[string]any `db:"-" json:"data"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Broker event types
const (
	EventTypeNotificationCreated         = "NotificationCreated"
	EventTypeTransactionRefreshRequested = "TransactionRefreshRequested"
)

// BaseEvent contains common fields for all broker events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationCreatedEvent carries a notification to the notification sink
type NotificationCreatedEvent struct {
	BaseEvent
	Notification *Notification `json:"notification"`
}

// TransactionRefreshRequestedEvent asks the finance flow to refresh a shop's unsettled transactions
type TransactionRefreshRequestedEvent struct {
	BaseEvent
	ShopID  string `json:"shop_id"`
	UserID  string `json:"user_id"`
	OrderID string `json:"order_id"`
}
