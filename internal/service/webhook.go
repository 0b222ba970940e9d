package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/util"

	"go.uber.org/zap"
)

// OrderSyncer is the part of the sync engine the webhook pipeline drives
type OrderSyncer interface {
	SyncShopOrders(ctx context.Context, opts SyncOptions) *SyncResult
	SyncFulfillmentState(ctx context.Context, shopID string, orderIDs []string) error
}

// PushHeaders carries the authentication headers of a pushed webhook
type PushHeaders struct {
	Signature     string
	Timestamp     string
	Authorization string
}

// DrainResult summarizes one drain pass
type DrainResult struct {
	Loaded     int `json:"loaded"`
	Processed  int `json:"processed"`
	Duplicates int `json:"duplicates"`
	Malformed  int `json:"malformed"`
	Failed     int `json:"failed"`
}

// WebhookService verifies, deduplicates and dispatches webhook events
type WebhookService struct {
	shops             ShopRepository
	orders            OrderRepository
	queue             WebhookRepository
	syncer            OrderSyncer
	notifier          *Notifier
	refresher         TransactionRefresher
	dedup             DedupCache
	dedupTTL          time.Duration
	verificationToken string
	logger            *zap.Logger
}

// WebhookOptions configures optional webhook behaviour
type WebhookOptions struct {
	VerificationToken string
	DedupTTL          time.Duration
}

// NewWebhookService creates a new webhook service; refresher and dedup may be nil
func NewWebhookService(
	shops ShopRepository,
	orders OrderRepository,
	queue WebhookRepository,
	syncer OrderSyncer,
	notifier *Notifier,
	refresher TransactionRefresher,
	dedup DedupCache,
	opts WebhookOptions,
) *WebhookService {
	return &WebhookService{
		shops:             shops,
		orders:            orders,
		queue:             queue,
		syncer:            syncer,
		notifier:          notifier,
		refresher:         refresher,
		dedup:             dedup,
		dedupTTL:          opts.DedupTTL,
		verificationToken: opts.VerificationToken,
		logger:            util.GetLogger(),
	}
}

// ComputeSignature returns hex(HMAC_SHA256(secret, body + timestamp))
func ComputeSignature(body []byte, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a pushed signature in constant time
func VerifySignature(body []byte, timestamp, secret, signature string) bool {
	expected := ComputeSignature(body, timestamp, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// HandlePush authenticates and processes one pushed event. Only parse and
// authentication failures are returned; processing failures are logged.
func (s *WebhookService) HandlePush(ctx context.Context, body []byte, headers PushHeaders) (err error) {
	ctx, span := util.StartSpan(ctx, "WebhookService.HandlePush")
	defer func() {
		util.RecordError(span, err)
		span.End()
	}()

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		util.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}

	if err := s.authenticate(ctx, &payload, body, headers); err != nil {
		util.WebhookEventsTotal.WithLabelValues(eventLabel(payload.Type), "rejected").Inc()
		return err
	}

	if !s.markCrossPass(ctx, &payload) {
		util.WebhookEventsTotal.WithLabelValues(eventLabel(payload.Type), "duplicate").Inc()
		return nil
	}

	s.processLogged(ctx, &payload)
	return nil
}

func (s *WebhookService) authenticate(ctx context.Context, payload *models.WebhookPayload, body []byte, headers PushHeaders) error {
	if headers.Signature != "" {
		shop, err := s.shops.GetShopCredential(ctx, payload.ShopID)
		if err != nil {
			return fmt.Errorf("failed to load shop credential: %w", err)
		}
		if shop == nil {
			return fmt.Errorf("%w: unknown shop %s", ErrInvalidSignature, payload.ShopID)
		}
		if !VerifySignature(body, headers.Timestamp, shop.AppSecret, headers.Signature) {
			return ErrInvalidSignature
		}
		return nil
	}

	if s.verificationToken != "" {
		token := strings.TrimSpace(strings.TrimPrefix(headers.Authorization, "Bearer "))
		if !hmac.Equal([]byte(token), []byte(s.verificationToken)) {
			return ErrInvalidSignature
		}
	}
	return nil
}

// Enqueue stores a raw event for the next drain pass
func (s *WebhookService) Enqueue(ctx context.Context, body []byte, verified bool) (int64, error) {
	if !json.Valid(body) {
		util.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return 0, ErrMalformedWebhook
	}
	id, err := s.queue.EnqueueWebhook(ctx, string(body), verified)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue webhook: %w", err)
	}
	util.WebhookEventsTotal.WithLabelValues("unknown", "queued").Inc()
	return id, nil
}

// Drain processes every queued event in one pass. Each event is deleted
// after its turn whatever the outcome.
func (s *WebhookService) Drain(ctx context.Context) (_ *DrainResult, err error) {
	ctx, span := util.StartSpan(ctx, "WebhookService.Drain")
	defer func() {
		util.RecordError(span, err)
		span.End()
	}()

	events, err := s.queue.ListQueuedWebhooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load queued webhooks: %w", err)
	}

	result := &DrainResult{Loaded: len(events)}
	seen := make(map[string]struct{}, len(events))

	for _, event := range events {
		s.drainOne(ctx, event, seen, result)

		if err := s.queue.DeleteWebhook(ctx, event.ID); err != nil {
			s.logger.Error("Failed to delete webhook event",
				zap.Int64("event_id", event.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("Webhook drain completed",
		zap.Int("loaded", result.Loaded),
		zap.Int("processed", result.Processed),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("malformed", result.Malformed),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *WebhookService) drainOne(ctx context.Context, event models.WebhookEvent, seen map[string]struct{}, result *DrainResult) {
	var payload models.WebhookPayload
	if err := json.Unmarshal([]byte(event.Payload), &payload); err != nil {
		result.Malformed++
		util.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		s.logger.Warn("Discarding malformed webhook event",
			zap.Int64("event_id", event.ID),
			zap.Error(err))
		return
	}

	key := payload.DedupKey()
	if _, ok := seen[key]; ok {
		result.Duplicates++
		util.WebhookEventsTotal.WithLabelValues(eventLabel(payload.Type), "duplicate").Inc()
		return
	}
	seen[key] = struct{}{}

	if !s.markCrossPass(ctx, &payload) {
		result.Duplicates++
		util.WebhookEventsTotal.WithLabelValues(eventLabel(payload.Type), "duplicate").Inc()
		return
	}

	if s.processLogged(ctx, &payload) {
		result.Processed++
	} else {
		result.Failed++
	}
}

// markCrossPass consults the time-windowed cache when it is enabled and
// reports whether the event should be processed.
func (s *WebhookService) markCrossPass(ctx context.Context, payload *models.WebhookPayload) bool {
	if s.dedup == nil || s.dedupTTL <= 0 {
		return true
	}
	fresh, err := s.dedup.MarkIfAbsent(ctx, payload.DedupKey(), s.dedupTTL)
	if err != nil {
		s.logger.Warn("Dedup cache unavailable", zap.Error(err))
		return true
	}
	return fresh
}

func (s *WebhookService) processLogged(ctx context.Context, payload *models.WebhookPayload) bool {
	if err := s.Dispatch(ctx, payload); err != nil {
		util.WebhookEventsTotal.WithLabelValues(eventLabel(payload.Type), "failed").Inc()
		s.logger.Error("Webhook processing failed",
			zap.Int("type", payload.Type),
			zap.String("shop_id", payload.ShopID),
			zap.String("order_id", payload.Data.OrderID),
			zap.Error(err))
		return false
	}
	util.WebhookEventsTotal.WithLabelValues(eventLabel(payload.Type), "processed").Inc()
	return true
}

// Dispatch routes one event to its handler by type
func (s *WebhookService) Dispatch(ctx context.Context, payload *models.WebhookPayload) error {
	switch payload.Type {
	case models.WebhookTypeOrderStatusChange:
		return s.handleOrderStatusChange(ctx, payload)
	case models.WebhookTypeCancellationStatusChange:
		return s.handleCancellationStatusChange(ctx, payload)
	default:
		s.logger.Info("Ignoring webhook type",
			zap.Int("type", payload.Type),
			zap.String("shop_id", payload.ShopID))
		return nil
	}
}

func (s *WebhookService) resolveShop(ctx context.Context, payload *models.WebhookPayload) (*models.ShopCredential, error) {
	shop, err := s.shops.GetShopCredential(ctx, payload.ShopID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shop credential: %w", err)
	}
	if shop == nil {
		s.notifier.Notify(ctx, shopNotification(nil,
			models.NotificationSystemAlert,
			"Webhook for unknown shop",
			fmt.Sprintf("Received a webhook of type %d for unknown shop %s", payload.Type, payload.ShopID),
			payload.Data.OrderID,
			map[string]any{"shopId": payload.ShopID, "type": payload.Type}))
		return nil, fmt.Errorf("%w: %s", ErrShopNotFound, payload.ShopID)
	}
	return shop, nil
}

func (s *WebhookService) syncSingleOrder(ctx context.Context, shopID, orderID string) *SyncResult {
	quiet := false
	return s.syncer.SyncShopOrders(ctx, SyncOptions{
		ShopID:              shopID,
		OrderIDs:            []string{orderID},
		CreateNotifications: &quiet,
	})
}

func (s *WebhookService) handleOrderStatusChange(ctx context.Context, payload *models.WebhookPayload) error {
	shop, err := s.resolveShop(ctx, payload)
	if err != nil {
		return err
	}
	orderID := payload.Data.OrderID

	result := s.syncSingleOrder(ctx, shop.ShopID, orderID)
	if !result.Success {
		return fmt.Errorf("failed to sync order %s: %s", orderID, result.Error)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("failed to sync order %s: %s", orderID, result.Errors[0].Error)
	}

	order, err := s.orders.FindOrder(ctx, shop.ShopID, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}
	if order != nil && (order.CanSplit == nil || order.MustSplit == nil) {
		if err := s.syncer.SyncFulfillmentState(ctx, shop.ShopID, []string{orderID}); err != nil {
			s.logger.Warn("Failed to sync split attributes",
				zap.String("order_id", orderID),
				zap.Error(err))
		}
	}

	status := payload.Data.OrderStatus
	if status == "" && order != nil {
		status = order.Status
	}
	data := map[string]any{"orderStatus": status, "updateTime": payload.Data.UpdateTime}

	switch status {
	case models.OrderStatusAwaitingShipment:
		if s.refresher != nil {
			if err := s.refresher.RequestTransactionRefresh(ctx, shop, orderID); err != nil {
				s.logger.Warn("Failed to request transaction refresh",
					zap.String("order_id", orderID),
					zap.Error(err))
			}
		}
		s.notifier.Notify(ctx, shopNotification(shop, models.NotificationOrderAwaitingShipment,
			"Order awaiting shipment",
			fmt.Sprintf("Order %s is ready to ship", orderID),
			orderID, data))

	case models.OrderStatusDelivered:
		delivered := models.CustomStatusDelivered
		if err := s.orders.PatchOrder(ctx, orderID, models.OrderPatch{CustomStatus: &delivered}); err != nil {
			return fmt.Errorf("failed to mark order delivered: %w", err)
		}
		s.notifier.Notify(ctx, shopNotification(shop, models.NotificationOrderDelivered,
			"Order delivered",
			fmt.Sprintf("Order %s has been delivered", orderID),
			orderID, data))

	case models.OrderStatusCancelled:
		s.notifier.Notify(ctx, shopNotification(shop, models.NotificationOrderCancelled,
			"Order cancelled",
			fmt.Sprintf("Order %s has been cancelled", orderID),
			orderID, data))

	case models.OrderStatusUnpaid:
		s.notifier.Notify(ctx, shopNotification(shop, models.NotificationOrderUnpaid,
			"Order awaiting payment",
			fmt.Sprintf("Order %s was placed and is awaiting payment", orderID),
			orderID, data))

	case models.OrderStatusInTransit:
		s.notifier.Notify(ctx, shopNotification(shop, models.NotificationOrderInTransit,
			"Order in transit",
			fmt.Sprintf("Order %s is in transit", orderID),
			orderID, data))

	default:
		s.notifier.Notify(ctx, shopNotification(shop, models.NotificationOrderStatusChanged,
			"Order status changed",
			fmt.Sprintf("Order %s changed status to %s", orderID, status),
			orderID, data))
	}
	return nil
}

// cancellationDetails is the cancellation block merged into order channel data
type cancellationDetails struct {
	CancellationID     string          `json:"cancellation_id,omitempty"`
	CancellationStatus string          `json:"cancellation_status"`
	CancelReason       string          `json:"cancel_reason,omitempty"`
	CancelTime         int64           `json:"cancel_time,omitempty"`
	CancelUser         string          `json:"cancel_user,omitempty"`
	LineItems          json.RawMessage `json:"line_items,omitempty"`
}

func (s *WebhookService) handleCancellationStatusChange(ctx context.Context, payload *models.WebhookPayload) error {
	shop, err := s.resolveShop(ctx, payload)
	if err != nil {
		return err
	}
	orderID := payload.Data.OrderID

	order, err := s.orders.FindOrder(ctx, shop.ShopID, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}

	if order == nil {
		s.notifier.Notify(ctx, shopNotification(shop, models.NotificationOrderSyncRequired,
			"Order sync required",
			fmt.Sprintf("Cancellation received for order %s that is not synced yet", orderID),
			orderID,
			map[string]any{"cancellationStatus": payload.Data.CancellationStatus}))

		if result := s.syncSingleOrder(ctx, shop.ShopID, orderID); !result.Success {
			return fmt.Errorf("failed to sync order %s: %s", orderID, result.Error)
		}
		return nil
	}

	cancelStatus := payload.Data.CancellationStatus
	channelData, err := mergeChannelData(order.ChannelData, "cancellation", cancellationDetails{
		CancellationID:     payload.Data.CancellationID,
		CancellationStatus: cancelStatus,
		CancelReason:       payload.Data.CancelReason,
		CancelTime:         payload.Data.CancelTime,
		CancelUser:         payload.Data.CancelUser,
		LineItems:          payload.Data.LineItems,
	})
	if err != nil {
		return err
	}

	patch := models.OrderPatch{ChannelData: &channelData}
	if models.IsTerminalCancellation(cancelStatus) {
		cancelled := models.OrderStatusCancelled
		patch.Status = &cancelled
	}
	if cancelStatus == models.CancellationFullyCancelled {
		patch.ClearCustomStatus = true
	}
	if err := s.orders.PatchOrder(ctx, order.OrderID, patch); err != nil {
		return fmt.Errorf("failed to apply cancellation: %w", err)
	}

	data := map[string]any{
		"cancellationId":     payload.Data.CancellationID,
		"cancellationStatus": cancelStatus,
		"cancelReason":       payload.Data.CancelReason,
	}

	kind, title := models.NotificationCancellationUnknown, "Unknown cancellation status"
	message := fmt.Sprintf("Order %s reported cancellation status %s", orderID, cancelStatus)
	switch cancelStatus {
	case models.CancellationBuyerCancelled:
		kind, title = models.NotificationOrderCancelledByBuyer, "Order cancelled by buyer"
		message = fmt.Sprintf("The buyer cancelled order %s: %s", orderID, payload.Data.CancelReason)
	case models.CancellationSellerCancelled:
		kind, title = models.NotificationOrderCancelledBySeller, "Order cancelled by seller"
		message = fmt.Sprintf("Order %s was cancelled by the seller: %s", orderID, payload.Data.CancelReason)
	case models.CancellationSystemCancelled:
		kind, title = models.NotificationOrderCancelledBySystem, "Order cancelled by system"
		message = fmt.Sprintf("Order %s was cancelled by the platform: %s", orderID, payload.Data.CancelReason)
	case models.CancellationFullyCancelled:
		kind, title = models.NotificationOrderFullyCancelled, "Order fully cancelled"
		message = fmt.Sprintf("Order %s has been fully cancelled", orderID)
	case models.CancellationPartiallyCancelled:
		kind, title = models.NotificationOrderPartiallyCancelled, "Order partially cancelled"
		message = fmt.Sprintf("Some items of order %s have been cancelled", orderID)
	}

	s.notifier.Notify(ctx, shopNotification(shop, kind, title, message, orderID, data))
	return nil
}

func eventLabel(eventType int) string {
	switch eventType {
	case models.WebhookTypeOrderStatusChange:
		return "order_status_change"
	case models.WebhookTypeCancellationStatusChange:
		return "cancellation_status_change"
	default:
		return strconv.Itoa(eventType)
	}
}
