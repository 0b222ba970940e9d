package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shop-sync-service/internal/util"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

// JobFunctions exposes service operations as scheduler function handlers
type JobFunctions struct {
	fanOut        *ShopFanOut
	syncFactory   *OrderSyncFactory
	shops         ShopRepository
	notifications NotificationRepository
	defaults      ShopSyncParams
	logger        *zap.Logger
	now           func() time.Time
}

// NewJobFunctions creates the function handlers; defaults fill missing sync params
func NewJobFunctions(
	fanOut *ShopFanOut,
	syncFactory *OrderSyncFactory,
	shops ShopRepository,
	notifications NotificationRepository,
	defaults ShopSyncParams,
) *JobFunctions {
	return &JobFunctions{
		fanOut:        fanOut,
		syncFactory:   syncFactory,
		shops:         shops,
		notifications: notifications,
		defaults:      defaults,
		logger:        util.GetLogger(),
		now:           time.Now,
	}
}

func decodeParams(params json.RawMessage, out any) error {
	if len(params) == 0 || string(params) == "null" {
		return validate.Struct(out)
	}
	if err := json.Unmarshal(params, out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// SyncAllShops is the sync-all-shops handler
func (f *JobFunctions) SyncAllShops(ctx context.Context, params json.RawMessage) (any, error) {
	req := FanOutRequest{PageSize: f.defaults.PageSize, DaysToSync: f.defaults.DaysToSync}
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	scheduled, err := f.fanOut.SyncAllShops(ctx, req)
	if err != nil {
		return nil, err
	}
	return map[string]any{"shopsScheduled": scheduled}, nil
}

// SyncShopOrders is the sync-shop-orders handler. A failed sync is returned
// as an error so the execution is recorded as FAILED.
func (f *JobFunctions) SyncShopOrders(ctx context.Context, params json.RawMessage) (any, error) {
	p := ShopSyncParams{DaysToSync: f.defaults.DaysToSync, PageSize: f.defaults.PageSize}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.DaysToSync <= 0 {
		p.DaysToSync = f.defaults.DaysToSync
	}

	since := f.now().AddDate(0, 0, -p.DaysToSync).Unix()
	result := f.syncFactory.SyncShopOrders(ctx, SyncOptions{
		ShopID:       p.ShopID,
		SyncAll:      true,
		UpdateTimeGE: &since,
		PageSize:     p.PageSize,
	})
	if !result.Success {
		return result, fmt.Errorf("order sync for shop %s failed: %s", p.ShopID, result.Error)
	}
	return result, nil
}

type cleanupParams struct {
	OlderThanDays int `json:"olderThanDays" validate:"gte=0"`
}

// CleanupNotifications is the cleanup-notifications handler
func (f *JobFunctions) CleanupNotifications(ctx context.Context, params json.RawMessage) (any, error) {
	p := cleanupParams{OlderThanDays: 30}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.OlderThanDays == 0 {
		p.OlderThanDays = 30
	}

	before := f.now().AddDate(0, 0, -p.OlderThanDays)
	deleted, err := f.notifications.DeleteNotificationsBefore(ctx, before)
	if err != nil {
		return nil, fmt.Errorf("failed to delete notifications: %w", err)
	}
	f.logger.Info("Old notifications deleted", zap.Int64("deleted", deleted))
	return map[string]any{"deleted": deleted}, nil
}

// ExpireStaleTokens is the expire-stale-tokens handler
func (f *JobFunctions) ExpireStaleTokens(ctx context.Context, _ json.RawMessage) (any, error) {
	expired, err := f.shops.ExpireStaleTokens(ctx, f.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale tokens: %w", err)
	}
	f.logger.Info("Stale shop tokens expired", zap.Int64("expired", expired))
	return map[string]any{"expired": expired}, nil
}
