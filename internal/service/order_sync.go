package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/tiktok"
	"shop-sync-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncOptions selects the orders of one sync pass
type SyncOptions struct {
	ShopID              string   `json:"shop_id"`
	OrderIDs            []string `json:"order_ids,omitempty"`
	SyncAll             bool     `json:"sync_all,omitempty"`
	CreateTimeGE        *int64   `json:"create_time_ge,omitempty"`
	CreateTimeLT        *int64   `json:"create_time_lt,omitempty"`
	UpdateTimeGE        *int64   `json:"update_time_ge,omitempty"`
	UpdateTimeLT        *int64   `json:"update_time_lt,omitempty"`
	PageSize            int      `json:"page_size,omitempty"`
	IncludePriceDetail  bool     `json:"include_price_detail,omitempty"`
	CreateNotifications *bool    `json:"create_notifications,omitempty"`
	TimeoutSeconds      int      `json:"timeout_seconds,omitempty"`
}

func (o SyncOptions) notificationsEnabled() bool {
	return o.CreateNotifications == nil || *o.CreateNotifications
}

func (o SyncOptions) targeted() bool {
	return len(o.OrderIDs) > 0
}

// OrderError is one collected per-order failure
type OrderError struct {
	OrderID string `json:"orderId"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
}

// SyncResult summarizes one sync pass
type SyncResult struct {
	Success                bool         `json:"success"`
	ShopID                 string       `json:"shopId"`
	TotalOrdersProcessed   int          `json:"totalOrdersProcessed"`
	OrdersCreated          int          `json:"ordersCreated"`
	OrdersUpdated          int          `json:"ordersUpdated"`
	OrdersWithPriceDetails int          `json:"ordersWithPriceDetails"`
	Errors                 []OrderError `json:"errors"`
	ExecutionTimeMs        int64        `json:"executionTimeMs"`
	Error                  string       `json:"error,omitempty"`
	ErrorCode              string       `json:"errorCode,omitempty"`
}

// SyncSettings tunes batching, pacing and retries of the sync engine
type SyncSettings struct {
	BatchSize   int
	IDBatchSize int
	PageSize    int
	PageDelay   time.Duration
	Retry       RetryPolicy
	ShopLockTTL time.Duration
	Channel     string
	BaseURL     string
	Timeout     time.Duration
}

func (s SyncSettings) withDefaults() SyncSettings {
	if s.BatchSize <= 0 {
		s.BatchSize = 50
	}
	if s.IDBatchSize <= 0 {
		s.IDBatchSize = 50
	}
	if s.PageSize <= 0 {
		s.PageSize = 50
	}
	if s.Retry.Attempts <= 0 {
		s.Retry = DefaultRetryPolicy()
	}
	if s.ShopLockTTL <= 0 {
		s.ShopLockTTL = 30 * time.Minute
	}
	if s.Channel == "" {
		s.Channel = models.ChannelTikTok
	}
	return s
}

// OrderSyncFactory resolves shops and builds per-shop sync services
type OrderSyncFactory struct {
	shops     ShopRepository
	orders    OrderRepository
	notifier  *Notifier
	locker    ShopLocker
	newClient ClientFactory
	settings  SyncSettings
	logger    *zap.Logger
}

// NewOrderSyncFactory creates a new order sync factory; locker may be nil
func NewOrderSyncFactory(
	shops ShopRepository,
	orders OrderRepository,
	notifier *Notifier,
	locker ShopLocker,
	newClient ClientFactory,
	settings SyncSettings,
) *OrderSyncFactory {
	if newClient == nil {
		newClient = NewTikTokClient
	}
	return &OrderSyncFactory{
		shops:     shops,
		orders:    orders,
		notifier:  notifier,
		locker:    locker,
		newClient: newClient,
		settings:  settings.withDefaults(),
		logger:    util.GetLogger(),
	}
}

// ForShop builds a sync service for an active shop of the configured channel
func (f *OrderSyncFactory) ForShop(ctx context.Context, shopID string) (*OrderSyncService, error) {
	shop, err := f.shops.GetShopCredential(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shop credential: %w", err)
	}
	if shop == nil || shop.Status != models.ShopStatusActive {
		return nil, fmt.Errorf("%w: %s", ErrShopNotFound, shopID)
	}
	if shop.Channel != f.settings.Channel {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongChannel, shopID, shop.Channel)
	}

	baseURL := shop.BaseURL
	if baseURL == "" {
		baseURL = f.settings.BaseURL
	}

	client, err := f.newClient(&tiktok.Config{
		BaseURL:     baseURL,
		AppKey:      shop.AppKey,
		AppSecret:   shop.AppSecret,
		AccessToken: shop.AccessToken,
		ShopCipher:  shop.ResolveShopCipher(),
		Timeout:     f.settings.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build platform client: %w", err)
	}

	return &OrderSyncService{
		shop:     shop,
		client:   client,
		shops:    f.shops,
		orders:   f.orders,
		notifier: f.notifier,
		locker:   f.locker,
		settings: f.settings,
		logger:   f.logger.With(zap.String("shop_id", shop.ShopID)),
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

// SyncShopOrders resolves the shop and runs one sync pass. Construction
// failures are reported in the result like any other failure.
func (f *OrderSyncFactory) SyncShopOrders(ctx context.Context, opts SyncOptions) *SyncResult {
	svc, err := f.ForShop(ctx, opts.ShopID)
	if err != nil {
		kind := Classify(err)
		util.SyncErrorsTotal.WithLabelValues(kind.String()).Inc()
		util.SyncRunsTotal.WithLabelValues("failed").Inc()
		f.logger.Warn("Order sync not started",
			zap.String("shop_id", opts.ShopID),
			zap.Error(err))
		return &SyncResult{
			ShopID:    opts.ShopID,
			Errors:    []OrderError{},
			Error:     err.Error(),
			ErrorCode: kind.String(),
		}
	}
	return svc.SyncOrders(ctx, opts)
}

// SyncFulfillmentState refreshes split attributes of orders of one shop
func (f *OrderSyncFactory) SyncFulfillmentState(ctx context.Context, shopID string, orderIDs []string) error {
	svc, err := f.ForShop(ctx, shopID)
	if err != nil {
		return err
	}
	return svc.SyncFulfillmentState(ctx, orderIDs)
}

// OrderSyncService synchronizes remote orders of one shop into the replica
type OrderSyncService struct {
	shop     *models.ShopCredential
	client   PlatformClient
	shops    ShopRepository
	orders   OrderRepository
	notifier *Notifier
	locker   ShopLocker
	settings SyncSettings
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Shop returns the credential the service is bound to
func (s *OrderSyncService) Shop() *models.ShopCredential {
	return s.shop
}

// SyncOrders runs one sync pass. It never returns an error: failures are
// captured in the result and reported through notifications.
func (s *OrderSyncService) SyncOrders(ctx context.Context, opts SyncOptions) *SyncResult {
	ctx, span := util.StartSpan(ctx, "OrderSyncService.SyncOrders")
	defer span.End()

	start := s.now()
	result := &SyncResult{
		ShopID: s.shop.ShopID,
		Errors: []OrderError{},
	}

	s.logger.Info("Order sync started",
		zap.Int("order_ids", len(opts.OrderIDs)),
		zap.Bool("sync_all", opts.SyncAll),
		zap.Bool("include_price_detail", opts.IncludePriceDetail),
		zap.Int("timeout_seconds", opts.TimeoutSeconds))

	err := s.run(ctx, opts, result)
	result.ExecutionTimeMs = s.now().Sub(start).Milliseconds()
	util.SyncDuration.Observe(s.now().Sub(start).Seconds())

	if err != nil {
		util.RecordError(span, err)
		s.fail(ctx, opts, result, err)
		return result
	}

	result.Success = true
	util.SyncRunsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Order sync completed",
		zap.Int("processed", result.TotalOrdersProcessed),
		zap.Int("created", result.OrdersCreated),
		zap.Int("updated", result.OrdersUpdated),
		zap.Int("errors", len(result.Errors)),
		zap.Int64("duration_ms", result.ExecutionTimeMs))

	if result.TotalOrdersProcessed > 0 && opts.notificationsEnabled() {
		s.notifier.Notify(ctx, shopNotification(s.shop,
			models.NotificationOrderSyncSuccess,
			"Order sync completed",
			fmt.Sprintf("Synced %d orders for shop %s (%d created, %d updated)",
				result.TotalOrdersProcessed, s.shop.ShopName, result.OrdersCreated, result.OrdersUpdated),
			"",
			map[string]any{
				"totalOrdersProcessed":   result.TotalOrdersProcessed,
				"ordersCreated":          result.OrdersCreated,
				"ordersUpdated":          result.OrdersUpdated,
				"ordersWithPriceDetails": result.OrdersWithPriceDetails,
				"errors":                 len(result.Errors),
			}))
	}

	return result
}

func (s *OrderSyncService) run(ctx context.Context, opts SyncOptions, result *SyncResult) error {
	if !opts.targeted() && !opts.SyncAll {
		return ErrInvalidSyncOptions
	}

	if !opts.targeted() && s.locker != nil {
		token, acquired, err := s.locker.AcquireShopLock(ctx, s.shop.ShopID, s.settings.ShopLockTTL)
		switch {
		case err != nil:
			s.logger.Warn("Shop lock unavailable, continuing without it", zap.Error(err))
		case !acquired:
			return ErrSyncInProgress
		default:
			defer func() {
				if err := s.locker.ReleaseShopLock(context.Background(), s.shop.ShopID, token); err != nil {
					s.logger.Warn("Failed to release shop lock", zap.Error(err))
				}
			}()
		}
	}

	remote, err := s.fetchOrders(ctx, opts)
	if err != nil {
		return err
	}

	return s.processOrders(ctx, remote, opts, result)
}

// fetchOrders loads every order of the selection
func (s *OrderSyncService) fetchOrders(ctx context.Context, opts SyncOptions) ([]tiktok.Order, error) {
	if opts.targeted() {
		return s.fetchByIDs(ctx, opts.OrderIDs)
	}
	return s.fetchByRange(ctx, opts)
}

func (s *OrderSyncService) fetchByIDs(ctx context.Context, orderIDs []string) ([]tiktok.Order, error) {
	all := make([]tiktok.Order, 0, len(orderIDs))
	for i := 0; i < len(orderIDs); i += s.settings.IDBatchSize {
		if i > 0 {
			if err := s.sleep(ctx, s.settings.PageDelay); err != nil {
				return nil, err
			}
		}

		end := min(i+s.settings.IDBatchSize, len(orderIDs))
		batch := orderIDs[i:end]
		orders, err := Retry(ctx, s.settings.Retry, "get_orders", func(ctx context.Context) ([]tiktok.Order, error) {
			return s.client.GetOrders(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		all = append(all, orders...)
	}
	return all, nil
}

func (s *OrderSyncService) fetchByRange(ctx context.Context, opts SyncOptions) ([]tiktok.Order, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = s.settings.PageSize
	}

	req := &tiktok.SearchOrdersRequest{
		CreateTimeGE: opts.CreateTimeGE,
		CreateTimeLT: opts.CreateTimeLT,
		UpdateTimeGE: opts.UpdateTimeGE,
		UpdateTimeLT: opts.UpdateTimeLT,
		PageSize:     pageSize,
	}

	var all []tiktok.Order
	for page := 1; ; page++ {
		resp, err := Retry(ctx, s.settings.Retry, "search_orders", func(ctx context.Context) (*tiktok.SearchOrdersResponse, error) {
			return s.client.SearchOrders(ctx, req)
		})
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Orders...)

		s.logger.Debug("Fetched order page",
			zap.Int("page", page),
			zap.Int("orders", len(resp.Orders)),
			zap.Int("total_count", resp.TotalCount))

		if resp.NextPageToken == "" {
			break
		}
		if resp.NextPageToken == req.PageToken {
			s.logger.Warn("Continuation token repeated, stopping pagination", zap.Int("page", page))
			break
		}
		req.PageToken = resp.NextPageToken

		if err := s.sleep(ctx, s.settings.PageDelay); err != nil {
			return nil, err
		}
	}
	return all, nil
}

// processOrders persists the fetched orders batch by batch. An authorization
// failure stops processing and is returned; other failures are collected.
func (s *OrderSyncService) processOrders(ctx context.Context, remote []tiktok.Order, opts SyncOptions, result *SyncResult) error {
	for i := 0; i < len(remote); i += s.settings.BatchSize {
		end := min(i+s.settings.BatchSize, len(remote))

		for j := i; j < end; j++ {
			order := &remote[j]
			outcome, err := s.processOrder(ctx, order, opts)
			if err != nil {
				kind := Classify(err)
				util.SyncErrorsTotal.WithLabelValues(kind.String()).Inc()
				result.Errors = append(result.Errors, OrderError{
					OrderID: order.ID,
					Error:   err.Error(),
					Kind:    kind.String(),
				})
				if kind == KindUnauthorized {
					s.logger.Error("Authorization rejected, aborting sync",
						zap.String("order_id", order.ID),
						zap.Int("skipped", len(remote)-j-1))
					return err
				}
				s.logger.Warn("Failed to sync order",
					zap.String("order_id", order.ID),
					zap.Error(err))
				continue
			}

			result.TotalOrdersProcessed++
			if outcome.created {
				result.OrdersCreated++
				util.OrdersSyncedTotal.WithLabelValues("created").Inc()
			} else {
				result.OrdersUpdated++
				util.OrdersSyncedTotal.WithLabelValues("updated").Inc()
			}
			if outcome.priced {
				result.OrdersWithPriceDetails++
			}
		}

		if end < len(remote) {
			if err := s.sleep(ctx, s.settings.PageDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

type orderOutcome struct {
	created bool
	priced  bool
}

func (s *OrderSyncService) processOrder(ctx context.Context, remote *tiktok.Order, opts SyncOptions) (orderOutcome, error) {
	var outcome orderOutcome
	snapshot := mapOrder(remote, s.shop, s.settings.Channel)

	if opts.IncludePriceDetail {
		detail, err := Retry(ctx, s.settings.Retry, "get_price_detail", func(ctx context.Context) (json.RawMessage, error) {
			return s.client.GetPriceDetail(ctx, remote.ID)
		})
		switch {
		case IsUnauthorized(err):
			return outcome, err
		case err != nil:
			s.logger.Warn("Price detail unavailable", zap.String("order_id", remote.ID), zap.Error(err))
		default:
			merged, err := mergeChannelData(snapshot.Order.ChannelData, "price_detail", detail)
			if err == nil {
				snapshot.Order.ChannelData = merged
				outcome.priced = true
			}
		}
	}

	packages, err := s.fetchPackages(ctx, remote, snapshot.Packages)
	if err != nil {
		return outcome, err
	}
	snapshot.Packages = packages

	existing, err := s.orders.FindOrder(ctx, s.shop.ShopID, remote.ID)
	if err != nil {
		return outcome, fmt.Errorf("failed to look up order: %w", err)
	}

	if existing != nil {
		snapshot.Order.ID = existing.ID
		snapshot.Order.CustomStatus = existing.CustomStatus
		snapshot.Order.CanSplit = existing.CanSplit
		snapshot.Order.MustSplit = existing.MustSplit
		snapshot.Order.CreatedAt = existing.CreatedAt
		if err := s.orders.ReplaceOrderSnapshot(ctx, snapshot); err != nil {
			return outcome, fmt.Errorf("failed to update order: %w", err)
		}
	} else {
		snapshot.Order.ID = uuid.New().String()
		if err := s.orders.CreateOrderSnapshot(ctx, snapshot); err != nil {
			return outcome, fmt.Errorf("failed to create order: %w", err)
		}
		outcome.created = true
	}

	if err := s.SyncFulfillmentState(ctx, []string{remote.ID}); err != nil {
		if IsUnauthorized(err) {
			return outcome, err
		}
		s.logger.Warn("Failed to sync split attributes", zap.String("order_id", remote.ID), zap.Error(err))
	}

	return outcome, nil
}

// fetchPackages enriches every package stub with its detail. A package whose
// detail cannot be fetched is kept as its stub.
func (s *OrderSyncService) fetchPackages(ctx context.Context, remote *tiktok.Order, stubs []models.OrderPackage) ([]models.OrderPackage, error) {
	packages := make([]models.OrderPackage, 0, len(stubs))
	for _, stub := range stubs {
		packageID := stub.PackageID
		detail, err := Retry(ctx, s.settings.Retry, "get_package_detail", func(ctx context.Context) (*tiktok.PackageDetail, error) {
			return s.client.GetPackageDetail(ctx, packageID)
		})
		if err != nil {
			if IsUnauthorized(err) {
				return nil, err
			}
			s.logger.Warn("Package detail unavailable, keeping stub",
				zap.String("order_id", remote.ID),
				zap.String("package_id", packageID),
				zap.Error(err))
			packages = append(packages, stub)
			continue
		}
		packages = append(packages, enrichPackage(stub, detail))
	}
	return packages, nil
}

// SyncFulfillmentState refreshes can-split / must-split flags of orders
func (s *OrderSyncService) SyncFulfillmentState(ctx context.Context, orderIDs []string) error {
	attrs, err := Retry(ctx, s.settings.Retry, "get_split_attributes", func(ctx context.Context) ([]tiktok.SplitAttribute, error) {
		return s.client.GetSplitAttributes(ctx, orderIDs)
	})
	if err != nil {
		return err
	}

	for _, attr := range attrs {
		if err := s.orders.UpdateSplitAttributes(ctx, attr.OrderID, attr.CanSplit, attr.MustSplit); err != nil {
			return fmt.Errorf("failed to update split attributes of %s: %w", attr.OrderID, err)
		}
	}
	return nil
}

// fail records a run-level failure and emits the failure notifications
func (s *OrderSyncService) fail(ctx context.Context, opts SyncOptions, result *SyncResult, err error) {
	kind := Classify(err)
	result.Success = false
	result.Error = err.Error()
	result.ErrorCode = kind.String()

	util.SyncRunsTotal.WithLabelValues("failed").Inc()
	if kind != KindUnauthorized || len(result.Errors) == 0 {
		util.SyncErrorsTotal.WithLabelValues(kind.String()).Inc()
	}
	s.logger.Error("Order sync failed",
		zap.String("kind", kind.String()),
		zap.Int("processed", result.TotalOrdersProcessed),
		zap.Error(err))

	if opts.notificationsEnabled() {
		s.notifier.Notify(ctx, shopNotification(s.shop,
			models.NotificationOrderSyncFailed,
			"Order sync failed",
			fmt.Sprintf("Order sync for shop %s failed: %s", s.shop.ShopName, err.Error()),
			"",
			map[string]any{
				"errorCode":            kind.String(),
				"totalOrdersProcessed": result.TotalOrdersProcessed,
			}))
	}

	if kind != KindUnauthorized {
		return
	}

	if err := s.shops.UpdateShopStatus(ctx, s.shop.ShopID, models.ShopStatusExpired); err != nil {
		s.logger.Error("Failed to mark shop expired", zap.Error(err))
	}
	s.notifier.Notify(ctx, shopNotification(s.shop,
		models.NotificationShopReauthRequired,
		"Shop reauthorization required",
		fmt.Sprintf("Shop %s rejected the access token and must be reauthorized", s.shop.ShopName),
		"",
		map[string]any{"errorCode": CodeUnauthorized}))
}
