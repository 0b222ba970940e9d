package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/tiktok"
)

type fakeShops struct {
	mu      sync.Mutex
	shops   map[string]*models.ShopCredential
	order   []string
	updates map[string]string
}

func newFakeShops(shops ...models.ShopCredential) *fakeShops {
	f := &fakeShops{shops: map[string]*models.ShopCredential{}, updates: map[string]string{}}
	for i := range shops {
		shop := shops[i]
		f.shops[shop.ShopID] = &shop
		f.order = append(f.order, shop.ShopID)
	}
	return f
}

func (f *fakeShops) GetShopCredential(_ context.Context, shopID string) (*models.ShopCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	shop, ok := f.shops[shopID]
	if !ok {
		return nil, nil
	}
	copied := *shop
	return &copied, nil
}

func (f *fakeShops) ListActiveShops(_ context.Context, channel string) ([]models.ShopCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ShopCredential
	for _, id := range f.order {
		shop := f.shops[id]
		if shop.Status == models.ShopStatusActive && shop.Channel == channel {
			out = append(out, *shop)
		}
	}
	return out, nil
}

func (f *fakeShops) UpdateShopStatus(_ context.Context, shopID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[shopID] = status
	if shop, ok := f.shops[shopID]; ok {
		shop.Status = status
	}
	return nil
}

func (f *fakeShops) ExpireStaleTokens(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, shop := range f.shops {
		if shop.Status == models.ShopStatusActive && shop.AccessTokenExpiresAt != nil && shop.AccessTokenExpiresAt.Before(now) {
			shop.Status = models.ShopStatusExpired
			n++
		}
	}
	return n, nil
}

type fakeOrders struct {
	mu        sync.Mutex
	snapshots map[string]*models.OrderSnapshot
	creates   int
	replaces  int
	saveErr   map[string]error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{snapshots: map[string]*models.OrderSnapshot{}, saveErr: map[string]error{}}
}

func (f *fakeOrders) put(order models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[order.OrderID] = &models.OrderSnapshot{Order: order}
}

func (f *fakeOrders) get(orderID string) *models.OrderSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[orderID]
}

func (f *fakeOrders) FindOrder(_ context.Context, shopID, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[orderID]
	if !ok || snap.Order.ShopID != shopID {
		return nil, nil
	}
	order := snap.Order
	return &order, nil
}

func (f *fakeOrders) CreateOrderSnapshot(_ context.Context, snapshot *models.OrderSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.saveErr[snapshot.Order.OrderID]; err != nil {
		return err
	}
	if _, ok := f.snapshots[snapshot.Order.OrderID]; ok {
		return errors.New("duplicate key value violates unique constraint")
	}
	copied := *snapshot
	f.snapshots[snapshot.Order.OrderID] = &copied
	f.creates++
	return nil
}

func (f *fakeOrders) ReplaceOrderSnapshot(_ context.Context, snapshot *models.OrderSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.saveErr[snapshot.Order.OrderID]; err != nil {
		return err
	}
	copied := *snapshot
	f.snapshots[snapshot.Order.OrderID] = &copied
	f.replaces++
	return nil
}

func (f *fakeOrders) UpdateSplitAttributes(_ context.Context, orderID string, canSplit, mustSplit bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if snap, ok := f.snapshots[orderID]; ok {
		snap.Order.CanSplit = &canSplit
		snap.Order.MustSplit = &mustSplit
	}
	return nil
}

func (f *fakeOrders) PatchOrder(_ context.Context, orderID string, patch models.OrderPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	if patch.Status != nil {
		snap.Order.Status = *patch.Status
	}
	if patch.ChannelData != nil {
		snap.Order.ChannelData = *patch.ChannelData
	}
	if patch.CustomStatus != nil {
		snap.Order.CustomStatus = patch.CustomStatus
	}
	if patch.ClearCustomStatus {
		snap.Order.CustomStatus = nil
	}
	return nil
}

type fakeClient struct {
	mu          sync.Mutex
	orders      map[string]tiktok.Order
	pages       []tiktok.SearchOrdersResponse
	pageTokens  []string
	getBatches  [][]string
	priceCalls  []string
	priceErr    map[string]error
	packageErr  map[string]error
	packageCall []string
	splitErr    error
	splitCalls  int
}

func newFakeClient(orders ...tiktok.Order) *fakeClient {
	c := &fakeClient{
		orders:     map[string]tiktok.Order{},
		priceErr:   map[string]error{},
		packageErr: map[string]error{},
	}
	for _, o := range orders {
		c.orders[o.ID] = o
	}
	return c
}

func (c *fakeClient) SearchOrders(_ context.Context, req *tiktok.SearchOrdersRequest) (*tiktok.SearchOrdersResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageTokens = append(c.pageTokens, req.PageToken)
	if len(c.pages) == 0 {
		return &tiktok.SearchOrdersResponse{}, nil
	}
	page := c.pages[0]
	c.pages = c.pages[1:]
	return &page, nil
}

func (c *fakeClient) GetOrders(_ context.Context, orderIDs []string) ([]tiktok.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getBatches = append(c.getBatches, append([]string(nil), orderIDs...))
	var out []tiktok.Order
	for _, id := range orderIDs {
		if o, ok := c.orders[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (c *fakeClient) GetPackageDetail(_ context.Context, packageID string) (*tiktok.PackageDetail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packageCall = append(c.packageCall, packageID)
	if err := c.packageErr[packageID]; err != nil {
		return nil, err
	}
	return &tiktok.PackageDetail{
		PackageID:            packageID,
		PackageStatus:        "PROCESSING",
		ShippingProviderName: "UPS",
		TrackingNumber:       "TRK-" + packageID,
		Raw:                  json.RawMessage(`{"package_id":"` + packageID + `"}`),
	}, nil
}

func (c *fakeClient) GetPriceDetail(_ context.Context, orderID string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.priceCalls = append(c.priceCalls, orderID)
	if err := c.priceErr[orderID]; err != nil {
		return nil, err
	}
	return json.RawMessage(`{"total":"10.00"}`), nil
}

func (c *fakeClient) GetSplitAttributes(_ context.Context, orderIDs []string) ([]tiktok.SplitAttribute, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.splitCalls++
	if c.splitErr != nil {
		return nil, c.splitErr
	}
	out := make([]tiktok.SplitAttribute, 0, len(orderIDs))
	for _, id := range orderIDs {
		out = append(out, tiktok.SplitAttribute{OrderID: id, CanSplit: true})
	}
	return out, nil
}

type fakeNotifications struct {
	mu    sync.Mutex
	items []models.Notification
}

func (f *fakeNotifications) CreateNotification(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, *n)
	return nil
}

func (f *fakeNotifications) DeleteNotificationsBefore(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.items[:0]
	var deleted int64
	for _, n := range f.items {
		if n.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	f.items = kept
	return deleted, nil
}

func (f *fakeNotifications) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.items))
	for _, n := range f.items {
		out = append(out, n.Type)
	}
	return out
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]string
	seq  int
}

func (f *fakeLocker) AcquireShopLock(_ context.Context, shopID string, _ time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		f.held = map[string]string{}
	}
	if _, ok := f.held[shopID]; ok {
		return "", false, nil
	}
	f.seq++
	token := fmt.Sprintf("token-%d", f.seq)
	f.held[shopID] = token
	return token, true, nil
}

func (f *fakeLocker) ReleaseShopLock(_ context.Context, shopID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[shopID] == token {
		delete(f.held, shopID)
	}
	return nil
}

type fakeQueue struct {
	mu      sync.Mutex
	events  []models.WebhookEvent
	deleted []int64
	nextID  int64
}

func (f *fakeQueue) EnqueueWebhook(_ context.Context, payload string, verified bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.events = append(f.events, models.WebhookEvent{ID: f.nextID, Payload: payload, Verified: verified})
	return f.nextID, nil
}

func (f *fakeQueue) ListQueuedWebhooks(_ context.Context) ([]models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.WebhookEvent(nil), f.events...), nil
}

func (f *fakeQueue) DeleteWebhook(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	for i, e := range f.events {
		if e.ID == id {
			f.events = append(f.events[:i], f.events[i+1:]...)
			break
		}
	}
	return nil
}

type fakeSyncer struct {
	mu         sync.Mutex
	calls      []SyncOptions
	splitCalls [][]string
	result     *SyncResult
	onSync     func(opts SyncOptions)
}

func (f *fakeSyncer) SyncShopOrders(_ context.Context, opts SyncOptions) *SyncResult {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	onSync := f.onSync
	f.mu.Unlock()
	if onSync != nil {
		onSync(opts)
	}
	if f.result != nil {
		return f.result
	}
	return &SyncResult{Success: true, ShopID: opts.ShopID, Errors: []OrderError{}}
}

func (f *fakeSyncer) SyncFulfillmentState(_ context.Context, _ string, orderIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.splitCalls = append(f.splitCalls, orderIDs)
	return nil
}

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeDedup) MarkIfAbsent(_ context.Context, key string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

type fakeRefresher struct {
	orderIDs []string
}

func (f *fakeRefresher) RequestTransactionRefresh(_ context.Context, _ *models.ShopCredential, orderID string) error {
	f.orderIDs = append(f.orderIDs, orderID)
	return nil
}

type fakeJobs struct {
	created []*models.Job
}

func (f *fakeJobs) CreateJob(_ context.Context, job *models.Job) error {
	f.created = append(f.created, job)
	return nil
}

type fakeScheduler struct {
	scheduled []*models.Job
}

func (f *fakeScheduler) ScheduleJob(job *models.Job) error {
	f.scheduled = append(f.scheduled, job)
	return nil
}

func activeShop(shopID string) models.ShopCredential {
	return models.ShopCredential{
		ShopID:      shopID,
		ShopName:    "Shop " + shopID,
		Channel:     models.ChannelTikTok,
		UserID:      "user-1",
		AccessToken: "token",
		AppKey:      "key",
		AppSecret:   "secret",
		Status:      models.ShopStatusActive,
	}
}

func remoteOrder(id string, packageIDs ...string) tiktok.Order {
	o := tiktok.Order{
		ID:         id,
		Status:     models.OrderStatusAwaitingShipment,
		CreateTime: 1700000000,
		UpdateTime: 1700000100,
		Payment: &tiktok.Payment{
			Currency:    "USD",
			TotalAmount: "25.50",
			SubTotal:    "20.00",
			ShippingFee: "5.50",
		},
		RecipientAddress: &tiktok.Address{Name: "Jane", FullAddress: "1 Main St"},
		LineItems: []tiktok.LineItem{
			{ID: id + "-L1", ProductID: "P", SkuID: "S1", SalePrice: "10.00"},
			{ID: id + "-L2", ProductID: "P", SkuID: "S2", SalePrice: "10.00"},
		},
	}
	for _, p := range packageIDs {
		o.Packages = append(o.Packages, tiktok.PackageSummary{ID: p})
	}
	return o
}

func testSettings() SyncSettings {
	return SyncSettings{
		BatchSize:   50,
		IDBatchSize: 50,
		Retry:       RetryPolicy{Attempts: 3, Base: 0},
		Channel:     models.ChannelTikTok,
	}
}

func newTestFactory(shops *fakeShops, orders *fakeOrders, client *fakeClient, sink *fakeNotifications, locker ShopLocker) *OrderSyncFactory {
	return NewOrderSyncFactory(shops, orders, NewNotifier(sink, nil), locker,
		func(*tiktok.Config) (PlatformClient, error) { return client, nil },
		testSettings())
}
