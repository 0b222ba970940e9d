package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"shop-sync-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewStoreWithDB(sqlx.NewDb(mockDB, "postgres")), mock
}

func TestStore_GetShopCredential(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store, mock := newMockStore(t)
		rows := sqlmock.NewRows([]string{"id", "shop_id", "channel", "user_id", "access_token", "app_key", "app_secret", "status"}).
			AddRow(1, "S1", models.ChannelTikTok, "user-1", "token", "key", "secret", models.ShopStatusActive)
		mock.ExpectQuery(`SELECT \* FROM shop_credentials WHERE shop_id = \$1`).
			WithArgs("S1").
			WillReturnRows(rows)

		shop, err := store.GetShopCredential(context.Background(), "S1")
		require.NoError(t, err)
		require.NotNil(t, shop)
		assert.Equal(t, "S1", shop.ShopID)
		assert.Equal(t, models.ShopStatusActive, shop.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing returns nil", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT \* FROM shop_credentials`).
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		shop, err := store.GetShopCredential(context.Background(), "nope")
		assert.NoError(t, err)
		assert.Nil(t, shop)
	})

	t.Run("database error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT \* FROM shop_credentials`).
			WillReturnError(errors.New("connection reset"))

		_, err := store.GetShopCredential(context.Background(), "S1")
		assert.Error(t, err)
	})
}

func TestStore_ShopStatus(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE shop_credentials SET status = \$1`).
		WithArgs(models.ShopStatusExpired, "S1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE shop_credentials SET status = \$1`).
		WithArgs(models.ShopStatusExpired, "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE shop_credentials SET status = \$1, updated_at = NOW\(\)\s+WHERE status = \$2 AND access_token_expires_at IS NOT NULL`).
		WithArgs(models.ShopStatusExpired, models.ShopStatusActive, now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, store.UpdateShopStatus(context.Background(), "S1", models.ShopStatusExpired))
	assert.ErrorIs(t, store.UpdateShopStatus(context.Background(), "gone", models.ShopStatusExpired), ErrNotFound)

	expired, err := store.ExpireStaleTokens(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func testSnapshot() *models.OrderSnapshot {
	return &models.OrderSnapshot{
		Order: models.Order{
			ID:          "local-1",
			OrderID:     "O1",
			ShopID:      "S1",
			Channel:     models.ChannelTikTok,
			Status:      models.OrderStatusAwaitingShipment,
			TotalAmount: decimal.RequireFromString("25.50"),
			ChannelData: "{}",
		},
		LineItems: []models.OrderLineItem{
			{ID: "li-1", LineItemID: "L1", Quantity: 1},
			{ID: "li-2", LineItemID: "L2", Quantity: 1},
		},
		Payment:  &models.OrderPayment{ID: "pay-1"},
		Packages: []models.OrderPackage{{ID: "pk-1", PackageID: "PK1"}},
	}
}

func TestStore_CreateOrderSnapshot(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO orders`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_line_items`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_line_items`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_payments`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_packages`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	snapshot := testSnapshot()
	require.NoError(t, store.CreateOrderSnapshot(context.Background(), snapshot))
	assert.Equal(t, "local-1", snapshot.LineItems[1].OrderID)
	assert.Equal(t, "local-1", snapshot.Packages[0].OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateOrderSnapshot_RollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO orders`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_line_items`).WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := store.CreateOrderSnapshot(context.Background(), testSnapshot())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReplaceOrderSnapshot(t *testing.T) {
	t.Run("replaces associations", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE orders SET`).WillReturnResult(sqlmock.NewResult(0, 1))
		for _, table := range associationTables {
			mock.ExpectExec(`DELETE FROM ` + table + ` WHERE order_id = \$1`).
				WithArgs("local-1").
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectExec(`INSERT INTO order_line_items`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO order_line_items`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO order_payments`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO order_packages`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.ReplaceOrderSnapshot(context.Background(), testSnapshot()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing order", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE orders SET`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.ReplaceOrderSnapshot(context.Background(), testSnapshot())
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_FindOrder(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "order_id", "shop_id", "status", "total_amount", "channel_data"}).
		AddRow("local-1", "O1", "S1", models.OrderStatusDelivered, "25.50", "{}")
	mock.ExpectQuery(`SELECT \* FROM orders WHERE shop_id = \$1 AND order_id = \$2`).
		WithArgs("S1", "O1").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT \* FROM orders`).
		WithArgs("S1", "O2").
		WillReturnError(sql.ErrNoRows)

	order, err := store.FindOrder(context.Background(), "S1", "O1")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "local-1", order.ID)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("25.5")))

	order, err = store.FindOrder(context.Background(), "S1", "O2")
	assert.NoError(t, err)
	assert.Nil(t, order)
}

func TestStore_PatchOrder(t *testing.T) {
	status := models.OrderStatusCancelled
	channelData := `{"cancellation":{}}`
	custom := models.CustomStatusDelivered

	tests := []struct {
		name  string
		patch models.OrderPatch
		query string
		args  []driver.Value
	}{
		{
			name:  "status and channel data clearing custom status",
			patch: models.OrderPatch{Status: &status, ChannelData: &channelData, ClearCustomStatus: true},
			query: `UPDATE orders SET status = \$1, channel_data = \$2, custom_status = NULL, updated_at = NOW\(\) WHERE order_id = \$3`,
			args:  []driver.Value{status, channelData, "O1"},
		},
		{
			name:  "custom status only",
			patch: models.OrderPatch{CustomStatus: &custom},
			query: `UPDATE orders SET custom_status = \$1, updated_at = NOW\(\) WHERE order_id = \$2`,
			args:  []driver.Value{custom, "O1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectExec(tt.query).WithArgs(tt.args...).WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, store.PatchOrder(context.Background(), "O1", tt.patch))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("empty patch is a no-op", func(t *testing.T) {
		store, mock := newMockStore(t)
		require.NoError(t, store.PatchOrder(context.Background(), "O1", models.OrderPatch{}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Webhooks(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO webhook_events \(payload, verified\) VALUES \(\$1, \$2\) RETURNING id`).
		WithArgs(`{"type":1}`, true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectQuery(`SELECT \* FROM webhook_events ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payload", "verified", "created_at"}).
			AddRow(42, `{"type":1}`, true, time.Now()))
	mock.ExpectExec(`DELETE FROM webhook_events WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.EnqueueWebhook(context.Background(), `{"type":1}`, true)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	events, err := store.ListQueuedWebhooks(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Verified)

	require.NoError(t, store.DeleteWebhook(context.Background(), 42))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateNotification(t *testing.T) {
	store, mock := newMockStore(t)
	shopID := "S1"
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs("N1", models.NotificationShopReauthRequired, "title", "message", "user-1", &shopID, nil, sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.CreateNotification(context.Background(), &models.Notification{
		ID:        "N1",
		Type:      models.NotificationShopReauthRequired,
		Title:     "title",
		Message:   "message",
		UserID:    "user-1",
		ShopID:    &shopID,
		Data:      map[string]any{"errorCode": "UNAUTHORIZED_TIKTOK_API"},
		CreatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteExecutionsBefore(t *testing.T) {
	store, mock := newMockStore(t)
	before := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM job_logs WHERE created_at < \$1`).WithArgs(before).WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectExec(`DELETE FROM job_executions WHERE started_at < \$1`).WithArgs(before).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	deleted, err := store.DeleteExecutionsBefore(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Jobs(t *testing.T) {
	store, mock := newMockStore(t)
	cronExpr := "@daily"
	job := &models.Job{
		ID:             "J1",
		Name:           "sync all",
		Type:           models.JobTypeFunctionCall,
		TriggerType:    models.TriggerTypeCron,
		Config:         `{"functionName":"sync-all-shops"}`,
		Status:         models.JobStatusActive,
		CronExpression: &cronExpr,
	}

	mock.ExpectExec(`INSERT INTO jobs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`UPDATE jobs SET status = \$1`).
		WithArgs(models.JobStatusCompleted, "J1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.CreateJob(context.Background(), job))

	got, err := store.GetJob(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.UpdateJobStatus(context.Background(), "J1", models.JobStatusCompleted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateJobs(t *testing.T) {
	jobs := []*models.Job{
		{ID: "J1", Name: "first", Type: models.JobTypeFunctionCall, TriggerType: models.TriggerTypeInterval, Config: `{}`, Status: models.JobStatusActive},
		{ID: "J2", Name: "second", Type: models.JobTypeFunctionCall, TriggerType: models.TriggerTypeInterval, Config: `{}`, Status: models.JobStatusActive},
	}

	t.Run("commits all jobs", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO jobs`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO jobs`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.CreateJobs(context.Background(), jobs))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on a failed insert", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO jobs`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO jobs`).WillReturnError(errors.New("duplicate key"))
		mock.ExpectRollback()

		err := store.CreateJobs(context.Background(), jobs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "second")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_GetOrderPackages(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "order_id", "package_id", "status"}).
		AddRow("p-1", "local-1", "P1", "PROCESSING").
		AddRow("p-2", "local-1", "P2", "SHIPPED")
	mock.ExpectQuery(`SELECT \* FROM order_packages WHERE order_id = \$1 ORDER BY package_id`).
		WithArgs("local-1").
		WillReturnRows(rows)

	packages, err := store.GetOrderPackages(context.Background(), "local-1")
	require.NoError(t, err)
	require.Len(t, packages, 2)
	assert.Equal(t, "P2", packages[1].PackageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListExecutions(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "job_id", "status", "triggered_by", "started_at"}).
		AddRow("e-2", "j1", models.ExecutionStatusFailed, models.TriggeredByManual, time.Now()).
		AddRow("e-1", "j1", models.ExecutionStatusSuccess, models.TriggeredByScheduled, time.Now().Add(-time.Hour))
	mock.ExpectQuery(`SELECT \* FROM job_executions WHERE job_id = \$1 ORDER BY started_at DESC LIMIT \$2`).
		WithArgs("j1", 10).
		WillReturnRows(rows)

	execs, err := store.ListExecutions(context.Background(), "j1", 10)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, models.ExecutionStatusFailed, execs[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
