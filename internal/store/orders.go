package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shop-sync-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const insertOrderQuery = `
	INSERT INTO orders (
		id, order_id, shop_id, channel, user_id, status, custom_status, buyer_email, buyer_message,
		currency, total_amount, create_time, update_time, paid_time, delivery_time,
		shipping_due_time, collection_due_time, delivery_due_time, cancel_order_sla_time,
		delivery_sla_time, rts_sla_time, tts_sla_time, can_split, must_split, channel_data,
		created_at, updated_at
	) VALUES (
		:id, :order_id, :shop_id, :channel, :user_id, :status, :custom_status, :buyer_email, :buyer_message,
		:currency, :total_amount, :create_time, :update_time, :paid_time, :delivery_time,
		:shipping_due_time, :collection_due_time, :delivery_due_time, :cancel_order_sla_time,
		:delivery_sla_time, :rts_sla_time, :tts_sla_time, :can_split, :must_split, :channel_data,
		NOW(), NOW()
	)`

const updateOrderQuery = `
	UPDATE orders SET
		shop_id = :shop_id, channel = :channel, user_id = :user_id, status = :status,
		custom_status = :custom_status, buyer_email = :buyer_email, buyer_message = :buyer_message,
		currency = :currency, total_amount = :total_amount, create_time = :create_time,
		update_time = :update_time, paid_time = :paid_time, delivery_time = :delivery_time,
		shipping_due_time = :shipping_due_time, collection_due_time = :collection_due_time,
		delivery_due_time = :delivery_due_time, cancel_order_sla_time = :cancel_order_sla_time,
		delivery_sla_time = :delivery_sla_time, rts_sla_time = :rts_sla_time, tts_sla_time = :tts_sla_time,
		can_split = :can_split, must_split = :must_split, channel_data = :channel_data, updated_at = NOW()
	WHERE id = :id`

const insertLineItemQuery = `
	INSERT INTO order_line_items (
		id, order_id, line_item_id, product_id, product_name, sku_id, sku_name, seller_sku,
		quantity, sale_price, original_price, display_status, package_id, channel_data
	) VALUES (
		:id, :order_id, :line_item_id, :product_id, :product_name, :sku_id, :sku_name, :seller_sku,
		:quantity, :sale_price, :original_price, :display_status, :package_id, :channel_data
	)`

const insertPaymentQuery = `
	INSERT INTO order_payments (
		id, order_id, currency, total_amount, sub_total, shipping_fee,
		seller_discount, platform_discount, tax, channel_data
	) VALUES (
		:id, :order_id, :currency, :total_amount, :sub_total, :shipping_fee,
		:seller_discount, :platform_discount, :tax, :channel_data
	)`

const insertAddressQuery = `
	INSERT INTO order_addresses (
		id, order_id, name, phone, full_address, postal_code, region_code, channel_data
	) VALUES (
		:id, :order_id, :name, :phone, :full_address, :postal_code, :region_code, :channel_data
	)`

const insertPackageQuery = `
	INSERT INTO order_packages (
		id, order_id, package_id, status, shipping_provider_id, shipping_provider_name,
		tracking_number, fetch_success, channel_data
	) VALUES (
		:id, :order_id, :package_id, :status, :shipping_provider_id, :shipping_provider_name,
		:tracking_number, :fetch_success, :channel_data
	)`

// associationTables are cleared before a snapshot is rewritten
var associationTables = []string{"order_line_items", "order_payments", "order_addresses", "order_packages"}

// FindOrder retrieves an order of a shop by its platform order id
func (s *Store) FindOrder(ctx context.Context, shopID, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE shop_id = $1 AND order_id = $2", shopID, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order %s: %w", orderID, err)
	}
	return &order, nil
}

// GetOrderPackages retrieves the packages of an order by local order id
func (s *Store) GetOrderPackages(ctx context.Context, id string) ([]models.OrderPackage, error) {
	var packages []models.OrderPackage
	err := s.db.SelectContext(ctx, &packages,
		"SELECT * FROM order_packages WHERE order_id = $1 ORDER BY package_id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order packages: %w", err)
	}
	return packages, nil
}

// CreateOrderSnapshot inserts an order and all of its associations in one transaction
func (s *Store) CreateOrderSnapshot(ctx context.Context, snapshot *models.OrderSnapshot) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertOrderQuery, &snapshot.Order); err != nil {
			return fmt.Errorf("failed to insert order %s: %w", snapshot.Order.OrderID, err)
		}
		return insertAssociations(ctx, tx, snapshot)
	})
}

// ReplaceOrderSnapshot updates an order and recreates its associations in one transaction
func (s *Store) ReplaceOrderSnapshot(ctx context.Context, snapshot *models.OrderSnapshot) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, updateOrderQuery, &snapshot.Order)
		if err != nil {
			return fmt.Errorf("failed to update order %s: %w", snapshot.Order.OrderID, err)
		}
		if err := expectRows(res, "order "+snapshot.Order.OrderID); err != nil {
			return err
		}

		for _, table := range associationTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE order_id = $1", snapshot.Order.ID); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return insertAssociations(ctx, tx, snapshot)
	})
}

func insertAssociations(ctx context.Context, tx *sqlx.Tx, snapshot *models.OrderSnapshot) error {
	orderID := snapshot.Order.ID

	for i := range snapshot.LineItems {
		item := &snapshot.LineItems[i]
		item.OrderID = orderID
		if _, err := tx.NamedExecContext(ctx, insertLineItemQuery, item); err != nil {
			return fmt.Errorf("failed to insert line item %s: %w", item.LineItemID, err)
		}
	}

	if snapshot.Payment != nil {
		snapshot.Payment.OrderID = orderID
		if _, err := tx.NamedExecContext(ctx, insertPaymentQuery, snapshot.Payment); err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
	}

	if snapshot.Address != nil {
		snapshot.Address.OrderID = orderID
		if _, err := tx.NamedExecContext(ctx, insertAddressQuery, snapshot.Address); err != nil {
			return fmt.Errorf("failed to insert address: %w", err)
		}
	}

	for i := range snapshot.Packages {
		pkg := &snapshot.Packages[i]
		pkg.OrderID = orderID
		if _, err := tx.NamedExecContext(ctx, insertPackageQuery, pkg); err != nil {
			return fmt.Errorf("failed to insert package %s: %w", pkg.PackageID, err)
		}
	}

	return nil
}

// UpdateSplitAttributes stores the split flags of an order
func (s *Store) UpdateSplitAttributes(ctx context.Context, orderID string, canSplit, mustSplit bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET can_split = $1, must_split = $2, updated_at = NOW() WHERE order_id = $3",
		canSplit, mustSplit, orderID)
	if err != nil {
		return fmt.Errorf("failed to update split attributes: %w", err)
	}
	return expectRows(res, "order "+orderID)
}

// PatchOrder applies the non-nil fields of a patch to an order
func (s *Store) PatchOrder(ctx context.Context, orderID string, patch models.OrderPatch) error {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.ChannelData != nil {
		add("channel_data", *patch.ChannelData)
	}
	if patch.ClearCustomStatus {
		sets = append(sets, "custom_status = NULL")
	} else if patch.CustomStatus != nil {
		add("custom_status", *patch.CustomStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, orderID)

	query := fmt.Sprintf("UPDATE orders SET %s WHERE order_id = $%d", strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to patch order %s: %w", orderID, err)
	}
	return expectRows(res, "order "+orderID)
}
