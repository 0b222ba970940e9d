package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shop-sync-service/internal/models"
)

// GetShopCredential retrieves a shop by its platform shop id
func (s *Store) GetShopCredential(ctx context.Context, shopID string) (*models.ShopCredential, error) {
	var shop models.ShopCredential
	err := s.db.GetContext(ctx, &shop, "SELECT * FROM shop_credentials WHERE shop_id = $1", shopID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop %s: %w", shopID, err)
	}
	return &shop, nil
}

// ListActiveShops retrieves the ACTIVE shops of a channel in id order
func (s *Store) ListActiveShops(ctx context.Context, channel string) ([]models.ShopCredential, error) {
	var shops []models.ShopCredential
	err := s.db.SelectContext(ctx, &shops,
		"SELECT * FROM shop_credentials WHERE channel = $1 AND status = $2 ORDER BY id",
		channel, models.ShopStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active shops: %w", err)
	}
	return shops, nil
}

// UpdateShopStatus updates shop status
func (s *Store) UpdateShopStatus(ctx context.Context, shopID, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE shop_credentials SET status = $1, updated_at = NOW() WHERE shop_id = $2",
		status, shopID)
	if err != nil {
		return fmt.Errorf("failed to update shop status: %w", err)
	}
	return expectRows(res, "shop "+shopID)
}

// ExpireStaleTokens flips ACTIVE shops whose token expired before now to EXPIRED
func (s *Store) ExpireStaleTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shop_credentials SET status = $1, updated_at = NOW()
		WHERE status = $2 AND access_token_expires_at IS NOT NULL AND access_token_expires_at < $3`,
		models.ShopStatusExpired, models.ShopStatusActive, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale tokens: %w", err)
	}
	return res.RowsAffected()
}
