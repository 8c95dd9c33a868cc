package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatflowers/payflow/internal/app/service/compensation"
	"github.com/fatflowers/payflow/internal/models"
	"github.com/fatflowers/payflow/pkg/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORM-backed reference implementations of the compensation collaborators.
// Balance-style updates are single atomic UPDATE expressions so concurrent
// compensations of different payments never lose increments.

var ErrOrderNotFound = errors.New("order not found")

type orderStore struct{ db *gorm.DB }

func NewOrderStore(db *gorm.DB) compensation.OrderStore {
	return &orderStore{db: db}
}

func (s *orderStore) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	var o models.Order
	if err := s.db.WithContext(ctx).Preload("Lines").Where("id = ?", orderID).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (s *orderStore) MarkPaid(ctx context.Context, orderID string) error {
	return s.setStatus(ctx, orderID, types.OrderStatusPaid)
}

func (s *orderStore) MarkCancelled(ctx context.Context, orderID string) error {
	return s.setStatus(ctx, orderID, types.OrderStatusCancelled)
}

func (s *orderStore) setStatus(ctx context.Context, orderID string, status types.OrderStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

type stockStore struct{ db *gorm.DB }

func NewStockStore(db *gorm.DB) compensation.StockStore {
	return &stockStore{db: db}
}

func (s *stockStore) IncreaseStock(ctx context.Context, productID string, quantity int64) error {
	res := s.db.WithContext(ctx).Model(&models.ProductStock{}).
		Where("product_id = ?", productID).
		Update("quantity", gorm.Expr("quantity + ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("failed to increase stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product stock row missing: %s", productID)
	}
	return nil
}

type pointLedger struct{ db *gorm.DB }

func NewPointLedger(db *gorm.DB) compensation.PointLedger {
	return &pointLedger{db: db}
}

func (s *pointLedger) Credit(ctx context.Context, userID string, amount int64) error {
	// Upsert: a user without an account row yet simply gets one.
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{"balance": gorm.Expr("point_account.balance + ?", amount)}),
	}).Create(&models.PointAccount{UserID: userID, Balance: amount}).Error
	if err != nil {
		return fmt.Errorf("failed to credit points: %w", err)
	}
	return nil
}

type couponLedger struct{ db *gorm.DB }

func NewCouponLedger(db *gorm.DB) compensation.CouponLedger {
	return &couponLedger{db: db}
}

func (s *couponLedger) RevertUsage(ctx context.Context, issuedCouponID string) error {
	res := s.db.WithContext(ctx).Model(&models.IssuedCoupon{}).
		Where("id = ?", issuedCouponID).
		Updates(map[string]any{"used": false, "used_at": nil})
	if res.Error != nil {
		return fmt.Errorf("failed to revert coupon usage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("issued coupon not found: %s", issuedCouponID)
	}
	return nil
}
