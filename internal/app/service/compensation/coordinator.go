package compensation

import (
	"context"
	"fmt"

	"github.com/fatflowers/payflow/internal/models"
	"github.com/fatflowers/payflow/pkg/logctx"
	"github.com/fatflowers/payflow/pkg/metrics"

	"go.uber.org/zap"
)

// Collaborator contracts. Their concurrency control is their own concern;
// each operation is consumed here as atomic.

type OrderStore interface {
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
	MarkPaid(ctx context.Context, orderID string) error
	MarkCancelled(ctx context.Context, orderID string) error
}

type StockStore interface {
	IncreaseStock(ctx context.Context, productID string, quantity int64) error
}

type PointLedger interface {
	Credit(ctx context.Context, userID string, amount int64) error
}

type CouponLedger interface {
	RevertUsage(ctx context.Context, issuedCouponID string) error
}

// Coordinator applies the order-side consequences of a terminal payment.
// Exactly-once execution is the caller's guarantee (the finalize CAS);
// this type only sequences the steps.
type Coordinator struct {
	orders  OrderStore
	stock   StockStore
	points  PointLedger
	coupons CouponLedger
	log     *zap.SugaredLogger
}

func NewCoordinator(orders OrderStore, stock StockStore, points PointLedger, coupons CouponLedger, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{orders: orders, stock: stock, points: points, coupons: coupons, log: log}
}

// OnPaid marks the order complete.
func (c *Coordinator) OnPaid(ctx context.Context, p *models.Payment) error {
	if err := c.orders.MarkPaid(ctx, p.OrderID); err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}
	metrics.CompensationTotal.WithLabelValues("order_paid").Inc()
	logctx.FromCtx(ctx, c.log).Infow("order completed", "order_id", p.OrderID, "payment_id", p.ID)
	return nil
}

// OnFailed cancels the order and reverses whatever it consumed: stock per
// line, points if any were used, the coupon if one was attached. Steps
// with nothing to reverse are skipped without error.
func (c *Coordinator) OnFailed(ctx context.Context, p *models.Payment) error {
	if err := c.orders.MarkCancelled(ctx, p.OrderID); err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	metrics.CompensationTotal.WithLabelValues("order_cancelled").Inc()

	order, err := c.orders.FindByID(ctx, p.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load order for compensation: %w", err)
	}

	for _, line := range order.Lines {
		if err := c.stock.IncreaseStock(ctx, line.ProductID, line.Quantity); err != nil {
			return fmt.Errorf("failed to restore stock for product %s: %w", line.ProductID, err)
		}
		metrics.CompensationTotal.WithLabelValues("stock_restored").Inc()
	}

	if p.UsedPoint > 0 {
		if err := c.points.Credit(ctx, p.UserID, p.UsedPoint); err != nil {
			return fmt.Errorf("failed to credit points back: %w", err)
		}
		metrics.CompensationTotal.WithLabelValues("point_credited").Inc()
	}

	if p.IssuedCouponID != nil {
		if err := c.coupons.RevertUsage(ctx, *p.IssuedCouponID); err != nil {
			return fmt.Errorf("failed to revert coupon usage: %w", err)
		}
		metrics.CompensationTotal.WithLabelValues("coupon_reverted").Inc()
	}

	logctx.FromCtx(ctx, c.log).Infow("order compensated",
		"order_id", p.OrderID, "payment_id", p.ID,
		"lines", len(order.Lines), "used_point", p.UsedPoint,
		"coupon", p.IssuedCouponID != nil)
	return nil
}
