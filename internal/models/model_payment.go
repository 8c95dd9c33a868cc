package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/payflow/pkg/types"
)

var (
	// ErrNegativePaidAmount rejects payments whose deductions exceed the total.
	ErrNegativePaidAmount = errors.New("paid amount is negative")
	// ErrInvalidTransition signals a state-machine violation on a non-terminal record.
	ErrInvalidTransition = errors.New("invalid payment status transition")
)

// Payment is the authoritative record of one payment attempt for an order.
// All state-changing writes are conditioned on Version (optimistic CAS);
// PAID and FAILED are permanent, the row is never deleted.
type Payment struct {
	ID      string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	OrderID string `gorm:"column:order_id;type:varchar(64);not null;uniqueIndex:unique_order_id" json:"order_id"`
	UserID  string `gorm:"column:user_id;type:varchar(64);not null;index:idx_payment_user_id" json:"user_id"`

	TotalAmount    int64 `gorm:"column:total_amount;type:bigint;not null" json:"total_amount"`
	UsedPoint      int64 `gorm:"column:used_point;type:bigint;not null;default:0" json:"used_point"`
	CouponDiscount int64 `gorm:"column:coupon_discount;type:bigint;not null;default:0" json:"coupon_discount"`
	// PaidAmount = TotalAmount - UsedPoint - CouponDiscount, fixed at creation.
	PaidAmount int64 `gorm:"column:paid_amount;type:bigint;not null" json:"paid_amount"`

	IssuedCouponID *string `gorm:"column:issued_coupon_id;type:varchar(64)" json:"issued_coupon_id"`
	// MethodToken is the gateway's reusable billing token for the chosen
	// payment method. Raw card data is never stored; the token lets the
	// recovery sweep resubmit without the original request.
	MethodToken string `gorm:"column:method_token;type:varchar(128)" json:"-"`
	// ExternalPaymentKey is set iff the gateway accepted the submission.
	// A zero-amount payment goes straight to PAID with no key.
	ExternalPaymentKey *string `gorm:"column:external_payment_key;type:varchar(128);index:idx_payment_external_key" json:"external_payment_key"`

	Status         types.PaymentStatus `gorm:"column:status;type:varchar(32);not null;index:idx_payment_status_created,priority:1" json:"status"`
	FailureMessage *string             `gorm:"column:failure_message;type:varchar(512)" json:"failure_message"`

	// Version is bumped on every state-changing write; a stale version on
	// update means another writer already finalized the record.
	Version int64 `gorm:"column:version;type:bigint;not null;default:0" json:"version"`

	CreatedAt time.Time `gorm:"index:idx_payment_status_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}

// NewPayment builds a PENDING payment and derives PaidAmount.
func NewPayment(id, orderID, userID string, totalAmount, usedPoint, couponDiscount int64, issuedCouponID *string) (*Payment, error) {
	paid := totalAmount - usedPoint - couponDiscount
	if paid < 0 {
		return nil, fmt.Errorf("%w: total=%d point=%d coupon=%d", ErrNegativePaidAmount, totalAmount, usedPoint, couponDiscount)
	}
	return &Payment{
		ID:             id,
		OrderID:        orderID,
		UserID:         userID,
		TotalAmount:    totalAmount,
		UsedPoint:      usedPoint,
		CouponDiscount: couponDiscount,
		PaidAmount:     paid,
		IssuedCouponID: issuedCouponID,
		Status:         types.PaymentStatusPending,
	}, nil
}

func (p *Payment) IsTerminal() bool {
	return p.Status.IsTerminal()
}

// MarkInProgress records that a submission is in flight. The external key
// may be empty when the submission outcome is ambiguous.
func (p *Payment) MarkInProgress(externalKey string) error {
	if p.Status != types.PaymentStatusPending {
		return fmt.Errorf("%w: %s -> IN_PROGRESS", ErrInvalidTransition, p.Status)
	}
	p.Status = types.PaymentStatusInProgress
	if externalKey != "" {
		p.ExternalPaymentKey = &externalKey
	}
	return nil
}

// MarkPaid moves the record to PAID. Valid from PENDING (zero-amount
// short-circuit) and IN_PROGRESS.
func (p *Payment) MarkPaid(externalKey string) error {
	if p.IsTerminal() {
		return fmt.Errorf("%w: %s -> PAID", ErrInvalidTransition, p.Status)
	}
	p.Status = types.PaymentStatusPaid
	if externalKey != "" && p.ExternalPaymentKey == nil {
		p.ExternalPaymentKey = &externalKey
	}
	return nil
}

// MarkFailed moves the record to FAILED with a reason. Valid from PENDING
// (gateway unreachable at submission) and IN_PROGRESS.
func (p *Payment) MarkFailed(reason string) error {
	if p.IsTerminal() {
		return fmt.Errorf("%w: %s -> FAILED", ErrInvalidTransition, p.Status)
	}
	p.Status = types.PaymentStatusFailed
	p.FailureMessage = &reason
	return nil
}
