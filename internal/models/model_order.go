package models

import (
	"time"

	"github.com/fatflowers/payflow/pkg/types"
)

// Order is the payment-facing view of an order aggregate. Its own lifecycle
// lives elsewhere; payflow only flips it to PAID or CANCELLED.
type Order struct {
	ID        string            `gorm:"column:id;primary_key;type:uuid" json:"id"`
	UserID    string            `gorm:"column:user_id;type:varchar(64);not null;index:idx_order_user_id" json:"user_id"`
	Status    types.OrderStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	Lines     []OrderLine       `gorm:"foreignKey:OrderID" json:"lines"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (Order) TableName() string {
	return "order"
}

type OrderLine struct {
	ID        string    `gorm:"column:id;primary_key;type:uuid" json:"id"`
	OrderID   string    `gorm:"column:order_id;type:uuid;not null;index:idx_order_line_order_id" json:"order_id"`
	ProductID string    `gorm:"column:product_id;type:varchar(64);not null" json:"product_id"`
	Quantity  int64     `gorm:"column:quantity;type:bigint;not null" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

func (OrderLine) TableName() string {
	return "order_line"
}

// ProductStock is the per-product available quantity.
type ProductStock struct {
	ProductID string    `gorm:"column:product_id;primary_key;type:varchar(64)" json:"product_id"`
	Quantity  int64     `gorm:"column:quantity;type:bigint;not null" json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProductStock) TableName() string {
	return "product_stock"
}

// PointAccount is the per-user point balance.
type PointAccount struct {
	UserID    string    `gorm:"column:user_id;primary_key;type:varchar(64)" json:"user_id"`
	Balance   int64     `gorm:"column:balance;type:bigint;not null" json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PointAccount) TableName() string {
	return "point_account"
}

// IssuedCoupon tracks whether an issued coupon has been consumed.
type IssuedCoupon struct {
	ID        string     `gorm:"column:id;primary_key;type:varchar(64)" json:"id"`
	UserID    string     `gorm:"column:user_id;type:varchar(64);not null;index:idx_issued_coupon_user_id" json:"user_id"`
	Discount  int64      `gorm:"column:discount;type:bigint;not null" json:"discount"`
	Used      bool       `gorm:"column:used;not null;default:false" json:"used"`
	UsedAt    *time.Time `gorm:"column:used_at" json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (IssuedCoupon) TableName() string {
	return "issued_coupon"
}
