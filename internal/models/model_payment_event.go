package models

import (
	"time"

	"github.com/fatflowers/payflow/pkg/types"

	"gorm.io/datatypes"
)

// PaymentEvent is an outbox row appended when a payment reaches a terminal
// state. Downstream consumers drain it; payflow only appends.
type PaymentEvent struct {
	ID        string                 `gorm:"column:id;primary_key;type:uuid" json:"id"`
	PaymentID string                 `gorm:"column:payment_id;type:uuid;not null;index:idx_payment_event_payment_id" json:"payment_id"`
	OrderID   string                 `gorm:"column:order_id;type:varchar(64);not null" json:"order_id"`
	Type      types.PaymentEventType `gorm:"column:type;type:varchar(64);not null" json:"type"`
	Payload   datatypes.JSON         `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

func (PaymentEvent) TableName() string {
	return "payment_event"
}
