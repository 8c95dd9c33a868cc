package models

import (
	"time"

	"gorm.io/datatypes"
)

type CallbackLogStatus string

const (
	CallbackLogStatusReceived     CallbackLogStatus = "received"
	CallbackLogStatusHandled      CallbackLogStatus = "handled"
	CallbackLogStatusHandleFailed CallbackLogStatus = "handle_failed"
)

// CallbackLog records every inbound gateway callback delivery for audit and
// troubleshooting, including duplicates.
type CallbackLog struct {
	ID                 string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	OrderID            string            `gorm:"column:order_id;type:varchar(64);not null;index:idx_callback_log_order_id" json:"order_id"`
	ExternalPaymentKey string            `gorm:"column:external_payment_key;type:varchar(128)" json:"external_payment_key"`
	TraceID            string            `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	ReceivedAt         time.Time         `gorm:"column:received_at" json:"received_at"`
	Data               datatypes.JSON    `gorm:"column:data;type:jsonb" json:"data"`
	Result             *datatypes.JSON   `gorm:"column:result;type:jsonb" json:"result"`
	Status             CallbackLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func (CallbackLog) TableName() string {
	return "callback_log"
}
