package types

// PaymentStatus is the lifecycle state of a payment record.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusInProgress PaymentStatus = "IN_PROGRESS"
	PaymentStatusPaid       PaymentStatus = "PAID"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// IsTerminal reports whether no further transition is permitted.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed
}

// GatewayTxStatus is the transaction status reported by the payment gateway.
type GatewayTxStatus string

const (
	GatewayTxStatusSuccess GatewayTxStatus = "SUCCESS"
	GatewayTxStatusFailed  GatewayTxStatus = "FAILED"
	GatewayTxStatusPending GatewayTxStatus = "PENDING"
)

// OrderStatus is the lifecycle state of an order as far as payment is concerned.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// PaymentEventType identifies outbox event kinds emitted on terminal transitions.
type PaymentEventType string

const (
	PaymentEventTypePaid   PaymentEventType = "payment.paid"
	PaymentEventTypeFailed PaymentEventType = "payment.failed"
)
