package pgw

import (
	"time"

	"github.com/fatflowers/payflow/pkg/types"
)

// SubmitRequest is the wire payload for a payment submission. Either
// CardInfo or MethodToken identifies the payment method; the token wins
// when both are present.
type SubmitRequest struct {
	OrderRef    string   `json:"order_ref"`
	Amount      int64    `json:"amount"`
	CardInfo    CardInfo `json:"card_info"`
	MethodToken string   `json:"method_token,omitempty"`
	CallbackURL string   `json:"callback_url,omitempty"`
}

type CardInfo struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	Holder string `json:"holder,omitempty"`
}

type SubmitResponse struct {
	TransactionKey string `json:"transaction_key"`
}

// Transaction is the gateway's authoritative view of one payment attempt.
type Transaction struct {
	TransactionKey string                `json:"transaction_key"`
	OrderRef       string                `json:"order_ref"`
	Status         types.GatewayTxStatus `json:"status"`
	Reason         string                `json:"reason,omitempty"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
