package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a money-in record backed by a payment gateway order. The row is
// created when checkout is initiated and finalized by either the gateway
// webhook or the client verification callback, whichever lands first.
type Payment struct {
	ID               int             `json:"id" db:"id"`
	UserID           int             `json:"user_id" db:"user_id"`
	GatewayOrderID   string          `json:"gateway_order_id" db:"gateway_order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id" db:"gateway_payment_id"`
	Signature        string          `json:"signature" db:"signature"`
	Status           string          `json:"status" db:"status"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	CoinAmount       decimal.Decimal `json:"coin_amount" db:"coin_amount"`
	Rate             decimal.Decimal `json:"rate" db:"rate"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusCancelled = "CANCELLED"
	PaymentStatusFailed    = "FAILED"
)
