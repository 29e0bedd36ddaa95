package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExternalOrder is a spend against the wallet made on behalf of a partner
// store. The debit happens at creation time; cancel and refund credit back
// exactly the coin amount that was debited.
type ExternalOrder struct {
	ID              int             `json:"id" db:"id"`
	UserID          int             `json:"user_id" db:"user_id"`
	ExternalOrderID string          `json:"external_order_id" db:"external_order_id"`
	ExternalUserID  string          `json:"external_user_id" db:"external_user_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	CoinAmount      decimal.Decimal `json:"coin_amount" db:"coin_amount"`
	Rate            decimal.Decimal `json:"rate" db:"rate"`
	Status          string          `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

const (
	OrderStatusProcessing = "PROCESSING"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusCancelled  = "CANCELLED"
	OrderStatusRefunded   = "REFUNDED"
)
