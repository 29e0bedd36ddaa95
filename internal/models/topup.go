package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TopUpRequest is a manual cash top-up waiting for an admin decision.
// Approval credits the wallet at the rate in effect at approval time.
type TopUpRequest struct {
	ID           int             `json:"id" db:"id"`
	UserID       int             `json:"user_id" db:"user_id"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	PhoneNumber  string          `json:"phone_number" db:"phone_number"`
	Status       string          `json:"status" db:"status"`
	AdminComment string          `json:"admin_comment,omitempty" db:"admin_comment"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

const (
	TopUpStatusPending  = "PENDING"
	TopUpStatusApproved = "APPROVED"
	TopUpStatusRejected = "REJECTED"
)
