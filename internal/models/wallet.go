package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's carbon point balances, split into the spendable
// partition and the reserved partition. One row per user, created together
// with the user record.
type Wallet struct {
	UserID    int             `json:"user_id" db:"user_id"`
	Spendable decimal.Decimal `json:"spendable" db:"spendable"`
	Reserved  decimal.Decimal `json:"reserved" db:"reserved"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Usable is the total balance available to the user.
func (w *Wallet) Usable() decimal.Decimal {
	return w.Spendable.Add(w.Reserved)
}

// Transaction is one immutable ledger entry. Rows are append-only: every
// wallet balance change writes exactly one of these in the same database
// transaction.
type Transaction struct {
	ID          int               `json:"id" db:"id"`
	UserID      int               `json:"user_id" db:"user_id"`
	Type        string            `json:"type" db:"type"` // CREDIT or DEBIT
	Amount      decimal.Decimal   `json:"amount" db:"amount"`
	CoinAmount  decimal.Decimal   `json:"coin_amount" db:"coin_amount"`
	PaymentID   *int              `json:"payment_id,omitempty" db:"payment_id"`
	OrderID     *int              `json:"order_id,omitempty" db:"order_id"`
	Description string            `json:"description" db:"description"`
	Metadata    map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}

const (
	TransactionTypeCredit = "CREDIT"
	TransactionTypeDebit  = "DEBIT"
)
