// Package audit emits structured JSON log lines for every event that touches
// money, with enough context (user, order/payment, amount) to support manual
// reconciliation.
package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	UserID    int       `json:"user_id"`
	PaymentID string    `json:"payment_id,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

// LogCredit records a successful wallet credit.
func (a *Logger) LogCredit(userID int, reference, amount, reason string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "CREDIT",
		UserID:    userID,
		PaymentID: reference,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   map[string]string{"reason": reason},
	})
}

// LogDebit records a successful wallet debit.
func (a *Logger) LogDebit(userID int, orderID, amount, reason string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "DEBIT",
		UserID:    userID,
		OrderID:   orderID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   map[string]string{"reason": reason},
	})
}

// LogFailure records a failed money operation.
func (a *Logger) LogFailure(userID int, reference, amount string, err error) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "FAILURE",
		UserID:    userID,
		OrderID:   reference,
		Amount:    amount,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

// LogSignatureRejected records an externally supplied credential that failed
// verification. Never retried; kept for audit.
func (a *Logger) LogSignatureRejected(source, reference string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "SIGNATURE_REJECTED",
		OrderID:   reference,
		Status:    "FAILED",
		Details:   map[string]string{"source": source},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
