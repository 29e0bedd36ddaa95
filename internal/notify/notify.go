// Package notify hands wallet events to the pub/sub notification pipeline via
// a Redis list. The consumer (push / chat service) is a separate system.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const queueKey = "wallet_events"

type WalletEvent struct {
	UserID     int       `json:"user_id"`
	Kind       string    `json:"kind"` // CREDIT, DEBIT or REFUND
	CoinAmount string    `json:"coin_amount"`
	Reference  string    `json:"reference,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher struct {
	redis *redis.Client
}

func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redis: redisClient}
}

// Publish pushes the event onto the notification queue. Best effort: a
// missing Redis connection or push failure is logged and swallowed, since
// the ledger write has already committed.
func (p *Publisher) Publish(ctx context.Context, event WalletEvent) {
	if p.redis == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[NOTIFY] Failed to marshal wallet event: %v", err)
		return
	}

	if err := p.redis.RPush(ctx, queueKey, data).Err(); err != nil {
		log.Printf("[NOTIFY] Failed to queue wallet event for user %d: %v", event.UserID, err)
	}
}
