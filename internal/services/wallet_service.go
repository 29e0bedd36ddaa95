package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shareco2/backend/internal/middleware"
	"github.com/shareco2/backend/internal/models"
	"github.com/shareco2/backend/internal/notify"
	"github.com/shopspring/decimal"
)

const balanceCacheTTL = 30 * time.Second

// WalletService owns every write path to wallet balances. All other services
// mutate balances exclusively through the *Tx mutators below, inside their
// own database transactions.
type WalletService struct {
	db        *sql.DB
	redis     *redis.Client
	notifier  *notify.Publisher
	validator *ValidationHelper
}

// Movement describes one balance change: the point amount moved, the
// currency amount it derives from, and the ledger entry context.
type Movement struct {
	UserID      int
	CoinAmount  decimal.Decimal
	Amount      decimal.Decimal
	PaymentID   *int
	OrderID     *int
	Description string
	Metadata    map[string]string
}

func NewWalletService(db *sql.DB, redisClient *redis.Client) *WalletService {
	return &WalletService{
		db:        db,
		redis:     redisClient,
		notifier:  notify.NewPublisher(redisClient),
		validator: NewValidationHelper(),
	}
}

// CreditTx increases the spendable balance by the movement's coin amount and
// writes one CREDIT ledger entry, all inside the caller's transaction.
func (s *WalletService) CreditTx(tx *sql.Tx, m Movement) error {
	if !m.CoinAmount.IsPositive() {
		return ErrAmountTooSmall
	}

	wallet, err := s.lockWallet(tx, m.UserID)
	if err != nil {
		return err
	}

	if err := s.createLedgerEntry(tx, models.TransactionTypeCredit, m); err != nil {
		return err
	}

	return s.updateSpendable(tx, m.UserID, wallet.Spendable.Add(m.CoinAmount))
}

// DebitTx decreases the spendable balance by the movement's coin amount and
// writes one DEBIT ledger entry. Fails with ErrInsufficientBalance, aborting
// the caller's whole transaction, when spendable funds do not cover it.
func (s *WalletService) DebitTx(tx *sql.Tx, m Movement) error {
	if !m.CoinAmount.IsPositive() {
		return ErrAmountTooSmall
	}

	wallet, err := s.lockWallet(tx, m.UserID)
	if err != nil {
		return err
	}

	if wallet.Spendable.LessThan(m.CoinAmount) {
		return ErrInsufficientBalance
	}

	if err := s.createLedgerEntry(tx, models.TransactionTypeDebit, m); err != nil {
		return err
	}

	return s.updateSpendable(tx, m.UserID, wallet.Spendable.Sub(m.CoinAmount))
}

// RefundTx credits back a previously debited amount against its order.
func (s *WalletService) RefundTx(tx *sql.Tx, m Movement) error {
	if m.OrderID == nil {
		return fmt.Errorf("refund requires an order reference")
	}
	return s.CreditTx(tx, m)
}

// FinalizeMutation runs the post-commit side effects of a balance change:
// cache invalidation and the notification queue. Callers invoke it only
// after their transaction has committed.
func (s *WalletService) FinalizeMutation(ctx context.Context, kind string, m Movement, reference string) {
	s.invalidateBalanceCache(ctx, m.UserID)
	s.notifier.Publish(ctx, notify.WalletEvent{
		UserID:     m.UserID,
		Kind:       kind,
		CoinAmount: m.CoinAmount.String(),
		Reference:  reference,
		OccurredAt: time.Now(),
	})
}

// GetBalance returns the wallet's balance partitions
// @Summary Get wallet balance
// @Description Retrieve the authenticated user's spendable, reserved and usable point balances
// @Tags wallet
// @Produce json
// @Success 200 {object} object{spendable=string,reserved=string,usable=string}
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /wallet/balance [get]
func (s *WalletService) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if cached := s.cachedBalance(r.Context(), userID); cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)
		return
	}

	wallet, err := s.fetchWallet(userID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Wallet not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[WALLET] Failed to fetch wallet for user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		}
		return
	}

	body, _ := json.Marshal(map[string]string{
		"spendable": wallet.Spendable.String(),
		"reserved":  wallet.Reserved.String(),
		"usable":    wallet.Usable().String(),
	})

	s.cacheBalance(r.Context(), userID, body)

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// ListTransactions returns the user's ledger history
// @Summary List wallet transactions
// @Description Retrieve the authenticated user's ledger entries, newest first
// @Tags wallet
// @Produce json
// @Param page query int false "Page number (default: 1)"
// @Param limit query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} object{transactions=[]models.Transaction,count=int}
// @Failure 401 {object} ErrorResponse
// @Router /wallet/transactions [get]
func (s *WalletService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Page  int `validate:"min=1"`
		Limit int `validate:"min=1,max=100"`
	}
	req.Page = 1
	req.Limit = 20

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil {
			req.Page = p
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			req.Limit = l
		}
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	transactions, err := s.fetchTransactions(userID, req.Page, req.Limit)
	if err != nil {
		log.Printf("[WALLET] Failed to fetch transactions for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// Transaction-scoped helpers

func (s *WalletService) lockWallet(tx *sql.Tx, userID int) (*models.Wallet, error) {
	wallet := &models.Wallet{UserID: userID}
	err := tx.QueryRow(`
		SELECT spendable, reserved FROM wallets
		WHERE user_id = $1
		FOR UPDATE`, userID).Scan(&wallet.Spendable, &wallet.Reserved)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return wallet, nil
}

func (s *WalletService) createLedgerEntry(tx *sql.Tx, entryType string, m Movement) error {
	var metadata []byte
	if m.Metadata != nil {
		var err error
		metadata, err = json.Marshal(m.Metadata)
		if err != nil {
			return err
		}
	}

	_, err := tx.Exec(`
		INSERT INTO transactions (user_id, type, amount, coin_amount, payment_id, order_id, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.UserID, entryType, m.Amount, m.CoinAmount, m.PaymentID, m.OrderID, m.Description, metadata, time.Now())
	return err
}

func (s *WalletService) updateSpendable(tx *sql.Tx, userID int, newSpendable decimal.Decimal) error {
	result, err := tx.Exec(`
		UPDATE wallets
		SET spendable = $1, updated_at = $2
		WHERE user_id = $3`,
		newSpendable, time.Now(), userID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("wallet update affected no rows for user %d", userID)
	}

	return nil
}

// Read helpers

func (s *WalletService) fetchWallet(userID int) (*models.Wallet, error) {
	wallet := &models.Wallet{UserID: userID}
	err := s.db.QueryRow(`
		SELECT spendable, reserved, created_at, updated_at FROM wallets
		WHERE user_id = $1`, userID).Scan(
		&wallet.Spendable, &wallet.Reserved, &wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *WalletService) fetchTransactions(userID, page, limit int) ([]models.Transaction, error) {
	offset := (page - 1) * limit
	rows, err := s.db.Query(`
		SELECT id, user_id, type, amount, coin_amount, payment_id, order_id, COALESCE(description, ''), metadata, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var entry models.Transaction
		var metadata []byte
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.Type, &entry.Amount, &entry.CoinAmount,
			&entry.PaymentID, &entry.OrderID, &entry.Description, &metadata, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				log.Printf("[WALLET] Bad metadata on transaction %d: %v", entry.ID, err)
			}
		}
		transactions = append(transactions, entry)
	}

	return transactions, rows.Err()
}

// Balance cache

func balanceCacheKey(userID int) string {
	return fmt.Sprintf("wallet:balance:%d", userID)
}

func (s *WalletService) cachedBalance(ctx context.Context, userID int) []byte {
	if s.redis == nil {
		return nil
	}
	data, err := s.redis.Get(ctx, balanceCacheKey(userID)).Bytes()
	if err != nil {
		return nil
	}
	return data
}

func (s *WalletService) cacheBalance(ctx context.Context, userID int, body []byte) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, balanceCacheKey(userID), body, balanceCacheTTL).Err(); err != nil {
		log.Printf("[WALLET] Failed to cache balance for user %d: %v", userID, err)
	}
}

func (s *WalletService) invalidateBalanceCache(ctx context.Context, userID int) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, balanceCacheKey(userID)).Err(); err != nil {
		log.Printf("[WALLET] Failed to invalidate balance cache for user %d: %v", userID, err)
	}
}
