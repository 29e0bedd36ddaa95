package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/shareco2/backend/internal/audit"
	"github.com/shareco2/backend/internal/models"
	"github.com/shareco2/backend/internal/points"
	"github.com/shopspring/decimal"
)

// OrderService handles partner-store external orders: a spend of carbon
// points on the user's behalf. The debit is consumed at order creation
// inside one database transaction, so an order row never exists without its
// matching ledger entry.
type OrderService struct {
	db        *sql.DB
	wallet    *WalletService
	converter *points.Converter
	audit     *audit.Logger
	validator *ValidationHelper
}

type createExternalOrderRequest struct {
	ExternalOrderID string `json:"externalOrderId" validate:"required,max=120"`
	ExternalUserID  string `json:"externalUserId" validate:"required,max=120"`
	UserID          int    `json:"userId" validate:"required,gt=0"`
	Amount          string `json:"amount" validate:"required"`
}

func NewOrderService(db *sql.DB, wallet *WalletService, converter *points.Converter) *OrderService {
	return &OrderService{
		db:        db,
		wallet:    wallet,
		converter: converter,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// CreateOrder debits the wallet for a partner purchase
// @Summary Create an external order
// @Description Convert the currency amount to points and debit the user's spendable balance atomically with the order record
// @Tags partner
// @Accept json
// @Produce json
// @Param request body createExternalOrderRequest true "External order data"
// @Success 201 {object} object{orderId=int,coinAmount=string,status=string}
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /partner/orders [post]
func (s *OrderService) CreateOrder(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req createExternalOrderRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		SendErrorResponse(w, "Amount must be a positive decimal", http.StatusBadRequest, nil)
		return
	}

	coins := s.converter.ToPoints(amount)
	if coins.IsZero() {
		sendServiceError(w, ErrAmountTooSmall)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[ORDER] Failed to begin transaction for external order %s: %v", req.ExternalOrderID, err)
		SendErrorResponse(w, "Failed to create order", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	var orderID int
	err = tx.QueryRow(`
		INSERT INTO external_orders (user_id, external_order_id, external_user_id, amount, coin_amount, rate, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id`,
		req.UserID, req.ExternalOrderID, req.ExternalUserID, amount, coins,
		s.converter.Rate(), models.OrderStatusProcessing, time.Now()).Scan(&orderID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			SendErrorResponse(w, "Order already exists", http.StatusConflict, nil)
			return
		}
		log.Printf("[ORDER] Failed to insert external order %s: %v", req.ExternalOrderID, err)
		SendErrorResponse(w, "Failed to create order", http.StatusInternalServerError, nil)
		return
	}

	movement := Movement{
		UserID:      req.UserID,
		CoinAmount:  coins,
		Amount:      amount,
		OrderID:     &orderID,
		Description: "Purchase via partner store",
		Metadata: map[string]string{
			"rate":              s.converter.Rate().String(),
			"external_order_id": req.ExternalOrderID,
		},
	}
	if err := s.wallet.DebitTx(tx, movement); err != nil {
		// Rollback removes the order row together with the failed debit.
		s.audit.LogFailure(req.UserID, req.ExternalOrderID, coins.String(), err)
		sendServiceError(w, err)
		return
	}

	if err := tx.Commit(); err != nil {
		s.audit.LogFailure(req.UserID, req.ExternalOrderID, coins.String(), err)
		SendErrorResponse(w, "Failed to create order", http.StatusInternalServerError, nil)
		return
	}

	s.wallet.FinalizeMutation(r.Context(), "DEBIT", movement, req.ExternalOrderID)
	s.audit.LogDebit(req.UserID, req.ExternalOrderID, coins.String(), "external order created")
	log.Printf("[ORDER] Created external order %s (id %d): debited %s points from user %d",
		req.ExternalOrderID, orderID, coins.String(), req.UserID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"orderId":    orderID,
		"coinAmount": coins.String(),
		"status":     models.OrderStatusProcessing,
	})
}

// CancelOrder cancels a processing order and refunds the debit
// @Summary Cancel an external order
// @Description Transition PROCESSING -> CANCELLED and credit back exactly the debited points
// @Tags partner
// @Produce json
// @Param orderId path string true "External order ID"
// @Success 200 {object} object{status=string}
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /partner/orders/{orderId}/cancel [post]
func (s *OrderService) CancelOrder(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, models.OrderStatusCancelled, true)
}

// RefundOrder refunds a processing order
// @Summary Refund an external order
// @Description Transition PROCESSING -> REFUNDED and credit back exactly the debited points
// @Tags partner
// @Produce json
// @Param orderId path string true "External order ID"
// @Success 200 {object} object{status=string}
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /partner/orders/{orderId}/refund [post]
func (s *OrderService) RefundOrder(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, models.OrderStatusRefunded, true)
}

// CompleteOrder marks a processing order fulfilled
// @Summary Complete an external order
// @Description Transition PROCESSING -> COMPLETED; no balance change
// @Tags partner
// @Produce json
// @Param orderId path string true "External order ID"
// @Success 200 {object} object{status=string}
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /partner/orders/{orderId}/complete [post]
func (s *OrderService) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, models.OrderStatusCompleted, false)
}

func (s *OrderService) settle(w http.ResponseWriter, r *http.Request, target string, refund bool) {
	externalOrderID := chi.URLParam(r, "orderId")
	if externalOrderID == "" {
		SendErrorResponse(w, "orderId is required", http.StatusBadRequest, nil)
		return
	}

	if err := s.transition(r.Context(), externalOrderID, target, refund); err != nil {
		if !errors.Is(err, ErrInvalidOrderState) && !errors.Is(err, ErrNotFound) {
			log.Printf("[ORDER] Failed to transition external order %s to %s: %v", externalOrderID, target, err)
		}
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": target})
}

// transition moves an order out of PROCESSING. Refunding targets credit back
// exactly the coin amount that was debited at creation, in the same database
// transaction as the status flip.
func (s *OrderService) transition(ctx context.Context, externalOrderID, target string, refund bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	order, err := s.lockOrder(tx, externalOrderID)
	if err != nil {
		return err
	}

	if order.Status != models.OrderStatusProcessing {
		return ErrInvalidOrderState
	}

	_, err = tx.Exec(`
		UPDATE external_orders
		SET status = $1, updated_at = $2
		WHERE id = $3`,
		target, time.Now(), order.ID)
	if err != nil {
		return err
	}

	var movement Movement
	if refund {
		movement = Movement{
			UserID:      order.UserID,
			CoinAmount:  order.CoinAmount,
			Amount:      order.Amount,
			OrderID:     &order.ID,
			Description: "Refund for partner order",
			Metadata: map[string]string{
				"external_order_id": externalOrderID,
				"final_status":      target,
			},
		}
		if err := s.wallet.RefundTx(tx, movement); err != nil {
			s.audit.LogFailure(order.UserID, externalOrderID, order.CoinAmount.String(), err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		s.audit.LogFailure(order.UserID, externalOrderID, order.CoinAmount.String(), err)
		return err
	}

	if refund {
		s.wallet.FinalizeMutation(ctx, "REFUND", movement, externalOrderID)
		s.audit.LogCredit(order.UserID, externalOrderID, order.CoinAmount.String(), "order "+target)
	}
	log.Printf("[ORDER] External order %s transitioned to %s", externalOrderID, target)

	return nil
}

func (s *OrderService) lockOrder(tx *sql.Tx, externalOrderID string) (*models.ExternalOrder, error) {
	order := &models.ExternalOrder{ExternalOrderID: externalOrderID}
	err := tx.QueryRow(`
		SELECT id, user_id, amount, coin_amount, status FROM external_orders
		WHERE external_order_id = $1
		FOR UPDATE`, externalOrderID).Scan(
		&order.ID, &order.UserID, &order.Amount, &order.CoinAmount, &order.Status)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return order, nil
}
