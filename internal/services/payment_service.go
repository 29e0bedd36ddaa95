package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shareco2/backend/internal/audit"
	"github.com/shareco2/backend/internal/middleware"
	"github.com/shareco2/backend/internal/models"
	"github.com/shareco2/backend/internal/points"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// PaymentGateway is the slice of the gateway client the payment service
// needs. Satisfied by gateway.Client.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error)
	VerifyCheckoutSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
	CheckoutLink(orderID string) string
}

// PaymentService reconciles gateway money-in events with the wallet ledger.
// The capture path is idempotent: the client verification callback and the
// asynchronous webhook race for the same payment, and whichever loses the
// race short-circuits against the COMPLETED status.
type PaymentService struct {
	db        *sql.DB
	wallet    *WalletService
	gateway   PaymentGateway
	converter *points.Converter
	audit     *audit.Logger
	validator *ValidationHelper
	currency  string
}

type createOrderRequest struct {
	Amount string `json:"amount" validate:"required"`
}

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"gatewayOrderId" validate:"required"`
	GatewayPaymentID string `json:"gatewayPaymentId" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		OrderID   string `json:"order_id"`
		PaymentID string `json:"payment_id"`
	} `json:"payload"`
}

func NewPaymentService(db *sql.DB, wallet *WalletService, gw PaymentGateway, converter *points.Converter) *PaymentService {
	return &PaymentService{
		db:        db,
		wallet:    wallet,
		gateway:   gw,
		converter: converter,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
		currency:  "EUR",
	}
}

// CreateOrder initiates a gateway checkout for a wallet top-up
// @Summary Create a top-up order
// @Description Create a pending payment and a gateway order for the given currency amount
// @Tags payments
// @Accept json
// @Produce json
// @Param request body createOrderRequest true "Top-up amount"
// @Success 201 {object} object{paymentId=int,gatewayOrderId=string,coinAmount=string,checkoutUrl=string,qrImage=string}
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /payments/order [post]
func (s *PaymentService) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req createOrderRequest
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

	receipt := uuid.NewString()
	gatewayOrderID, err := s.gateway.CreateOrder(r.Context(), amount, s.currency, receipt)
	if err != nil {
		log.Printf("[PAYMENT] Gateway order creation failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create payment order", http.StatusBadGateway, nil)
		return
	}

	var paymentID int
	err = s.db.QueryRow(`
		INSERT INTO payments (user_id, gateway_order_id, status, amount, coin_amount, rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id`,
		userID, gatewayOrderID, models.PaymentStatusPending, amount, coins, s.converter.Rate(), time.Now()).Scan(&paymentID)
	if err != nil {
		log.Printf("[PAYMENT] Failed to store payment for user %d, gateway order %s: %v", userID, gatewayOrderID, err)
		SendErrorResponse(w, "Failed to create payment order", http.StatusInternalServerError, nil)
		return
	}

	checkoutURL := s.gateway.CheckoutLink(gatewayOrderID)
	qrImage, err := s.checkoutQR(checkoutURL)
	if err != nil {
		// Checkout still works without the QR image.
		log.Printf("[PAYMENT] QR generation failed for gateway order %s: %v", gatewayOrderID, err)
	}

	log.Printf("[PAYMENT] Created payment %d for user %d: %s %s -> %s points, gateway order %s",
		paymentID, userID, amount.String(), s.currency, coins.String(), gatewayOrderID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"paymentId":      paymentID,
		"gatewayOrderId": gatewayOrderID,
		"coinAmount":     coins.String(),
		"checkoutUrl":    checkoutURL,
		"qrImage":        qrImage,
	})
}

// VerifyPayment captures a payment from the signed client callback
// @Summary Verify a payment
// @Description Verify the checkout signature and credit the wallet; idempotent against the webhook
// @Tags payments
// @Accept json
// @Produce json
// @Param request body verifyPaymentRequest true "Gateway callback data"
// @Success 200 {object} object{status=string}
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /payments/verify [post]
func (s *PaymentService) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserID(r); !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req verifyPaymentRequest
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

	if !s.gateway.VerifyCheckoutSignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		s.audit.LogSignatureRejected("client_callback", req.GatewayOrderID)
		sendServiceError(w, ErrSignatureInvalid)
		return
	}

	if err := s.capture(r.Context(), req.GatewayOrderID, req.GatewayPaymentID, req.Signature); err != nil {
		if errors.Is(err, ErrInvalidPaymentState) {
			// Client callers treat this as already settled and re-fetch.
			SendErrorResponse(w, "Payment already settled", http.StatusConflict, nil)
			return
		}
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": models.PaymentStatusCompleted})
}

// Webhook handles asynchronous gateway event delivery
// @Summary Gateway webhook
// @Description Verify the webhook signature and apply the payment event; non-2xx responses trigger gateway redelivery
// @Tags payments
// @Accept json
// @Produce json
// @Param X-Gateway-Signature header string true "HMAC signature of the raw body"
// @Success 200 {object} object{status=string}
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /payments/webhook [post]
func (s *PaymentService) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1_048_576))
	if err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	signature := r.Header.Get("X-Gateway-Signature")
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		s.audit.LogSignatureRejected("webhook", "")
		log.Printf("[WEBHOOK] Rejected delivery with invalid signature from IP: %s", r.RemoteAddr)
		sendServiceError(w, ErrSignatureInvalid)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		SendErrorResponse(w, "Invalid event payload", http.StatusBadRequest, nil)
		return
	}

	log.Printf("[WEBHOOK] Received %s for gateway order %s", event.Event, event.Payload.OrderID)

	switch event.Event {
	case "payment.captured":
		err = s.capture(r.Context(), event.Payload.OrderID, event.Payload.PaymentID, signature)
	case "payment.failed":
		err = s.markFailed(r.Context(), event.Payload.OrderID, event.Payload.PaymentID)
	default:
		// Unknown events are acknowledged so the gateway stops redelivering.
		log.Printf("[WEBHOOK] Ignoring unhandled event type %s", event.Event)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ignored"})
		return
	}

	if err != nil {
		if errors.Is(err, ErrInvalidPaymentState) {
			// The state is final; redelivery cannot change the outcome.
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "already settled"})
			return
		}
		log.Printf("[WEBHOOK] Failed to process %s for gateway order %s: %v", event.Event, event.Payload.OrderID, err)
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// capture transitions a payment PENDING -> COMPLETED and credits the wallet
// in the same database transaction. A payment already COMPLETED
// short-circuits to success without writing anything; this is what makes
// duplicate webhook deliveries and the webhook/client race safe.
func (s *PaymentService) capture(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	payment, err := s.lockPayment(tx, gatewayOrderID)
	if err != nil {
		return err
	}

	if payment.Status == models.PaymentStatusCompleted {
		log.Printf("[PAYMENT] Capture for gateway order %s already completed, skipping", gatewayOrderID)
		return nil
	}
	if payment.Status != models.PaymentStatusPending {
		return ErrInvalidPaymentState
	}

	_, err = tx.Exec(`
		UPDATE payments
		SET status = $1, gateway_payment_id = $2, signature = $3, updated_at = $4
		WHERE id = $5`,
		models.PaymentStatusCompleted, gatewayPaymentID, signature, time.Now(), payment.ID)
	if err != nil {
		return err
	}

	movement := Movement{
		UserID:      payment.UserID,
		CoinAmount:  payment.CoinAmount,
		Amount:      payment.Amount,
		PaymentID:   &payment.ID,
		Description: "Wallet top-up via payment gateway",
		Metadata: map[string]string{
			"rate":               payment.Rate.String(),
			"gateway_payment_id": gatewayPaymentID,
		},
	}
	if err := s.wallet.CreditTx(tx, movement); err != nil {
		s.audit.LogFailure(payment.UserID, gatewayOrderID, payment.CoinAmount.String(), err)
		return err
	}

	if err := tx.Commit(); err != nil {
		s.audit.LogFailure(payment.UserID, gatewayOrderID, payment.CoinAmount.String(), err)
		return err
	}

	s.wallet.FinalizeMutation(ctx, "CREDIT", movement, gatewayOrderID)
	s.audit.LogCredit(payment.UserID, gatewayOrderID, payment.CoinAmount.String(), "payment captured")
	log.Printf("[PAYMENT] Captured gateway order %s: credited %s points to user %d",
		gatewayOrderID, payment.CoinAmount.String(), payment.UserID)

	return nil
}

// markFailed transitions a payment PENDING -> FAILED. No balance change.
func (s *PaymentService) markFailed(ctx context.Context, gatewayOrderID, gatewayPaymentID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	payment, err := s.lockPayment(tx, gatewayOrderID)
	if err != nil {
		return err
	}

	if payment.Status == models.PaymentStatusFailed {
		log.Printf("[PAYMENT] Gateway order %s already failed, skipping", gatewayOrderID)
		return nil
	}
	if payment.Status != models.PaymentStatusPending {
		return ErrInvalidPaymentState
	}

	_, err = tx.Exec(`
		UPDATE payments
		SET status = $1, gateway_payment_id = $2, updated_at = $3
		WHERE id = $4`,
		models.PaymentStatusFailed, gatewayPaymentID, time.Now(), payment.ID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.audit.LogFailure(payment.UserID, gatewayOrderID, payment.Amount.String(), errors.New("gateway reported payment failure"))
	log.Printf("[PAYMENT] Marked gateway order %s failed for user %d", gatewayOrderID, payment.UserID)

	return nil
}

func (s *PaymentService) lockPayment(tx *sql.Tx, gatewayOrderID string) (*models.Payment, error) {
	payment := &models.Payment{GatewayOrderID: gatewayOrderID}
	err := tx.QueryRow(`
		SELECT id, user_id, status, amount, coin_amount, rate FROM payments
		WHERE gateway_order_id = $1
		FOR UPDATE`, gatewayOrderID).Scan(
		&payment.ID, &payment.UserID, &payment.Status, &payment.Amount, &payment.CoinAmount, &payment.Rate)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return payment, nil
}

func (s *PaymentService) checkoutQR(link string) (string, error) {
	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
