package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shareco2/backend/internal/audit"
	"github.com/shareco2/backend/internal/middleware"
	"github.com/shareco2/backend/internal/models"
	"github.com/shareco2/backend/internal/points"
	"github.com/shopspring/decimal"
)

// TopUpService handles manual cash top-up requests. A request sits PENDING
// until an admin approves (credit at the current rate) or rejects it.
type TopUpService struct {
	db        *sql.DB
	wallet    *WalletService
	converter *points.Converter
	audit     *audit.Logger
	validator *ValidationHelper
}

type createTopUpRequest struct {
	Amount      string `json:"amount" validate:"required"`
	PhoneNumber string `json:"phoneNumber" validate:"required,max=20"`
}

type decideTopUpRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Comment  string `json:"comment" validate:"max=500"`
}

func NewTopUpService(db *sql.DB, wallet *WalletService, converter *points.Converter) *TopUpService {
	return &TopUpService{
		db:        db,
		wallet:    wallet,
		converter: converter,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// CreateRequest files a cash top-up request
// @Summary Request a cash top-up
// @Description Create a pending top-up request for admin approval
// @Tags topups
// @Accept json
// @Produce json
// @Param request body createTopUpRequest true "Top-up request data"
// @Success 201 {object} object{requestId=int,status=string}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /topups [post]
func (s *TopUpService) CreateRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req createTopUpRequest
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

	if s.converter.ToPoints(amount).IsZero() {
		sendServiceError(w, ErrAmountTooSmall)
		return
	}

	var requestID int
	err = s.db.QueryRow(`
		INSERT INTO topup_requests (user_id, amount, phone_number, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id`,
		userID, amount, req.PhoneNumber, models.TopUpStatusPending, time.Now()).Scan(&requestID)
	if err != nil {
		log.Printf("[TOPUP] Failed to create request for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create top-up request", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TOPUP] User %d requested cash top-up of %s (request %d)", userID, amount.String(), requestID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"requestId": requestID,
		"status":    models.TopUpStatusPending,
	})
}

// ListRequests lists top-up requests for the admin surface
// @Summary List top-up requests
// @Description Retrieve top-up requests, optionally filtered by status
// @Tags admin
// @Produce json
// @Param status query string false "Filter by status (PENDING, APPROVED, REJECTED)"
// @Success 200 {object} object{requests=[]models.TopUpRequest,count=int}
// @Failure 403 {object} ErrorResponse
// @Router /admin/topups [get]
func (s *TopUpService) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	query := `
		SELECT id, user_id, amount, phone_number, status, COALESCE(admin_comment, ''), created_at, updated_at
		FROM topup_requests`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT 100`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("[TOPUP] Failed to list requests: %v", err)
		SendErrorResponse(w, "Failed to fetch requests", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	requests := []models.TopUpRequest{}
	for rows.Next() {
		var req models.TopUpRequest
		if err := rows.Scan(&req.ID, &req.UserID, &req.Amount, &req.PhoneNumber,
			&req.Status, &req.AdminComment, &req.CreatedAt, &req.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch requests", http.StatusInternalServerError, nil)
			return
		}
		requests = append(requests, req)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"requests": requests,
		"count":    len(requests),
	})
}

// DecideRequest approves or rejects a pending top-up request
// @Summary Decide a top-up request
// @Description Approve (credits the wallet at the current rate) or reject a pending request
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param request body decideTopUpRequest true "Decision"
// @Success 200 {object} object{status=string}
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/topups/{id} [put]
func (s *TopUpService) DecideRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || requestID <= 0 {
		SendErrorResponse(w, "Invalid request id", http.StatusBadRequest, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req decideTopUpRequest
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

	approve := req.Decision == "approve"
	if err := s.decide(r, requestID, approve, req.Comment); err != nil {
		if !errors.Is(err, ErrInvalidRequestState) && !errors.Is(err, ErrNotFound) {
			log.Printf("[TOPUP] Failed to decide request %d: %v", requestID, err)
		}
		sendServiceError(w, err)
		return
	}

	status := models.TopUpStatusRejected
	if approve {
		status = models.TopUpStatusApproved
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// decide flips a PENDING request and, on approval, credits the wallet at the
// rate in effect now, all within one database transaction.
func (s *TopUpService) decide(r *http.Request, requestID int, approve bool, comment string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var userID int
	var amount decimal.Decimal
	var status string
	err = tx.QueryRow(`
		SELECT user_id, amount, status FROM topup_requests
		WHERE id = $1
		FOR UPDATE`, requestID).Scan(&userID, &amount, &status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if status != models.TopUpStatusPending {
		return ErrInvalidRequestState
	}

	target := models.TopUpStatusRejected
	if approve {
		target = models.TopUpStatusApproved
	}

	_, err = tx.Exec(`
		UPDATE topup_requests
		SET status = $1, admin_comment = $2, updated_at = $3
		WHERE id = $4`,
		target, comment, time.Now(), requestID)
	if err != nil {
		return err
	}

	var movement Movement
	if approve {
		coins := s.converter.ToPoints(amount)
		movement = Movement{
			UserID:      userID,
			CoinAmount:  coins,
			Amount:      amount,
			Description: "Cash top-up approved",
			Metadata: map[string]string{
				"rate":             s.converter.Rate().String(),
				"topup_request_id": strconv.Itoa(requestID),
			},
		}
		if err := s.wallet.CreditTx(tx, movement); err != nil {
			s.audit.LogFailure(userID, strconv.Itoa(requestID), coins.String(), err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		s.audit.LogFailure(userID, strconv.Itoa(requestID), amount.String(), err)
		return err
	}

	if approve {
		s.wallet.FinalizeMutation(r.Context(), "CREDIT", movement, strconv.Itoa(requestID))
		s.audit.LogCredit(userID, strconv.Itoa(requestID), movement.CoinAmount.String(), "top-up approved")
		log.Printf("[TOPUP] Approved request %d: credited %s points to user %d", requestID, movement.CoinAmount.String(), userID)
	} else {
		log.Printf("[TOPUP] Rejected request %d for user %d", requestID, userID)
	}

	return nil
}
