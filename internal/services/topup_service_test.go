package services

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/shareco2/backend/internal/points"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func newTopUpService(t *testing.T) (*TopUpService, sqlmock.Sqlmock) {
	t.Helper()
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	wallet := NewWalletService(db, nil)
	converter := points.NewConverterWithRate(decimal.NewFromInt(18))
	return NewTopUpService(db, wallet, converter), dbMock
}

func decideRequest(t *testing.T, requestID, adminID int, body string) *http.Request {
	t.Helper()
	id := strconv.Itoa(requestID)
	req := authedRequest(t, http.MethodPut, "/api/v1/admin/topups/"+id, adminID)
	req.Body = httptest.NewRequest(http.MethodPut, "/", bytes.NewBufferString(body)).Body
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func testTime(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestTopUpService_CreateRequest(t *testing.T) {
	t.Run("files a pending request", func(t *testing.T) {
		service, dbMock := newTopUpService(t)

		dbMock.ExpectQuery("INSERT INTO topup_requests").
			WithArgs(7, sqlmock.AnyArg(), "+4915112345678", "PENDING", sqlmock.AnyArg()).
			WillReturnRows(dbMock.NewRows([]string{"id"}).AddRow(42))

		req := authedRequest(t, http.MethodPost, "/api/v1/topups", 7)
		req.Body = httptest.NewRequest(http.MethodPost, "/",
			bytes.NewBufferString(`{"amount":"50","phoneNumber":"+4915112345678"}`)).Body
		rec := httptest.NewRecorder()
		service.CreateRequest(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"requestId":42`)
		assert.Contains(t, rec.Body.String(), `"status":"PENDING"`)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("rejects a non-positive amount", func(t *testing.T) {
		service, _ := newTopUpService(t)

		req := authedRequest(t, http.MethodPost, "/api/v1/topups", 7)
		req.Body = httptest.NewRequest(http.MethodPost, "/",
			bytes.NewBufferString(`{"amount":"0","phoneNumber":"+4915112345678"}`)).Body
		rec := httptest.NewRecorder()
		service.CreateRequest(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTopUpService_DecideRequest(t *testing.T) {
	t.Run("approval credits at the current rate", func(t *testing.T) {
		service, dbMock := newTopUpService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT user_id, amount, status FROM topup_requests").
			WithArgs(42).
			WillReturnRows(dbMock.NewRows([]string{"user_id", "amount", "status"}).
				AddRow(7, "90", "PENDING"))
		dbMock.ExpectExec("UPDATE topup_requests").
			WithArgs("APPROVED", "verified at desk", sqlmock.AnyArg(), 42).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectQuery("SELECT spendable, reserved FROM wallets").
			WithArgs(7).
			WillReturnRows(dbMock.NewRows([]string{"spendable", "reserved"}).AddRow("10", "0"))
		dbMock.ExpectExec("INSERT INTO transactions").
			WithArgs(7, "CREDIT", sqlmock.AnyArg(), sqlmock.AnyArg(), nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		// 90 at rate 18 is 5 points on top of the held 10.
		dbMock.ExpectExec("UPDATE wallets").
			WithArgs("15", sqlmock.AnyArg(), 7).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()

		rec := httptest.NewRecorder()
		service.DecideRequest(rec, decideRequest(t, 42, 1, `{"decision":"approve","comment":"verified at desk"}`))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"APPROVED"`)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("rejection flips status without a credit", func(t *testing.T) {
		service, dbMock := newTopUpService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT user_id, amount, status FROM topup_requests").
			WithArgs(42).
			WillReturnRows(dbMock.NewRows([]string{"user_id", "amount", "status"}).
				AddRow(7, "90", "PENDING"))
		dbMock.ExpectExec("UPDATE topup_requests").
			WithArgs("REJECTED", "receipt missing", sqlmock.AnyArg(), 42).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()

		rec := httptest.NewRecorder()
		service.DecideRequest(rec, decideRequest(t, 42, 1, `{"decision":"reject","comment":"receipt missing"}`))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"REJECTED"`)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("deciding a settled request conflicts", func(t *testing.T) {
		service, dbMock := newTopUpService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT user_id, amount, status FROM topup_requests").
			WithArgs(42).
			WillReturnRows(dbMock.NewRows([]string{"user_id", "amount", "status"}).
				AddRow(7, "90", "APPROVED"))
		dbMock.ExpectRollback()

		rec := httptest.NewRecorder()
		service.DecideRequest(rec, decideRequest(t, 42, 1, `{"decision":"approve"}`))

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("unknown request is not found", func(t *testing.T) {
		service, dbMock := newTopUpService(t)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT user_id, amount, status FROM topup_requests").
			WithArgs(9).
			WillReturnRows(dbMock.NewRows([]string{"user_id", "amount", "status"}))
		dbMock.ExpectRollback()

		rec := httptest.NewRecorder()
		service.DecideRequest(rec, decideRequest(t, 9, 1, `{"decision":"reject"}`))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad decision value fails validation", func(t *testing.T) {
		service, _ := newTopUpService(t)

		rec := httptest.NewRecorder()
		service.DecideRequest(rec, decideRequest(t, 42, 1, `{"decision":"maybe"}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTopUpService_ListRequests(t *testing.T) {
	t.Run("filters by status", func(t *testing.T) {
		service, dbMock := newTopUpService(t)

		dbMock.ExpectQuery("SELECT id, user_id, amount, phone_number, status").
			WithArgs("PENDING").
			WillReturnRows(dbMock.NewRows(
				[]string{"id", "user_id", "amount", "phone_number", "status", "admin_comment", "created_at", "updated_at"}).
				AddRow(42, 7, "90", "+4915112345678", "PENDING", "", testTime(t), testTime(t)))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/topups?status=PENDING", nil)
		rec := httptest.NewRecorder()
		service.ListRequests(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":1`)
		assert.Contains(t, rec.Body.String(), `"PENDING"`)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("unfiltered listing returns every request", func(t *testing.T) {
		service, dbMock := newTopUpService(t)

		dbMock.ExpectQuery("SELECT id, user_id, amount, phone_number, status").
			WillReturnRows(dbMock.NewRows(
				[]string{"id", "user_id", "amount", "phone_number", "status", "admin_comment", "created_at", "updated_at"}).
				AddRow(42, 7, "90", "+4915112345678", "APPROVED", "ok", testTime(t), testTime(t)).
				AddRow(43, 8, "36", "+4915187654321", "PENDING", "", testTime(t), testTime(t)))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/topups", nil)
		rec := httptest.NewRecorder()
		service.ListRequests(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":2`)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}
