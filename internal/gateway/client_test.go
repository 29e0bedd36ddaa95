package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func testClient(baseURL string) *Client {
	return &Client{
		keyID:         "key_test",
		keySecret:     "checkout-secret",
		webhookSecret: "webhook-secret",
		baseURL:       baseURL,
		checkoutURL:   "https://checkout.gateway.example.com/pay",
		httpClient:    &http.Client{Timeout: 5 * time.Second},
	}
}

func sign(secret, message string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

func TestClient_CreateOrder(t *testing.T) {
	t.Run("returns the gateway order id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "key_test", user)
			assert.Equal(t, "checkout-secret", pass)
			assert.Equal(t, "/orders", r.URL.Path)

			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"order_ABC123"}`))
		}))
		defer server.Close()

		client := testClient(server.URL)
		orderID, err := client.CreateOrder(context.Background(), decimal.NewFromInt(100), "EUR", "receipt-1")
		assert.NoError(t, err)
		assert.Equal(t, "order_ABC123", orderID)
	})

	t.Run("non-2xx status fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"bad key"}`))
		}))
		defer server.Close()

		client := testClient(server.URL)
		_, err := client.CreateOrder(context.Background(), decimal.NewFromInt(100), "EUR", "receipt-1")
		assert.Error(t, err)
	})

	t.Run("missing order id fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		client := testClient(server.URL)
		_, err := client.CreateOrder(context.Background(), decimal.NewFromInt(100), "EUR", "receipt-1")
		assert.Error(t, err)
	})
}

func TestClient_VerifyCheckoutSignature(t *testing.T) {
	client := testClient("")

	valid := sign("checkout-secret", "order_1|pay_1")
	assert.True(t, client.VerifyCheckoutSignature("order_1", "pay_1", valid))
	assert.False(t, client.VerifyCheckoutSignature("order_1", "pay_2", valid))
	assert.False(t, client.VerifyCheckoutSignature("order_1", "pay_1", "forged"))
	assert.False(t, client.VerifyCheckoutSignature("order_1", "pay_1", sign("other-secret", "order_1|pay_1")))
}

func TestClient_VerifyWebhookSignature(t *testing.T) {
	client := testClient("")

	body := []byte(`{"event":"payment.captured"}`)
	assert.True(t, client.VerifyWebhookSignature(body, sign("webhook-secret", string(body))))
	assert.False(t, client.VerifyWebhookSignature(body, sign("checkout-secret", string(body))))
	assert.False(t, client.VerifyWebhookSignature([]byte(`tampered`), sign("webhook-secret", string(body))))
}

func TestClient_CheckoutLink(t *testing.T) {
	client := testClient("")
	assert.Equal(t, "https://checkout.gateway.example.com/pay?order_id=order_1", client.CheckoutLink("order_1"))
}
