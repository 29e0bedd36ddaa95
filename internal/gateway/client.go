// Package gateway is the HTTP client for the payment gateway: order
// creation, payment lookup and signature verification for both the client
// checkout callback and asynchronous webhook delivery.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Client struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	checkoutURL   string
	httpClient    *http.Client
}

func NewClient() *Client {
	viper.SetDefault("gateway.base_url", "https://api.gateway.example.com/v1")
	viper.SetDefault("gateway.checkout_url", "https://checkout.gateway.example.com/pay")
	viper.SetDefault("gateway.timeout_seconds", 10)

	return &Client{
		keyID:         viper.GetString("gateway.key_id"),
		keySecret:     viper.GetString("gateway.key_secret"),
		webhookSecret: viper.GetString("gateway.webhook_secret"),
		baseURL:       viper.GetString("gateway.base_url"),
		checkoutURL:   viper.GetString("gateway.checkout_url"),
		httpClient: &http.Client{
			Timeout: time.Duration(viper.GetInt("gateway.timeout_seconds")) * time.Second,
		},
	}
}

// CreateOrder registers an order with the gateway and returns the
// gateway-issued order id the client completes checkout against.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"amount":   amount.String(),
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway order create failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("gateway order create returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("gateway order create returned no order id")
	}

	return result.ID, nil
}

// VerifyCheckoutSignature checks the signature the gateway hands to the
// client after checkout: HMAC-SHA256 of "orderID|paymentID" under the key
// secret.
func (c *Client) VerifyCheckoutSignature(orderID, paymentID, signature string) bool {
	h := hmac.New(sha256.New, []byte(c.keySecret))
	h.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the signature header of a webhook delivery:
// HMAC-SHA256 of the raw request body under the webhook secret.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	h := hmac.New(sha256.New, []byte(c.webhookSecret))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// CheckoutLink returns the hosted checkout URL for a gateway order.
func (c *Client) CheckoutLink(orderID string) string {
	return fmt.Sprintf("%s?order_id=%s", c.checkoutURL, orderID)
}
