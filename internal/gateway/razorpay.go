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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vikram-labs/schoolpay-api/pkg/config"
)

const razorpayBaseURL = "https://api.razorpay.com/v1"

// RazorpayClient talks to the Razorpay Orders and Payments APIs. When no key
// pair is configured it degrades to mock orders so checkout flows can be
// exercised in development; verification still requires real keys.
type RazorpayClient struct {
	keyID     string
	keySecret string
	currency  string
	baseURL   string
	client    *http.Client
}

// NewRazorpayClient constructs a RazorpayClient from configuration.
func NewRazorpayClient(cfg config.GatewayConfig) *RazorpayClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "INR"
	}
	return &RazorpayClient{
		keyID:     cfg.RazorpayKeyID,
		keySecret: cfg.RazorpayKeySecret,
		currency:  currency,
		baseURL:   razorpayBaseURL,
		client:    &http.Client{Timeout: timeout},
	}
}

// Name implements Client.
func (c *RazorpayClient) Name() string { return "razorpay" }

func (c *RazorpayClient) configured() bool {
	return c.keyID != "" && c.keySecret != ""
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// CreateOrder registers an order with Razorpay. Amounts are sent in paise.
func (c *RazorpayClient) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string, notes map[string]string) (*Order, error) {
	if currency == "" {
		currency = c.currency
	}
	if receipt == "" {
		receipt = fmt.Sprintf("order_%s", time.Now().UTC().Format("20060102150405"))
	}
	if !c.configured() {
		return &Order{
			ID:          fmt.Sprintf("order_mock_%s", uuid.NewString()[:12]),
			Amount:      amount,
			AmountMinor: minorUnits(amount),
			Currency:    currency,
			Receipt:     receipt,
			Status:      "created",
		}, nil
	}

	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   minorUnits(amount),
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return nil, fmt.Errorf("razorpay: encode order: %w", err)
	}

	var resp razorpayOrderResponse
	if err := c.do(ctx, http.MethodPost, "/orders", body, &resp); err != nil {
		return nil, err
	}
	return &Order{
		ID:          resp.ID,
		Amount:      fromMinorUnits(resp.Amount),
		AmountMinor: resp.Amount,
		Currency:    resp.Currency,
		Receipt:     resp.Receipt,
		Status:      resp.Status,
	}, nil
}

// VerifyPayment checks the checkout callback signature. The signature is an
// HMAC-SHA256 of "order_id|payment_id" keyed with the API secret; comparison
// is constant time.
func (c *RazorpayClient) VerifyPayment(_ context.Context, req VerifyRequest) error {
	if !c.configured() {
		return ErrNotConfigured
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return ErrSignatureMismatch
	}

	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(req.OrderID + "|" + req.PaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(req.Signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

type razorpayPaymentResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
}

// FetchPayment retrieves a captured payment from Razorpay.
func (c *RazorpayClient) FetchPayment(ctx context.Context, paymentID string) (*PaymentDetails, error) {
	if !c.configured() {
		return &PaymentDetails{
			ID:       paymentID,
			Amount:   fromMinorUnits(100000),
			Currency: c.currency,
			Status:   "captured",
			Method:   "card",
		}, nil
	}

	var resp razorpayPaymentResponse
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, &resp); err != nil {
		return nil, err
	}
	return &PaymentDetails{
		ID:       resp.ID,
		Amount:   fromMinorUnits(resp.Amount),
		Currency: resp.Currency,
		Status:   resp.Status,
		Method:   resp.Method,
	}, nil
}

type razorpayRefundRequest struct {
	Amount int64             `json:"amount"`
	Notes  map[string]string `json:"notes,omitempty"`
}

type razorpayRefundResponse struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// Refund reverses a captured payment, partially when amount is below the
// original.
func (c *RazorpayClient) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*RefundResult, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}
	if reason == "" {
		reason = "Refund requested"
	}
	body, err := json.Marshal(razorpayRefundRequest{
		Amount: minorUnits(amount),
		Notes:  map[string]string{"reason": reason},
	})
	if err != nil {
		return nil, fmt.Errorf("razorpay: encode refund: %w", err)
	}

	var resp razorpayRefundResponse
	if err := c.do(ctx, http.MethodPost, "/payments/"+paymentID+"/refund", body, &resp); err != nil {
		return nil, err
	}
	return &RefundResult{
		ID:     resp.ID,
		Amount: fromMinorUnits(resp.Amount),
		Status: resp.Status,
	}, nil
}

func (c *RazorpayClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("razorpay: build request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("razorpay: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("razorpay: %s %s: status %d: %s", method, path, resp.StatusCode, string(payload))
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("razorpay: decode response: %w", err)
		}
	}
	return nil
}
