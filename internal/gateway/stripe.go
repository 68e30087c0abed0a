package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vikram-labs/schoolpay-api/pkg/config"
)

const stripeBaseURL = "https://api.stripe.com/v1"

// StripeClient talks to the Stripe PaymentIntents and Refunds APIs using the
// form-encoded wire format Stripe expects. Without a secret key it serves
// mock intents for development.
type StripeClient struct {
	secretKey string
	currency  string
	baseURL   string
	client    *http.Client
}

// NewStripeClient constructs a StripeClient from configuration.
func NewStripeClient(cfg config.GatewayConfig) *StripeClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "inr"
	}
	return &StripeClient{
		secretKey: cfg.StripeSecretKey,
		currency:  currency,
		baseURL:   stripeBaseURL,
		client:    &http.Client{Timeout: timeout},
	}
}

// Name implements Client.
func (c *StripeClient) Name() string { return "stripe" }

func (c *StripeClient) configured() bool { return c.secretKey != "" }

type stripeIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// CreateOrder creates a payment intent. Stripe has no separate order object,
// so the intent doubles as the order and its client secret rides along for
// browser checkout.
func (c *StripeClient) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string, notes map[string]string) (*Order, error) {
	if currency == "" {
		currency = c.currency
	}
	currency = strings.ToLower(currency)

	if !c.configured() {
		id := fmt.Sprintf("pi_mock_%s", uuid.NewString()[:12])
		return &Order{
			ID:           id,
			Amount:       amount,
			AmountMinor:  minorUnits(amount),
			Currency:     currency,
			Receipt:      receipt,
			Status:       "requires_payment_method",
			ClientSecret: id + "_secret_mock",
		}, nil
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(minorUnits(amount), 10))
	form.Set("currency", currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	if receipt != "" {
		form.Set("metadata[receipt]", receipt)
	}
	for key, value := range notes {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	var resp stripeIntentResponse
	if err := c.do(ctx, http.MethodPost, "/payment_intents", form, &resp); err != nil {
		return nil, err
	}
	return &Order{
		ID:           resp.ID,
		Amount:       fromMinorUnits(resp.Amount),
		AmountMinor:  resp.Amount,
		Currency:     resp.Currency,
		Receipt:      receipt,
		Status:       resp.Status,
		ClientSecret: resp.ClientSecret,
	}, nil
}

// VerifyPayment re-fetches the intent and requires a succeeded status. Stripe
// callbacks carry no signature to check; trusting the client-reported state
// is not an option, so the intent is confirmed server side.
func (c *StripeClient) VerifyPayment(ctx context.Context, req VerifyRequest) error {
	if !c.configured() {
		return ErrNotConfigured
	}
	if req.PaymentID == "" {
		return ErrPaymentIncomplete
	}
	details, err := c.FetchPayment(ctx, req.PaymentID)
	if err != nil {
		return err
	}
	if details.Status != "succeeded" {
		return fmt.Errorf("%w: status %s", ErrPaymentIncomplete, details.Status)
	}
	return nil
}

// FetchPayment retrieves a payment intent.
func (c *StripeClient) FetchPayment(ctx context.Context, paymentID string) (*PaymentDetails, error) {
	if !c.configured() {
		return &PaymentDetails{
			ID:       paymentID,
			Amount:   fromMinorUnits(100000),
			Currency: c.currency,
			Status:   "succeeded",
		}, nil
	}

	var resp stripeIntentResponse
	if err := c.do(ctx, http.MethodGet, "/payment_intents/"+paymentID, nil, &resp); err != nil {
		return nil, err
	}
	return &PaymentDetails{
		ID:       resp.ID,
		Amount:   fromMinorUnits(resp.Amount),
		Currency: resp.Currency,
		Status:   resp.Status,
	}, nil
}

type stripeRefundResponse struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// Refund creates a refund against the original payment intent.
func (c *StripeClient) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, _ string) (*RefundResult, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}

	form := url.Values{}
	form.Set("payment_intent", paymentID)
	form.Set("amount", strconv.FormatInt(minorUnits(amount), 10))
	form.Set("reason", "requested_by_customer")

	var resp stripeRefundResponse
	if err := c.do(ctx, http.MethodPost, "/refunds", form, &resp); err != nil {
		return nil, err
	}
	return &RefundResult{
		ID:     resp.ID,
		Amount: fromMinorUnits(resp.Amount),
		Status: resp.Status,
	}, nil
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("stripe: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("stripe: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("stripe: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stripe: %s %s: status %d: %s", method, path, resp.StatusCode, string(payload))
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("stripe: decode response: %w", err)
		}
	}
	return nil
}
