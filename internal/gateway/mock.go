package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockClient is an in-memory gateway for development and tests. Orders it
// creates verify successfully when the callback signature equals
// "mock_sig_" + payment ID.
type MockClient struct {
	currency string

	mu     sync.Mutex
	orders map[string]*Order
}

// NewMockClient constructs a MockClient.
func NewMockClient(currency string) *MockClient {
	if currency == "" {
		currency = "INR"
	}
	return &MockClient{
		currency: currency,
		orders:   make(map[string]*Order),
	}
}

// Name implements Client.
func (c *MockClient) Name() string { return "mock" }

// CreateOrder implements Client.
func (c *MockClient) CreateOrder(_ context.Context, amount decimal.Decimal, currency, receipt string, _ map[string]string) (*Order, error) {
	if currency == "" {
		currency = c.currency
	}
	order := &Order{
		ID:          fmt.Sprintf("order_mock_%s", uuid.NewString()[:12]),
		Amount:      amount,
		AmountMinor: minorUnits(amount),
		Currency:    currency,
		Receipt:     receipt,
		Status:      "created",
	}
	c.mu.Lock()
	c.orders[order.ID] = order
	c.mu.Unlock()
	return order, nil
}

// VerifyPayment implements Client.
func (c *MockClient) VerifyPayment(_ context.Context, req VerifyRequest) error {
	if req.PaymentID == "" {
		return ErrSignatureMismatch
	}
	if req.Signature != "mock_sig_"+req.PaymentID {
		return ErrSignatureMismatch
	}
	return nil
}

// FetchPayment implements Client.
func (c *MockClient) FetchPayment(_ context.Context, paymentID string) (*PaymentDetails, error) {
	return &PaymentDetails{
		ID:       paymentID,
		Amount:   fromMinorUnits(100000),
		Currency: c.currency,
		Status:   "captured",
		Method:   "card",
	}, nil
}

// Refund implements Client.
func (c *MockClient) Refund(_ context.Context, paymentID string, amount decimal.Decimal, _ string) (*RefundResult, error) {
	return &RefundResult{
		ID:     fmt.Sprintf("rfnd_mock_%s", uuid.NewString()[:12]),
		Amount: amount,
		Status: "processed",
	}, nil
}
