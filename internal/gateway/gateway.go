package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vikram-labs/schoolpay-api/pkg/config"
)

// Sentinel errors surfaced by gateway clients. Callers map these onto the
// API error taxonomy.
var (
	ErrNotConfigured      = errors.New("gateway: provider not configured")
	ErrSignatureMismatch  = errors.New("gateway: payment signature mismatch")
	ErrPaymentIncomplete  = errors.New("gateway: payment not in a successful state")
	ErrUnsupportedRequest = errors.New("gateway: unsupported request for provider")
)

// Order is a provider-side payment order awaiting checkout.
type Order struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	AmountMinor int64           `json:"amount_minor"`
	Currency    string          `json:"currency"`
	Receipt     string          `json:"receipt"`
	Status      string          `json:"status"`
	// ClientSecret is populated by providers that hand checkout state to the
	// browser, such as Stripe payment intents.
	ClientSecret string `json:"client_secret,omitempty"`
}

// VerifyRequest carries the provider callback fields needed to confirm that a
// payment really happened before anything is written to the ledger.
type VerifyRequest struct {
	OrderID   string
	PaymentID string
	Signature string
}

// PaymentDetails is the provider's view of a captured payment.
type PaymentDetails struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	Method   string          `json:"method,omitempty"`
}

// RefundResult reports a provider-side refund.
type RefundResult struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Status string          `json:"status"`
}

// Client is the uniform surface over payment providers. Implementations must
// be safe for concurrent use.
type Client interface {
	// Name identifies the provider, e.g. "razorpay".
	Name() string
	// CreateOrder registers a pending payment with the provider.
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string, notes map[string]string) (*Order, error)
	// VerifyPayment confirms a provider callback. It returns
	// ErrSignatureMismatch or ErrPaymentIncomplete when verification fails;
	// any other error means the provider could not be reached.
	VerifyPayment(ctx context.Context, req VerifyRequest) error
	// FetchPayment retrieves the provider's record of a captured payment.
	FetchPayment(ctx context.Context, paymentID string) (*PaymentDetails, error)
	// Refund reverses a captured payment, partially or fully.
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*RefundResult, error)
}

// New builds the provider selected by configuration. An unset provider falls
// back to the mock client so development environments work without keys.
func New(cfg config.GatewayConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "mock":
		return NewMockClient(cfg.Currency), nil
	case "razorpay":
		return NewRazorpayClient(cfg), nil
	case "stripe":
		return NewStripeClient(cfg), nil
	default:
		return nil, fmt.Errorf("gateway: unknown provider %q", cfg.Provider)
	}
}

// Router is a Client that sends refunds and payment lookups to the provider
// that issued the transaction, recognized by its id prefix: razorpay mints
// pay_/order_ ids, stripe mints pi_ ids. New orders and callback verification
// always go to the configured default provider. An issuer without credentials
// falls back to the default so development setups keep working against the
// mock client even after a provider switch.
type Router struct {
	def      Client
	razorpay *RazorpayClient
	stripe   *StripeClient
}

// NewRouter builds the default provider from configuration and wraps it with
// refund routing across both real providers.
func NewRouter(cfg config.GatewayConfig) (*Router, error) {
	def, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &Router{
		def:      def,
		razorpay: NewRazorpayClient(cfg),
		stripe:   NewStripeClient(cfg),
	}, nil
}

// Name implements Client.
func (r *Router) Name() string { return r.def.Name() }

// CreateOrder implements Client.
func (r *Router) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string, notes map[string]string) (*Order, error) {
	return r.def.CreateOrder(ctx, amount, currency, receipt, notes)
}

// VerifyPayment implements Client.
func (r *Router) VerifyPayment(ctx context.Context, req VerifyRequest) error {
	return r.def.VerifyPayment(ctx, req)
}

// FetchPayment implements Client.
func (r *Router) FetchPayment(ctx context.Context, paymentID string) (*PaymentDetails, error) {
	return r.issuer(paymentID).FetchPayment(ctx, paymentID)
}

// Refund implements Client.
func (r *Router) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*RefundResult, error) {
	return r.issuer(paymentID).Refund(ctx, paymentID, amount, reason)
}

func (r *Router) issuer(transactionID string) Client {
	switch {
	case strings.HasPrefix(transactionID, "pay_"), strings.HasPrefix(transactionID, "order_"):
		if r.razorpay.configured() {
			return r.razorpay
		}
	case strings.HasPrefix(transactionID, "pi_"):
		if r.stripe.configured() {
			return r.stripe
		}
	}
	return r.def
}

// minorUnits converts a decimal amount to the provider's smallest currency
// unit (paise, cents).
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// fromMinorUnits converts back from the smallest currency unit.
func fromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(100))
}
