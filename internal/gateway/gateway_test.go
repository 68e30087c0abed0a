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
	"github.com/stretchr/testify/require"

	"github.com/vikram-labs/schoolpay-api/pkg/config"
)

func razorpaySignature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRazorpayVerifyPayment(t *testing.T) {
	client := NewRazorpayClient(config.GatewayConfig{
		RazorpayKeyID:     "rzp_test_key",
		RazorpayKeySecret: "secret",
	})

	req := VerifyRequest{
		OrderID:   "order_123",
		PaymentID: "pay_456",
		Signature: razorpaySignature("secret", "order_123", "pay_456"),
	}
	assert.NoError(t, client.VerifyPayment(context.Background(), req))
}

func TestRazorpayVerifyPaymentForgedSignature(t *testing.T) {
	client := NewRazorpayClient(config.GatewayConfig{
		RazorpayKeyID:     "rzp_test_key",
		RazorpayKeySecret: "secret",
	})

	req := VerifyRequest{
		OrderID:   "order_123",
		PaymentID: "pay_456",
		Signature: razorpaySignature("wrong-secret", "order_123", "pay_456"),
	}
	assert.ErrorIs(t, client.VerifyPayment(context.Background(), req), ErrSignatureMismatch)

	req.Signature = ""
	assert.ErrorIs(t, client.VerifyPayment(context.Background(), req), ErrSignatureMismatch)
}

func TestRazorpayCreateOrderMockFallback(t *testing.T) {
	client := NewRazorpayClient(config.GatewayConfig{})

	order, err := client.CreateOrder(context.Background(), decimal.RequireFromString("1500.50"), "", "rcpt-1", nil)
	require.NoError(t, err)
	assert.Contains(t, order.ID, "order_mock_")
	assert.Equal(t, int64(150050), order.AmountMinor)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, "created", order.Status)
}

func TestRazorpayCreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/orders", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"order_Xy1","amount":400000,"currency":"INR","receipt":"rcpt-9","status":"created"}`))
	}))
	defer server.Close()

	client := NewRazorpayClient(config.GatewayConfig{
		RazorpayKeyID:     "rzp_test_key",
		RazorpayKeySecret: "secret",
		HTTPTimeout:       2 * time.Second,
	})
	client.baseURL = server.URL

	order, err := client.CreateOrder(context.Background(), decimal.RequireFromString("4000"), "INR", "rcpt-9", nil)
	require.NoError(t, err)
	assert.Equal(t, "order_Xy1", order.ID)
	assert.True(t, order.Amount.Equal(decimal.RequireFromString("4000")))
}

func TestStripeVerifyPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test_key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/payment_intents/pi_good":
			w.Write([]byte(`{"id":"pi_good","amount":400000,"currency":"inr","status":"succeeded"}`))
		case "/payment_intents/pi_pending":
			w.Write([]byte(`{"id":"pi_pending","amount":400000,"currency":"inr","status":"requires_payment_method"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewStripeClient(config.GatewayConfig{StripeSecretKey: "sk_test_key"})
	client.baseURL = server.URL

	assert.NoError(t, client.VerifyPayment(context.Background(), VerifyRequest{PaymentID: "pi_good"}))
	assert.ErrorIs(t, client.VerifyPayment(context.Background(), VerifyRequest{PaymentID: "pi_pending"}), ErrPaymentIncomplete)
}

func TestStripeCreateOrderMockFallback(t *testing.T) {
	client := NewStripeClient(config.GatewayConfig{})

	order, err := client.CreateOrder(context.Background(), decimal.RequireFromString("250"), "", "", nil)
	require.NoError(t, err)
	assert.Contains(t, order.ID, "pi_mock_")
	assert.NotEmpty(t, order.ClientSecret)
	assert.Equal(t, "requires_payment_method", order.Status)
}

func TestMockClientRoundTrip(t *testing.T) {
	client := NewMockClient("INR")

	order, err := client.CreateOrder(context.Background(), decimal.RequireFromString("100"), "", "rcpt", nil)
	require.NoError(t, err)

	err = client.VerifyPayment(context.Background(), VerifyRequest{
		OrderID:   order.ID,
		PaymentID: "pay_1",
		Signature: "mock_sig_pay_1",
	})
	assert.NoError(t, err)

	err = client.VerifyPayment(context.Background(), VerifyRequest{
		OrderID:   order.ID,
		PaymentID: "pay_1",
		Signature: "forged",
	})
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestGatewayFactory(t *testing.T) {
	client, err := New(config.GatewayConfig{Provider: "razorpay"})
	require.NoError(t, err)
	assert.Equal(t, "razorpay", client.Name())

	client, err = New(config.GatewayConfig{})
	require.NoError(t, err)
	assert.Equal(t, "mock", client.Name())

	_, err = New(config.GatewayConfig{Provider: "paypal"})
	assert.Error(t, err)
}

func TestRouterRefundDispatchesByIssuer(t *testing.T) {
	var razorpayHits, stripeHits int
	razorpayServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		razorpayHits++
		assert.Equal(t, "/payments/pay_abc/refund", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"rfnd_1","amount":150000,"status":"processed"}`))
	}))
	defer razorpayServer.Close()
	stripeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stripeHits++
		assert.Equal(t, "/refunds", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"re_1","amount":150000,"status":"succeeded"}`))
	}))
	defer stripeServer.Close()

	router, err := NewRouter(config.GatewayConfig{
		Provider:          "mock",
		RazorpayKeyID:     "rzp_test_key",
		RazorpayKeySecret: "secret",
		StripeSecretKey:   "sk_test_key",
	})
	require.NoError(t, err)
	router.razorpay.baseURL = razorpayServer.URL
	router.stripe.baseURL = stripeServer.URL

	amount := decimal.RequireFromString("1500")

	_, err = router.Refund(context.Background(), "pay_abc", amount, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, 1, razorpayHits)
	assert.Zero(t, stripeHits)

	_, err = router.Refund(context.Background(), "pi_xyz", amount, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, 1, stripeHits)

	result, err := router.Refund(context.Background(), "txn_unknown", amount, "")
	require.NoError(t, err)
	assert.Contains(t, result.ID, "rfnd_mock_")
	assert.Equal(t, 1, razorpayHits)
	assert.Equal(t, 1, stripeHits)
}

func TestRouterUnconfiguredIssuerFallsBackToDefault(t *testing.T) {
	router, err := NewRouter(config.GatewayConfig{})
	require.NoError(t, err)

	result, err := router.Refund(context.Background(), "pay_abc", decimal.RequireFromString("100"), "")
	require.NoError(t, err)
	assert.Contains(t, result.ID, "rfnd_mock_")
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(100050), minorUnits(decimal.RequireFromString("1000.50")))
	assert.True(t, fromMinorUnits(100050).Equal(decimal.RequireFromString("1000.50")))
}
