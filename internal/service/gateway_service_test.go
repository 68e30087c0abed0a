package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vikram-labs/schoolpay-api/internal/gateway"
	"github.com/vikram-labs/schoolpay-api/internal/models"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
)

type mockStatusFinder struct {
	statuses map[string]*models.StudentFeeStatus
}

func (m *mockStatusFinder) Find(ctx context.Context, studentID, structureID string) (*models.StudentFeeStatus, error) {
	if status, ok := m.statuses[studentID+structureID]; ok {
		return status, nil
	}
	return nil, sql.ErrNoRows
}

type recorderSpy struct {
	inner *PaymentService
	calls []RecordPaymentRequest
}

func (r *recorderSpy) Record(ctx context.Context, actor models.Actor, req RecordPaymentRequest) (*PaymentResult, error) {
	r.calls = append(r.calls, req)
	return r.inner.Record(ctx, actor, req)
}

func newGatewayServiceForTest(t *testing.T) (*GatewayService, *recorderSpy, *mockPaymentRepo) {
	t.Helper()
	repo, structures, students := paymentFixtures()
	recorder := &recorderSpy{inner: newPaymentServiceForTest(repo, structures, students, nil, nil)}
	statuses := &mockStatusFinder{statuses: make(map[string]*models.StudentFeeStatus)}
	client := gateway.NewMockClient("INR")
	svc := NewGatewayService(client, recorder, repo, statuses, students, structures, nil, "INR", nil, zap.NewNop())
	return svc, recorder, repo
}

func TestGatewayServiceCreateOrderForOutstandingBalance(t *testing.T) {
	svc, _, _ := newGatewayServiceForTest(t)
	svc.statuses.(*mockStatusFinder).statuses["student-1structure-1"] = &models.StudentFeeStatus{
		StudentID:       "student-1",
		FeeStructureID:  "structure-1",
		TotalFee:        decimal.RequireFromString("10000"),
		PaidAmount:      decimal.RequireFromString("4000"),
		RemainingAmount: decimal.RequireFromString("6000"),
	}
	actor := models.Actor{SchoolID: "school-1"}

	order, err := svc.CreateOrder(context.Background(), actor, CreateOrderRequest{StudentID: "student-1"})
	require.NoError(t, err)
	assert.Equal(t, "6000", order.Amount.String())
	assert.Equal(t, int64(600000), order.AmountMinor)
	assert.Equal(t, "INR", order.Currency)
	assert.NotEmpty(t, order.ID)
}

func TestGatewayServiceCreateOrderDefaultsToTotalFee(t *testing.T) {
	svc, _, _ := newGatewayServiceForTest(t)
	actor := models.Actor{SchoolID: "school-1"}

	order, err := svc.CreateOrder(context.Background(), actor, CreateOrderRequest{StudentID: "student-1"})
	require.NoError(t, err)
	assert.Equal(t, "10000", order.Amount.String())
}

func TestGatewayServiceCreateOrderNothingOutstanding(t *testing.T) {
	svc, _, _ := newGatewayServiceForTest(t)
	svc.statuses.(*mockStatusFinder).statuses["student-1structure-1"] = &models.StudentFeeStatus{
		StudentID:       "student-1",
		FeeStructureID:  "structure-1",
		TotalFee:        decimal.RequireFromString("10000"),
		PaidAmount:      decimal.RequireFromString("10000"),
		RemainingAmount: decimal.Zero,
		IsFullyPaid:     true,
	}
	actor := models.Actor{SchoolID: "school-1"}

	_, err := svc.CreateOrder(context.Background(), actor, CreateOrderRequest{StudentID: "student-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGatewayServiceCallbackRecordsVerifiedPayment(t *testing.T) {
	svc, recorder, _ := newGatewayServiceForTest(t)
	actor := models.Actor{SchoolID: "school-1"}

	result, err := svc.Callback(context.Background(), actor, GatewayCallbackRequest{
		StudentID: "student-1",
		OrderID:   "order_mock_abc",
		PaymentID: "pay_mock_123",
		Signature: "mock_sig_pay_mock_123",
	})
	require.NoError(t, err)
	require.Len(t, recorder.calls, 1)
	assert.Equal(t, "pay_mock_123", recorder.calls[0].TransactionID)
	assert.Equal(t, string(models.PaymentModeOnline), recorder.calls[0].Mode)

	require.NotNil(t, result.Payment)
	assert.Equal(t, models.PaymentStatusCompleted, result.Payment.Status)
	// amount comes from the provider's record, not the caller
	assert.Equal(t, "1000", result.Payment.Amount.String())
}

func TestGatewayServiceCallbackRejectsForgedSignature(t *testing.T) {
	svc, recorder, repo := newGatewayServiceForTest(t)
	actor := models.Actor{SchoolID: "school-1"}

	_, err := svc.Callback(context.Background(), actor, GatewayCallbackRequest{
		StudentID: "student-1",
		OrderID:   "order_mock_abc",
		PaymentID: "pay_mock_123",
		Signature: "forged",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrVerificationFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, recorder.calls)
	assert.Zero(t, repo.recordCalls)
}

func TestGatewayServiceCallbackReplayReturnsExistingPayment(t *testing.T) {
	svc, recorder, _ := newGatewayServiceForTest(t)
	actor := models.Actor{SchoolID: "school-1"}
	req := GatewayCallbackRequest{
		StudentID: "student-1",
		OrderID:   "order_mock_abc",
		PaymentID: "pay_mock_replay",
		Signature: "mock_sig_pay_mock_replay",
	}

	first, err := svc.Callback(context.Background(), actor, req)
	require.NoError(t, err)

	svc.statuses.(*mockStatusFinder).statuses[first.Payment.StudentID+first.Payment.FeeStructureID] = &models.StudentFeeStatus{
		StudentID:      first.Payment.StudentID,
		FeeStructureID: first.Payment.FeeStructureID,
		PaidAmount:     first.Payment.Amount,
	}

	second, err := svc.Callback(context.Background(), actor, req)
	require.NoError(t, err)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, first.Payment.ReceiptNo, second.Payment.ReceiptNo)
	assert.Len(t, recorder.calls, 1)
}

func TestGatewayServiceCallbackUnknownStudent(t *testing.T) {
	svc, _, _ := newGatewayServiceForTest(t)
	actor := models.Actor{SchoolID: "school-1"}

	_, err := svc.Callback(context.Background(), actor, GatewayCallbackRequest{
		StudentID: "ghost",
		PaymentID: "pay_mock_1",
		Signature: "mock_sig_pay_mock_1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
