package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderFeeReminder(t *testing.T) {
	subject, body, err := Render("fee_reminder", map[string]string{
		"guardian_name":      "R Verma",
		"student_name":       "Asha Verma",
		"class_name":         "Grade 5 A",
		"outstanding_amount": "6000",
		"due_date":           "2026-01-15",
		"school_name":        "Sunrise Public School",
	})
	require.NoError(t, err)
	assert.Equal(t, "Fee Payment Reminder - Asha Verma", subject)
	assert.Contains(t, body, "Amount Due: 6000")
	assert.Contains(t, body, "Sunrise Public School")
}

func TestRenderPaymentConfirmation(t *testing.T) {
	subject, body, err := Render("payment_confirmation", map[string]string{
		"guardian_name":    "R Verma",
		"student_name":     "Asha Verma",
		"receipt_no":       "RCPSCH001202602100007",
		"amount":           "4000",
		"payment_date":     "2026-02-10",
		"remaining_amount": "6000",
		"school_name":      "Sunrise Public School",
	})
	require.NoError(t, err)
	assert.Equal(t, "Payment Received - Receipt RCPSCH001202602100007", subject)
	assert.Contains(t, body, "Remaining Balance: 6000")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := Render("holiday_notice", nil)
	assert.Error(t, err)
}
