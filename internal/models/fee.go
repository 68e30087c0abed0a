package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMode enumerates the supported payment channels.
type PaymentMode string

const (
	PaymentModeCash         PaymentMode = "cash"
	PaymentModeCheque       PaymentMode = "cheque"
	PaymentModeBankTransfer PaymentMode = "bank_transfer"
	PaymentModeOnline       PaymentMode = "online"
)

// Valid reports whether the mode is one of the supported channels.
func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentModeCash, PaymentModeCheque, PaymentModeBankTransfer, PaymentModeOnline:
		return true
	}
	return false
}

// PaymentStatus enumerates the payment lifecycle states.
// Transitions: pending -> completed -> refunded; refunded is terminal.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// FeeStructure is a priced template of fee components for a class and academic year.
type FeeStructure struct {
	ID           string `db:"id" json:"id"`
	SchoolID     string `db:"school_id" json:"school_id"`
	ClassID      string `db:"class_id" json:"class_id"`
	AcademicYear string `db:"academic_year" json:"academic_year"`

	TotalFee       decimal.Decimal `db:"total_fee" json:"total_fee"`
	TuitionFee     decimal.Decimal `db:"tuition_fee" json:"tuition_fee"`
	AdmissionFee   decimal.Decimal `db:"admission_fee" json:"admission_fee"`
	DevelopmentFee decimal.Decimal `db:"development_fee" json:"development_fee"`
	TransportFee   decimal.Decimal `db:"transport_fee" json:"transport_fee"`
	LibraryFee     decimal.Decimal `db:"library_fee" json:"library_fee"`
	LabFee         decimal.Decimal `db:"lab_fee" json:"lab_fee"`
	SportsFee      decimal.Decimal `db:"sports_fee" json:"sports_fee"`
	OtherFee       decimal.Decimal `db:"other_fee" json:"other_fee"`

	Installments int      `db:"installments" json:"installments"`
	DueDates     DateList `db:"due_dates" json:"due_dates"`
	IsActive     bool     `db:"is_active" json:"is_active"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ComponentTotal sums the itemized fee components.
func (f *FeeStructure) ComponentTotal() decimal.Decimal {
	return f.TuitionFee.
		Add(f.AdmissionFee).
		Add(f.DevelopmentFee).
		Add(f.TransportFee).
		Add(f.LibraryFee).
		Add(f.LabFee).
		Add(f.SportsFee).
		Add(f.OtherFee)
}

// FirstDueDate returns the earliest configured due date, if any.
func (f *FeeStructure) FirstDueDate() *time.Time {
	if len(f.DueDates) == 0 {
		return nil
	}
	first := f.DueDates[0]
	for _, d := range f.DueDates[1:] {
		if d.Before(first) {
			first = d
		}
	}
	return &first
}

// Payment records a single fee payment against a structure. Immutable after
// creation except for the completed -> refunded transition.
type Payment struct {
	ID             string          `db:"id" json:"id"`
	SchoolID       string          `db:"school_id" json:"school_id"`
	StudentID      string          `db:"student_id" json:"student_id"`
	FeeStructureID string          `db:"fee_structure_id" json:"fee_structure_id"`
	ReceiptNo      string          `db:"receipt_no" json:"receipt_no"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	PaymentDate    time.Time       `db:"payment_date" json:"payment_date"`
	Mode           PaymentMode     `db:"payment_mode" json:"payment_mode"`
	Status         PaymentStatus   `db:"status" json:"status"`
	TransactionID  *string         `db:"transaction_id" json:"transaction_id,omitempty"`
	ChequeNo       *string         `db:"cheque_no" json:"cheque_no,omitempty"`
	BankName       *string         `db:"bank_name" json:"bank_name,omitempty"`
	Remarks        *string         `db:"remarks" json:"remarks,omitempty"`
	CollectedBy    *string         `db:"collected_by" json:"collected_by,omitempty"`
	RefundedAmount decimal.Decimal `db:"refunded_amount" json:"refunded_amount"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentDetail embeds the payment plus joined display fields.
type PaymentDetail struct {
	Payment
	StudentName string `db:"student_name" json:"student_name"`
	AdmissionNo string `db:"admission_no" json:"admission_no"`
	ClassName   string `db:"class_name" json:"class_name"`
}

// PaymentFilter captures listing criteria for payments.
type PaymentFilter struct {
	SchoolID       string
	StudentID      string
	FeeStructureID string
	Mode           PaymentMode
	Status         PaymentStatus
	DateFrom       *time.Time
	DateTo         *time.Time
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// PaymentHistoryEntry is an append-only audit record for payment mutations.
type PaymentHistoryEntry struct {
	ID            string           `db:"id" json:"id"`
	PaymentID     string           `db:"payment_id" json:"payment_id"`
	Action        string           `db:"action" json:"action"`
	OldStatus     *string          `db:"old_status" json:"old_status,omitempty"`
	NewStatus     *string          `db:"new_status" json:"new_status,omitempty"`
	AmountChanged *decimal.Decimal `db:"amount_changed" json:"amount_changed,omitempty"`
	Remarks       *string          `db:"remarks" json:"remarks,omitempty"`
	ChangedBy     *string          `db:"changed_by" json:"changed_by,omitempty"`
	ChangedAt     time.Time        `db:"changed_at" json:"changed_at"`
}

// StudentFeeStatus is the materialized running balance of one student against
// one fee structure. paid_amount must always equal the sum of completed
// payment amounts minus refunds for the pair.
type StudentFeeStatus struct {
	ID             string `db:"id" json:"id"`
	SchoolID       string `db:"school_id" json:"school_id"`
	StudentID      string `db:"student_id" json:"student_id"`
	FeeStructureID string `db:"fee_structure_id" json:"fee_structure_id"`

	TotalFee        decimal.Decimal `db:"total_fee" json:"total_fee"`
	PaidAmount      decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	RemainingAmount decimal.Decimal `db:"remaining_amount" json:"remaining_amount"`

	PaymentPercentage float64 `db:"payment_percentage" json:"payment_percentage"`
	IsFullyPaid       bool    `db:"is_fully_paid" json:"is_fully_paid"`
	IsOverdue         bool    `db:"is_overdue" json:"is_overdue"`

	NextDueDate     *time.Time `db:"next_due_date" json:"next_due_date,omitempty"`
	LastPaymentDate *time.Time `db:"last_payment_date" json:"last_payment_date,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Recalculate derives payment_percentage, remaining_amount, is_fully_paid and
// is_overdue from total_fee, paid_amount and next_due_date. It is pure and
// idempotent: rerunning with the same inputs yields the same outputs.
func (s *StudentFeeStatus) Recalculate(today time.Time) {
	if s.TotalFee.IsPositive() {
		pct, _ := s.PaidAmount.Div(s.TotalFee).Mul(decimal.NewFromInt(100)).Float64()
		if pct > 100 {
			pct = 100
		}
		s.PaymentPercentage = pct
		s.RemainingAmount = s.TotalFee.Sub(s.PaidAmount)
		if s.RemainingAmount.IsNegative() {
			s.RemainingAmount = decimal.Zero
		}
		s.IsFullyPaid = s.RemainingAmount.IsZero()
	} else {
		s.PaymentPercentage = 0
		s.RemainingAmount = decimal.Zero
		s.IsFullyPaid = true
	}

	if s.IsFullyPaid {
		s.IsOverdue = false
		s.NextDueDate = nil
		return
	}
	s.IsOverdue = s.NextDueDate != nil && s.NextDueDate.Before(truncateToDay(today))
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Defaulter is one row of the overdue accounts report.
type Defaulter struct {
	StudentID       string          `db:"student_id" json:"student_id"`
	StudentName     string          `db:"student_name" json:"name"`
	AdmissionNo     string          `db:"admission_no" json:"admission_no"`
	Phone           string          `db:"phone" json:"phone"`
	GuardianName    string          `db:"guardian_name" json:"guardian_name"`
	GuardianEmail   string          `db:"guardian_email" json:"guardian_email"`
	ClassName       string          `db:"class_name" json:"class"`
	AmountDue       decimal.Decimal `db:"remaining_amount" json:"amount_due"`
	NextDueDate     *time.Time      `db:"next_due_date" json:"due_date,omitempty"`
	LastPaymentDate *time.Time      `db:"last_payment_date" json:"last_payment,omitempty"`
	DaysOverdue     int             `db:"-" json:"days_overdue"`
}
