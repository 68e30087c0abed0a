package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"

	"github.com/vikram-labs/schoolpay-api/internal/models"
	"github.com/vikram-labs/schoolpay-api/pkg/export"
	"github.com/vikram-labs/schoolpay-api/pkg/storage"
)

// ExportType enumerates the downloadable report kinds.
type ExportType string

const (
	ExportTypePayments    ExportType = "payments"
	ExportTypeDefaulters  ExportType = "defaulters"
	ExportTypeFeeStatuses ExportType = "fee_statuses"
)

// ExportFormat enumerates the supported output formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type exportPaymentsRepo interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
}

type exportStatusRepo interface {
	Find(ctx context.Context, studentID, structureID string) (*models.StudentFeeStatus, error)
	ListBySchool(ctx context.Context, schoolID, classID string, overdueOnly bool) ([]models.StudentFeeStatus, error)
	ListDefaulters(ctx context.Context, schoolID, classID string) ([]models.Defaulter, error)
}

type schoolDirectory interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
	FindClass(ctx context.Context, id string) (*models.Class, error)
}

type structureFinder interface {
	FindByID(ctx context.Context, id string) (*models.FeeStructure, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type receiptRenderer interface {
	Render(r export.Receipt) ([]byte, error)
}

// ExportRequest describes one export to generate.
type ExportRequest struct {
	Type     ExportType
	Format   ExportFormat
	ClassID  string
	DateFrom *time.Time
	DateTo   *time.Time
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	MaxRows   int
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       ExportFormat
	ExpiresAt    time.Time
}

// ExportService builds fee report datasets and persists rendered files.
type ExportService struct {
	payments   exportPaymentsRepo
	statuses   exportStatusRepo
	students   studentReader
	schools    schoolDirectory
	structures structureFinder
	storage    fileStorage
	csv        csvRenderer
	pdf        pdfRenderer
	receipts   receiptRenderer
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
	cfg        ExportConfig
	now        func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(payments exportPaymentsRepo, statuses exportStatusRepo, students studentReader, schools schoolDirectory, structures structureFinder, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}
	return &ExportService{
		payments:   payments,
		statuses:   statuses,
		students:   students,
		schools:    schools,
		structures: structures,
		storage:    store,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		receipts:   export.NewReceiptExporter(),
		signer:     signer,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Generate builds the requested dataset and stores the rendered export,
// returning a signed download URL.
func (s *ExportService) Generate(ctx context.Context, actor models.Actor, req ExportRequest) (*ExportResult, error) {
	if req.Format != ExportFormatCSV && req.Format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", req.Format))
	}

	dataset, title, err := s.buildDataset(ctx, actor, req)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch req.Format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := s.buildFilename(req)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(uuid.NewString(), relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("export generated",
		zap.String("school_id", actor.SchoolID),
		zap.String("type", string(req.Type)),
		zap.String("format", string(req.Format)),
		zap.Int("rows", len(dataset.Rows)))

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       req.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// Receipt renders the PDF receipt for one payment. The returned filename is
// suitable for a Content-Disposition header.
func (s *ExportService) Receipt(ctx context.Context, actor models.Actor, paymentID string) ([]byte, string, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.SchoolID != actor.SchoolID {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "payment not found")
	}

	student, err := s.students.FindByID(ctx, payment.StudentID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	school, err := s.schools.FindByID(ctx, payment.SchoolID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}

	receipt := export.Receipt{
		SchoolName:    school.Name,
		SchoolAddress: school.Address,
		SchoolPhone:   school.Phone,
		ReceiptNo:     payment.ReceiptNo,
		PaymentDate:   payment.PaymentDate.Format("02 Jan 2006"),
		StudentName:   student.FullName,
		AdmissionNo:   student.AdmissionNo,
		PaymentMode:   string(payment.Mode),
		TransactionID: deref(payment.TransactionID),
		Amount:        payment.Amount.StringFixed(2),
		Status:        string(payment.Status),
		CollectedBy:   deref(payment.CollectedBy),
	}
	if class, err := s.schools.FindClass(ctx, student.ClassID); err == nil {
		receipt.ClassName = class.Name
	}
	if structure, err := s.structures.FindByID(ctx, payment.FeeStructureID); err == nil {
		receipt.AcademicYear = structure.AcademicYear
	}
	if status, err := s.statuses.Find(ctx, payment.StudentID, payment.FeeStructureID); err == nil {
		receipt.AmountPaid = status.PaidAmount.StringFixed(2)
		receipt.RemainingDue = status.RemainingAmount.StringFixed(2)
	}

	payload, err := s.receipts.Render(receipt)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return payload, fmt.Sprintf("receipt_%s.pdf", sanitizeFilename(payment.ReceiptNo)), nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (exportID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(req ExportRequest) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	scope := sanitizeFilename(req.ClassID)
	return fmt.Sprintf("%s_%s_%s.%s", req.Type, scope, timestamp, req.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, actor models.Actor, req ExportRequest) (export.Dataset, string, error) {
	switch req.Type {
	case ExportTypePayments:
		return s.buildPaymentsDataset(ctx, actor, req)
	case ExportTypeDefaulters:
		return s.buildDefaultersDataset(ctx, actor, req)
	case ExportTypeFeeStatuses:
		return s.buildStatusDataset(ctx, actor, req)
	default:
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export type %q", req.Type))
	}
}

func (s *ExportService) buildPaymentsDataset(ctx context.Context, actor models.Actor, req ExportRequest) (export.Dataset, string, error) {
	filter := models.PaymentFilter{
		SchoolID: actor.SchoolID,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
		Page:     1,
		PageSize: s.cfg.MaxRows,
	}
	payments, _, err := s.payments.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	rows := make([]map[string]string, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, map[string]string{
			"Receipt No":     p.ReceiptNo,
			"Date":           p.PaymentDate.Format("2006-01-02"),
			"Student":        p.StudentName,
			"Admission No":   p.AdmissionNo,
			"Class":          p.ClassName,
			"Mode":           string(p.Mode),
			"Amount":         p.Amount.StringFixed(2),
			"Refunded":       p.RefundedAmount.StringFixed(2),
			"Status":         string(p.Status),
			"Transaction ID": deref(p.TransactionID),
		})
	}
	dataset := export.Dataset{
		Headers:       []string{"Receipt No", "Date", "Student", "Admission No", "Class", "Mode", "Amount", "Refunded", "Status", "Transaction ID"},
		Rows:          rows,
		AmountColumns: []string{"Amount", "Refunded"},
	}
	return dataset, "Payments Report", nil
}

func (s *ExportService) buildDefaultersDataset(ctx context.Context, actor models.Actor, req ExportRequest) (export.Dataset, string, error) {
	defaulters, err := s.statuses.ListDefaulters(ctx, actor.SchoolID, req.ClassID)
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list defaulters")
	}
	today := s.now()
	rows := make([]map[string]string, 0, len(defaulters))
	for _, d := range defaulters {
		rows = append(rows, map[string]string{
			"Student":      d.StudentName,
			"Admission No": d.AdmissionNo,
			"Class":        d.ClassName,
			"Guardian":     d.GuardianName,
			"Phone":        d.Phone,
			"Amount Due":   d.AmountDue.StringFixed(2),
			"Due Date":     formatExportDate(d.NextDueDate),
			"Days Overdue": fmt.Sprintf("%d", daysOverdue(d.NextDueDate, today)),
			"Last Payment": formatExportDate(d.LastPaymentDate),
		})
	}
	dataset := export.Dataset{
		Headers:       []string{"Student", "Admission No", "Class", "Guardian", "Phone", "Amount Due", "Due Date", "Days Overdue", "Last Payment"},
		Rows:          rows,
		AmountColumns: []string{"Amount Due"},
	}
	return dataset, "Fee Defaulters Report", nil
}

func (s *ExportService) buildStatusDataset(ctx context.Context, actor models.Actor, req ExportRequest) (export.Dataset, string, error) {
	statuses, err := s.statuses.ListBySchool(ctx, actor.SchoolID, req.ClassID, false)
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee statuses")
	}
	rows := make([]map[string]string, 0, len(statuses))
	for _, st := range statuses {
		rows = append(rows, map[string]string{
			"Student ID":   st.StudentID,
			"Total Fee":    st.TotalFee.StringFixed(2),
			"Paid":         st.PaidAmount.StringFixed(2),
			"Remaining":    st.RemainingAmount.StringFixed(2),
			"Paid (%)":     fmt.Sprintf("%.2f", st.PaymentPercentage),
			"Fully Paid":   fmt.Sprintf("%t", st.IsFullyPaid),
			"Overdue":      fmt.Sprintf("%t", st.IsOverdue),
			"Next Due":     formatExportDate(st.NextDueDate),
			"Last Payment": formatExportDate(st.LastPaymentDate),
		})
	}
	dataset := export.Dataset{
		Headers:       []string{"Student ID", "Total Fee", "Paid", "Remaining", "Paid (%)", "Fully Paid", "Overdue", "Next Due", "Last Payment"},
		Rows:          rows,
		AmountColumns: []string{"Total Fee", "Paid", "Remaining"},
	}
	return dataset, "Fee Collection Status", nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatExportDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
