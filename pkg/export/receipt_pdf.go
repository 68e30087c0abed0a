package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Receipt describes one payment receipt document.
type Receipt struct {
	SchoolName    string
	SchoolAddress string
	SchoolPhone   string
	ReceiptNo     string
	PaymentDate   string
	StudentName   string
	AdmissionNo   string
	ClassName     string
	AcademicYear  string
	PaymentMode   string
	TransactionID string
	Amount        string
	AmountPaid    string
	RemainingDue  string
	Status        string
	CollectedBy   string
}

// ReceiptExporter renders payment receipts as single-page PDFs.
type ReceiptExporter struct{}

// NewReceiptExporter constructs a ReceiptExporter.
func NewReceiptExporter() *ReceiptExporter {
	return &ReceiptExporter{}
}

// Render produces the receipt PDF.
func (e *ReceiptExporter) Render(r Receipt) ([]byte, error) {
	if r.ReceiptNo == "" {
		return nil, fmt.Errorf("receipt requires a receipt number")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, r.SchoolName, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	if r.SchoolAddress != "" {
		pdf.CellFormat(0, 5, r.SchoolAddress, "", 1, "C", false, 0, "")
	}
	if r.SchoolPhone != "" {
		pdf.CellFormat(0, 5, "Phone: "+r.SchoolPhone, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 9, "FEE RECEIPT", "TB", 1, "C", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Receipt No", r.ReceiptNo},
		{"Date", r.PaymentDate},
		{"Student Name", r.StudentName},
		{"Admission No", r.AdmissionNo},
		{"Class", r.ClassName},
		{"Academic Year", r.AcademicYear},
		{"Payment Mode", r.PaymentMode},
	}
	if r.TransactionID != "" {
		rows = append(rows, [2]string{"Transaction ID", r.TransactionID})
	}
	rows = append(rows,
		[2]string{"Amount Paid", r.Amount},
		[2]string{"Total Paid To Date", r.AmountPaid},
		[2]string{"Balance Due", r.RemainingDue},
		[2]string{"Status", r.Status},
	)

	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(60, 8, row[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(120, 8, row[1], "1", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "I", 8)
	if r.CollectedBy != "" {
		pdf.CellFormat(0, 5, "Collected by: "+r.CollectedBy, "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 5, "This is a system generated receipt.", "", 1, "L", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
