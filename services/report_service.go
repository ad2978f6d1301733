package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"credit-underwriting-api/models"
)

// ReportsDir returns where generated underwriting reports are written.
func ReportsDir() string {
	if d := os.Getenv("REPORTS_PATH"); d != "" {
		return d
	}
	return "reports"
}

// CreateReportPDF renders the underwriting report for a decided application
// and returns the written file path. Invoked only after a final decision.
func CreateReportPDF(app *models.CreditApplication) (string, error) {
	if err := os.MkdirAll(ReportsDir(), os.ModePerm); err != nil {
		return "", err
	}
	filePath := filepath.Join(ReportsDir(), fmt.Sprintf("report_app_%d.pdf", app.ApplicationID))

	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "Credit Underwriting Report", "", 1, "L", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 9, "Applicant Details", "", 1, "L", false, 0, "")
	writeReportTable(pdf, [][2]string{
		{"Application ID:", fmt.Sprintf("%d", app.ApplicationID)},
		{"Full Name:", orNA(app.FullName)},
		{"Gender:", orNAPtr(app.Gender)},
		{"Married:", orNAPtr(app.Married)},
		{"Dependents:", orNAPtr(app.Dependents)},
		{"Education:", orNAPtr(app.Education)},
		{"Self Employed:", orNAPtr(app.SelfEmployed)},
		{"Property Area:", orNAPtr(app.PropertyArea)},
		{"Monthly Income:", formatMoney(app.MonthlyIncome)},
		{"Co-applicant Income:", formatMoney(app.CoapplicantIncome)},
		{"Loan Amount:", formatMoney(app.LoanAmount)},
		{"Loan Term (Months):", formatIntPtr(app.LoanAmountTerm)},
		{"Credit History Meets Guidelines:", yesNo(app.CreditHistory)},
	})
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 9, "Final Decision & Details", "", 1, "L", false, 0, "")

	decision := "Pending"
	if app.FinalDecision != nil {
		decision = *app.FinalDecision
	}
	scoreText := "N/A"
	if app.FinalScore != nil {
		scoreText = fmt.Sprintf("%.2f%%", *app.FinalScore*100)
	}
	writeReportTable(pdf, [][2]string{
		{"Final Decision:", decision},
		{"Confidence Score:", scoreText},
		{"Key Factors (Reasons):", formatReasons(app.DecisionReasons)},
	})
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Report Generated On: "+app.CreatedAt.Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", err
	}
	return filePath, nil
}

func writeReportTable(pdf *gofpdf.Fpdf, rows [][2]string) {
	const labelWidth, valueWidth, rowHeight = 75.0, 105.0, 9.0
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(47, 79, 79)
		pdf.SetTextColor(245, 245, 245)
		pdf.CellFormat(labelWidth, rowHeight, row[0], "1", 0, "L", true, 0, "")

		pdf.SetFont("Helvetica", "", 10)
		pdf.SetFillColor(255, 255, 255)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(valueWidth, rowHeight, row[1], "1", 1, "L", false, 0, "")
	}
	pdf.SetTextColor(0, 0, 0)
}

// formatReasons renders the JSON-serialized rationale as "key: value" pairs,
// falling back to the raw string when it is not valid JSON.
func formatReasons(reasonsJSON *string) string {
	if reasonsJSON == nil || *reasonsJSON == "" {
		return "N/A"
	}
	var reasons map[string]string
	if err := json.Unmarshal([]byte(*reasonsJSON), &reasons); err != nil {
		return *reasonsJSON
	}
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+reasons[k])
	}
	return strings.Join(parts, ", ")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func orNAPtr(p *string) string {
	if p == nil {
		return "N/A"
	}
	return orNA(*p)
}

func formatMoney(v float64) string {
	return fmt.Sprintf("Rs. %.2f", v)
}

func formatIntPtr(p *int) string {
	if p == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *p)
}

func yesNo(creditHistory *int) string {
	if creditHistory != nil && *creditHistory == 1 {
		return "Yes"
	}
	return "No"
}
