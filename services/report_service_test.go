package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateReportPDF(t *testing.T) {
	t.Setenv("REPORTS_PATH", t.TempDir())

	app := sampleApplication()
	app.ApplicationID = 7
	decision := "Approved"
	score := 0.82
	reasons := `{"Prediction based on":"Overall application profile"}`
	app.FinalDecision = &decision
	app.FinalScore = &score
	app.DecisionReasons = &reasons

	path, err := CreateReportPDF(app)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ReportsDir(), "report_app_7.pdf"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestCreateReportPDFUndecidedApplication(t *testing.T) {
	// Sparse applications still render; missing fields show as N/A.
	t.Setenv("REPORTS_PATH", t.TempDir())

	app := sampleApplication()
	app.ApplicationID = 8
	app.Gender = nil
	app.LoanAmountTerm = nil

	path, err := CreateReportPDF(app)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestFormatReasons(t *testing.T) {
	assert.Equal(t, "N/A", formatReasons(nil))

	empty := ""
	assert.Equal(t, "N/A", formatReasons(&empty))

	single := `{"Reason":"Multiple bounced checks found in the bank statement."}`
	assert.Equal(t, "Reason: Multiple bounced checks found in the bank statement.", formatReasons(&single))

	multi := `{"b":"2","a":"1"}`
	assert.Equal(t, "a: 1, b: 2", formatReasons(&multi))

	invalid := "plain text rationale"
	assert.Equal(t, "plain text rationale", formatReasons(&invalid))
}

func TestReportFieldFormatting(t *testing.T) {
	assert.Equal(t, "N/A", orNA("  "))
	assert.Equal(t, "Urban", orNA("Urban"))
	assert.Equal(t, "N/A", orNAPtr(nil))
	assert.Equal(t, "Rs. 20000.00", formatMoney(20000))
	assert.Equal(t, "N/A", formatIntPtr(nil))

	one := 1
	zero := 0
	assert.Equal(t, "Yes", yesNo(&one))
	assert.Equal(t, "No", yesNo(&zero))
	assert.Equal(t, "No", yesNo(nil))
}
