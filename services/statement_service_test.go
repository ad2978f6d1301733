package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reference time for EMI recency checks: the two relevant calendar months are
// March and February 2024.
var statementNow = time.Date(2024, time.April, 15, 10, 0, 0, 0, time.UTC)

func txn(date string, description string, debit, credit, balance float64) transaction {
	d, ok := parseStatementDate(date)
	if !ok {
		panic("bad test date: " + date)
	}
	return transaction{Date: d, Description: description, Debit: debit, Credit: credit, Balance: balance}
}

func TestAnalyzeTransactionsEMIPresentInBothRecentMonths(t *testing.T) {
	transactions := []transaction{
		txn("05/02/2024", "SALARY CREDIT FEB", 0, 50000, 60000),
		txn("10/02/2024", "EMI HDFC HOME LOAN", 12000, 0, 48000),
		txn("05/03/2024", "SALARY CREDIT MAR", 0, 50000, 98000),
		txn("10/03/2024", "EMI HDFC HOME LOAN", 12000, 0, 86000),
	}

	metrics := analyzeTransactions(transactions, statementNow)
	assert.False(t, metrics.MissedRecentEMIs)
	assert.Equal(t, 0, metrics.BouncedChecksCount)
}

func TestAnalyzeTransactionsEMIMissingLastMonth(t *testing.T) {
	transactions := []transaction{
		txn("10/02/2024", "EMI HDFC HOME LOAN", 12000, 0, 48000),
		txn("05/03/2024", "SALARY CREDIT MAR", 0, 50000, 98000),
	}

	metrics := analyzeTransactions(transactions, statementNow)
	assert.True(t, metrics.MissedRecentEMIs)
}

func TestAnalyzeTransactionsEMIMissingMonthBefore(t *testing.T) {
	transactions := []transaction{
		txn("05/02/2024", "SALARY CREDIT FEB", 0, 50000, 60000),
		txn("10/03/2024", "LOAN INSTALMENT SBI", 12000, 0, 86000),
	}

	metrics := analyzeTransactions(transactions, statementNow)
	assert.True(t, metrics.MissedRecentEMIs)
}

func TestAnalyzeTransactionsEMIOutsideWindowDoesNotCount(t *testing.T) {
	// EMIs in January and in the current month fall outside the two-month
	// lookback window.
	transactions := []transaction{
		txn("10/01/2024", "EMI HDFC HOME LOAN", 12000, 0, 48000),
		txn("10/04/2024", "EMI HDFC HOME LOAN", 12000, 0, 36000),
	}

	metrics := analyzeTransactions(transactions, statementNow)
	assert.True(t, metrics.MissedRecentEMIs)
}

func TestAnalyzeTransactionsBouncedChecks(t *testing.T) {
	transactions := []transaction{
		txn("03/02/2024", "CHQ BOUNCE CHARGES", 500, 0, 20000),
		txn("15/02/2024", "INSUFFICIENT FUNDS FEE", 350, 0, 19650),
		txn("20/02/2024", "CHEQUE DISHONOR PENALTY", 500, 0, 19150),
		txn("25/02/2024", "GROCERY STORE", 2000, 0, 17150),
	}

	metrics := analyzeTransactions(transactions, statementNow)
	assert.Equal(t, 3, metrics.BouncedChecksCount)
}

func TestAnalyzeTransactionsAverageBalance(t *testing.T) {
	transactions := []transaction{
		txn("01/02/2024", "OPENING", 0, 0, 10000),
		txn("10/02/2024", "RENT", 5000, 0, 20000),
		txn("20/02/2024", "SALARY", 0, 40000, 30000),
	}

	metrics := analyzeTransactions(transactions, statementNow)
	assert.InDelta(t, 20000, metrics.AverageBalance, 1e-9)
}

func TestAnalyzeTransactionsSalaryIsMedianOfMonthlyCredits(t *testing.T) {
	// Monthly credit totals: Jan 48000, Feb 50000, Mar 90000 (salary plus a
	// one-off transfer). The median resists the outlier month.
	transactions := []transaction{
		txn("05/01/2024", "SALARY CREDIT", 0, 48000, 50000),
		txn("05/02/2024", "SALARY CREDIT", 0, 50000, 52000),
		txn("05/03/2024", "SALARY CREDIT", 0, 50000, 54000),
		txn("18/03/2024", "FD MATURITY TRANSFER", 0, 40000, 94000),
	}

	metrics := analyzeTransactions(transactions, statementNow)
	assert.InDelta(t, 50000, metrics.EstimatedSalary, 1e-9)
}

func TestAnalyzeTransactionsSmallCreditsIgnoredForSalary(t *testing.T) {
	// No monthly total above the floor means no salary estimate.
	transactions := []transaction{
		txn("05/01/2024", "UPI TRANSFER", 0, 3000, 5000),
		txn("05/02/2024", "UPI TRANSFER", 0, 4000, 6000),
	}

	metrics := analyzeTransactions(transactions, statementNow)
	assert.Zero(t, metrics.EstimatedSalary)
}

func TestParseStatementDateFormats(t *testing.T) {
	for _, input := range []string{"15/03/2024", "15-03-2024", "15 Mar 2024", "15-Mar-2024", "2024-03-15"} {
		parsed, ok := parseStatementDate(input)
		require.True(t, ok, "should parse %q", input)
		assert.Equal(t, 2024, parsed.Year())
		assert.Equal(t, time.March, parsed.Month())
		assert.Equal(t, 15, parsed.Day())
	}

	_, ok := parseStatementDate("not a date")
	assert.False(t, ok)
	_, ok = parseStatementDate("")
	assert.False(t, ok)
}

func TestMatchHeaderSynonyms(t *testing.T) {
	mapped := matchHeader([]string{"Txn Date", "Narration", "Withdrawal", "Deposit", "Balance"})
	require.NotNil(t, mapped)
	assert.Equal(t, 0, mapped["date"])
	assert.Equal(t, 1, mapped["description"])
	assert.Equal(t, 2, mapped["debit"])
	assert.Equal(t, 3, mapped["credit"])
	assert.Equal(t, 4, mapped["balance"])

	// Fewer than two recognized columns is not a header.
	assert.Nil(t, matchHeader([]string{"Date", "Something", "Else"}))
	assert.Nil(t, matchHeader([]string{"12/03/2024", "GROCERY", "1,200.00"}))
}

func TestRowsToTransactions(t *testing.T) {
	rows := [][]string{
		{"Statement of Account"},
		{"Date", "Description", "Debit", "Credit", "Balance"},
		{"05/02/2024", "SALARY CREDIT", "", "50,000.00", "60,000.00"},
		{"10/02/2024", "EMI HDFC", "12,000.00", "", "48,000.00"},
		{"garbage row without a date", "", "", "", ""},
	}

	transactions, ok := rowsToTransactions(rows)
	require.True(t, ok)
	require.Len(t, transactions, 2)

	assert.Equal(t, 50000.0, transactions[0].Credit)
	assert.Equal(t, "SALARY CREDIT", transactions[0].Description)
	assert.Equal(t, 12000.0, transactions[1].Debit)
	assert.Equal(t, 48000.0, transactions[1].Balance)
}

func TestRowsToTransactionsRequiresEssentialColumns(t *testing.T) {
	// Date and balance only: a recognized header, but debit/credit are
	// missing, so the table is unusable.
	rows := [][]string{
		{"Date", "Balance"},
		{"05/02/2024", "60,000.00"},
	}

	_, ok := rowsToTransactions(rows)
	assert.False(t, ok)
}

func TestRowsToTransactionsRepeatedPageHeader(t *testing.T) {
	rows := [][]string{
		{"Date", "Description", "Debit", "Credit", "Balance"},
		{"05/02/2024", "SALARY", "", "50,000.00", "60,000.00"},
		{"Date", "Description", "Debit", "Credit", "Balance"},
		{"05/03/2024", "SALARY", "", "50,000.00", "110,000.00"},
	}

	transactions, ok := rowsToTransactions(rows)
	require.True(t, ok)
	assert.Len(t, transactions, 2)
}

func TestMedian(t *testing.T) {
	assert.Zero(t, median(nil))
	assert.Equal(t, 5.0, median([]float64{5}))
	assert.Equal(t, 4.0, median([]float64{6, 2, 4}))
	assert.Equal(t, 3.0, median([]float64{4, 1, 2, 6}))
}

func TestAnalyzeBankStatementUnreadableFile(t *testing.T) {
	assert.Nil(t, AnalyzeBankStatement("testdata/does_not_exist.pdf", statementNow))
}
