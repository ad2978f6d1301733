package services

import (
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"credit-underwriting-api/utils"
)

// StatementMetrics is the aggregate financial behavior extracted from one bank
// statement. Produced once per upload and never mutated afterward.
type StatementMetrics struct {
	AverageBalance     float64 `json:"average_balance"`
	EstimatedSalary    float64 `json:"estimated_salary"`
	BouncedChecksCount int     `json:"bounced_checks_count"`
	MissedRecentEMIs   bool    `json:"missed_recent_emis"`
}

type transaction struct {
	Date        time.Time
	Description string
	Debit       float64
	Credit      float64
	Balance     float64
}

var (
	emiRegex     = regexp.MustCompile(`(?i)emi|loan|instalment`)
	bouncedRegex = regexp.MustCompile(`(?i)bounce|dishonor|insufficient`)
)

// Header synonyms seen across bank statement formats, keyed by the normalized
// (lowercased, space->underscore) header cell.
var columnSynonyms = map[string]string{
	"date":             "date",
	"txn_date":         "date",
	"transaction_date": "date",
	"description":      "description",
	"narration":        "description",
	"particulars":      "description",
	"debit":            "debit",
	"withdrawal":       "debit",
	"withdrawal_amt.":  "debit",
	"credit":           "credit",
	"deposit":          "credit",
	"deposit_amt.":     "credit",
	"balance":          "balance",
}

// Monthly credit totals at or below this are ignored when estimating salary;
// they are small transfers, not pay.
const salaryCreditFloor = 10000

// Horizontal gap (in PDF points) treated as a column boundary when
// reconstructing table rows from positioned text.
const columnGap = 10.0

// AnalyzeBankStatement extracts the transaction table from a statement PDF and
// derives metrics from it. A statement that cannot be parsed yields nil rather
// than an error so the application flow can continue with reduced signal.
func AnalyzeBankStatement(pdfPath string, now time.Time) *StatementMetrics {
	rows, err := extractTableRows(pdfPath)
	if err != nil {
		log.Printf("Error parsing bank statement PDF %s: %v", pdfPath, err)
		return nil
	}

	transactions, ok := rowsToTransactions(rows)
	if !ok {
		log.Printf("Could not find essential Date, Debit, or Credit columns in %s", pdfPath)
		return nil
	}
	if len(transactions) == 0 {
		log.Printf("Could not find any transaction rows in %s", pdfPath)
		return nil
	}

	metrics := analyzeTransactions(transactions, now)
	return &metrics
}

// extractTableRows reads every page and groups positioned text into rows of
// cells, splitting cells on horizontal gaps.
func extractTableRows(pdfPath string) ([][]string, error) {
	f, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tableRows [][]string
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			cells := rowToCells(row)
			if len(cells) > 0 {
				tableRows = append(tableRows, cells)
			}
		}
	}
	return tableRows, nil
}

func rowToCells(row *pdf.Row) []string {
	texts := make([]pdf.Text, len(row.Content))
	copy(texts, row.Content)
	sort.Slice(texts, func(i, j int) bool { return texts[i].X < texts[j].X })

	var (
		cells   []string
		current strings.Builder
		lastEnd float64
	)
	for i, t := range texts {
		if i > 0 && t.X-lastEnd > columnGap {
			cells = append(cells, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(t.S)
		lastEnd = t.X + t.W
	}
	if current.Len() > 0 {
		cells = append(cells, strings.TrimSpace(current.String()))
	}

	// Drop rows that are entirely empty after trimming.
	empty := true
	for _, c := range cells {
		if c != "" {
			empty = false
			break
		}
	}
	if empty {
		return nil
	}
	return cells
}

// rowsToTransactions locates header rows, maps columns through the synonym
// table and coerces the data rows. Returns ok=false when no header with the
// essential date/debit/credit columns exists.
func rowsToTransactions(rows [][]string) ([]transaction, bool) {
	var (
		transactions []transaction
		columns      map[string]int
		sawHeader    bool
	)

	for _, cells := range rows {
		if mapped := matchHeader(cells); mapped != nil {
			// A new page may repeat the header; adopt it and keep going.
			if _, hasDate := mapped["date"]; hasDate {
				if _, hasDebit := mapped["debit"]; hasDebit {
					if _, hasCredit := mapped["credit"]; hasCredit {
						columns = mapped
						sawHeader = true
					}
				}
			}
			continue
		}
		if columns == nil {
			continue
		}

		date, ok := parseStatementDate(cell(cells, columns["date"]))
		if !ok {
			continue
		}
		txn := transaction{
			Date:   date,
			Debit:  utils.ParseAmountOrZero(cell(cells, columns["debit"])),
			Credit: utils.ParseAmountOrZero(cell(cells, columns["credit"])),
		}
		if idx, has := columns["description"]; has {
			txn.Description = cell(cells, idx)
		}
		if idx, has := columns["balance"]; has {
			txn.Balance = utils.ParseAmountOrZero(cell(cells, idx))
		}
		transactions = append(transactions, txn)
	}

	return transactions, sawHeader
}

// matchHeader returns a column-index map when at least two cells normalize to
// known statement columns, nil otherwise.
func matchHeader(cells []string) map[string]int {
	mapped := make(map[string]int)
	for i, c := range cells {
		normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c)), " ", "_")
		if name, ok := columnSynonyms[normalized]; ok {
			if _, exists := mapped[name]; !exists {
				mapped[name] = i
			}
		}
	}
	if len(mapped) < 2 {
		return nil
	}
	return mapped
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

// Day-first formats common in Indian bank statements, plus ISO.
var statementDateFormats = []string{
	"02/01/2006",
	"02-01-2006",
	"02/01/06",
	"02-01-06",
	"02 Jan 2006",
	"02-Jan-2006",
	"2006-01-02",
}

func parseStatementDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range statementDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func analyzeTransactions(transactions []transaction, now time.Time) StatementMetrics {
	thisMonthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastMonthStart := thisMonthStart.AddDate(0, -1, 0)
	twoMonthsAgoStart := thisMonthStart.AddDate(0, -2, 0)

	var (
		balanceSum      float64
		bouncedCount    int
		paidLastMonth   bool
		paidMonthBefore bool
	)
	monthlyCredits := make(map[string]float64)

	for _, txn := range transactions {
		balanceSum += txn.Balance
		if bouncedRegex.MatchString(txn.Description) {
			bouncedCount++
		}
		if emiRegex.MatchString(txn.Description) {
			if !txn.Date.Before(lastMonthStart) && txn.Date.Before(thisMonthStart) {
				paidLastMonth = true
			}
			if !txn.Date.Before(twoMonthsAgoStart) && txn.Date.Before(lastMonthStart) {
				paidMonthBefore = true
			}
		}
		monthlyCredits[txn.Date.Format("2006-01")] += txn.Credit
	}

	// Median of the plausible monthly credit totals resists one-off large
	// irregular deposits better than the mean.
	var salaryCandidates []float64
	for _, total := range monthlyCredits {
		if total > salaryCreditFloor {
			salaryCandidates = append(salaryCandidates, total)
		}
	}

	return StatementMetrics{
		AverageBalance:     balanceSum / float64(len(transactions)),
		EstimatedSalary:    median(salaryCandidates),
		BouncedChecksCount: bouncedCount,
		MissedRecentEMIs:   !(paidLastMonth && paidMonthBefore),
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
