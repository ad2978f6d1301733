package models

import "time"

// Application workflow statuses. Transitions are monotonic:
// pending_documents -> pending_approval -> approved|rejected.
const (
	StatusPendingDocuments = "pending_documents"
	StatusPendingApproval  = "pending_approval"
	StatusApproved         = "approved"
	StatusRejected         = "rejected"
)

type CreditApplication struct {
	ApplicationID int `gorm:"primaryKey;column:application_id" json:"application_id"`

	// Declared applicant data
	FullName          string  `gorm:"column:full_name" json:"full_name"`
	Gender            *string `gorm:"column:gender" json:"gender,omitempty"`
	Married           *string `gorm:"column:married" json:"married,omitempty"`
	Dependents        *string `gorm:"column:dependents" json:"dependents,omitempty"`
	Education         *string `gorm:"column:education" json:"education,omitempty"`
	SelfEmployed      *string `gorm:"column:self_employed" json:"self_employed,omitempty"`
	MonthlyIncome     float64 `gorm:"column:monthly_income" json:"monthly_income"`
	CoapplicantIncome float64 `gorm:"column:coapplicant_income" json:"coapplicant_income"`
	LoanAmount        float64 `gorm:"column:loan_amount" json:"loan_amount"`
	LoanAmountTerm    *int    `gorm:"column:loan_amount_term" json:"loan_amount_term,omitempty"`
	CreditHistory     *int    `gorm:"column:credit_history" json:"credit_history,omitempty"`
	PropertyArea      *string `gorm:"column:property_area" json:"property_area,omitempty"`

	// Bank statement analysis
	BankStatementPath  *string  `gorm:"column:bank_statement_path" json:"bank_statement_path,omitempty"`
	AverageBalance     *float64 `gorm:"column:average_balance" json:"average_balance,omitempty"`
	EstimatedSalary    *float64 `gorm:"column:estimated_salary" json:"estimated_salary,omitempty"`
	BouncedChecksCount *int     `gorm:"column:bounced_checks_count" json:"bounced_checks_count,omitempty"`
	MissedRecentEMIs   *bool    `gorm:"column:missed_recent_emis" json:"missed_recent_emis,omitempty"`

	// Workflow and prediction
	Status              string   `gorm:"column:status;default:pending_documents" json:"status"`
	PreliminaryDecision *string  `gorm:"column:preliminary_decision" json:"preliminary_decision,omitempty"`
	VerifiedDecision    *string  `gorm:"column:verified_decision" json:"verified_decision,omitempty"`
	VerifiedScore       *float64 `gorm:"column:verified_score" json:"verified_score,omitempty"`
	FinalDecision       *string  `gorm:"column:final_decision" json:"final_decision,omitempty"`
	FinalScore          *float64 `gorm:"column:final_score" json:"final_score,omitempty"`
	DecisionReasons     *string  `gorm:"column:decision_reasons" json:"decision_reasons,omitempty"`

	// Identity documents and OCR verification
	AadhaarPath    *string `gorm:"column:aadhaar_path" json:"aadhaar_path,omitempty"`
	SalarySlipPath *string `gorm:"column:salary_slip_path" json:"salary_slip_path,omitempty"`
	OCRNameMatch   *bool   `gorm:"column:ocr_name_match" json:"ocr_name_match,omitempty"`
	OCRIncomeMatch *bool   `gorm:"column:ocr_income_match" json:"ocr_income_match,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	OwnerID   int       `gorm:"column:owner_id" json:"owner_id"`

	// Relations
	Owner User `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
}

func (CreditApplication) TableName() string {
	return "credit_applications"
}

// IsDecided reports whether the application reached a terminal status.
func (a *CreditApplication) IsDecided() bool {
	return a.Status == StatusApproved || a.Status == StatusRejected
}
