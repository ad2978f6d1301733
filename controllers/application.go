package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"credit-underwriting-api/config"
	"credit-underwriting-api/models"
	"credit-underwriting-api/services"
)

// CreditApplicationCreate is the applicant-entered payload, carried as a JSON
// form field alongside the bank statement upload.
type CreditApplicationCreate struct {
	FullName          string  `json:"full_name" binding:"required"`
	Gender            string  `json:"gender" binding:"required"`
	Married           string  `json:"married" binding:"required"`
	Dependents        string  `json:"dependents" binding:"required"`
	Education         string  `json:"education" binding:"required"`
	SelfEmployed      string  `json:"self_employed" binding:"required"`
	MonthlyIncome     float64 `json:"monthly_income" binding:"required"`
	CoapplicantIncome float64 `json:"coapplicant_income"`
	LoanAmount        float64 `json:"loan_amount" binding:"required"`
	LoanAmountTerm    int     `json:"loan_amount_term" binding:"required"`
	CreditHistory     *int    `json:"credit_history" binding:"required"`
	PropertyArea      string  `json:"property_area" binding:"required"`
}

func uploadPath() string {
	if p := os.Getenv("UPLOAD_PATH"); p != "" {
		return p
	}
	return "uploads"
}

// Deterministic document naming: application id + owner id + document kind.
func documentPath(appID, userID int, kind string) string {
	return filepath.Join(uploadPath(), fmt.Sprintf("app_%d_user_%d_%s", appID, userID, kind))
}

// CreateApplication accepts the applicant data plus a bank statement, analyzes
// the statement and runs the immediate preliminary prediction on declared
// income.
func CreateApplication(c *gin.Context) {
	userID := c.GetInt("userID")

	appData := c.PostForm("app_data")
	var req CreditApplicationCreate
	if err := json.Unmarshal([]byte(appData), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid application data format"})
		return
	}
	if err := validateApplicationCreate(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	statementFile, err := c.FormFile("bank_statement")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bank statement file is required"})
		return
	}

	app := models.CreditApplication{
		FullName:          req.FullName,
		Gender:            &req.Gender,
		Married:           &req.Married,
		Dependents:        &req.Dependents,
		Education:         &req.Education,
		SelfEmployed:      &req.SelfEmployed,
		MonthlyIncome:     req.MonthlyIncome,
		CoapplicantIncome: req.CoapplicantIncome,
		LoanAmount:        req.LoanAmount,
		LoanAmountTerm:    &req.LoanAmountTerm,
		CreditHistory:     req.CreditHistory,
		PropertyArea:      &req.PropertyArea,
		CreatedAt:         time.Now(),
	}
	if err := services.CreateApplication(config.DB, &app, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create application"})
		return
	}

	statementPath := documentPath(app.ApplicationID, userID, "statement.pdf")
	if err := c.SaveUploadedFile(statementFile, statementPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save bank statement"})
		return
	}

	// A statement that is not even a valid PDF degrades to missing metrics,
	// it does not fail the application.
	var metrics *services.StatementMetrics
	if err := pdfapi.ValidateFile(statementPath, nil); err != nil {
		log.Printf("Uploaded statement %s failed PDF validation: %v", statementPath, err)
	} else {
		metrics = services.AnalyzeBankStatement(statementPath, time.Now())
	}

	appWithData, err := services.UpdateStatementData(config.DB, app.ApplicationID, statementPath, metrics)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save statement metrics"})
		return
	}

	decision, err := services.PredictCreditworthiness(config.DB, appWithData, false, nil)
	if err != nil {
		respondPredictionError(c, err)
		return
	}

	updated, err := services.UpdatePreliminaryDecision(config.DB, app.ApplicationID, decision.Label)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save preliminary decision"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"application_id":       updated.ApplicationID,
		"status":               updated.Status,
		"preliminary_decision": updated.PreliminaryDecision,
	})
}

// UploadDocuments handles the identity document uploads, OCR verification and
// the second, more accurate prediction in one synchronous unit of work.
func UploadDocuments(c *gin.Context) {
	userID := c.GetInt("userID")
	appID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid application id"})
		return
	}

	app, err := services.GetApplication(config.DB, appID)
	if err != nil || app.OwnerID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Application not found"})
		return
	}

	aadhaarFile, err := c.FormFile("aadhaar_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Aadhaar file is required"})
		return
	}
	salarySlipFile, err := c.FormFile("salary_slip_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Salary slip file is required"})
		return
	}

	// Both documents must be on disk before any state is written; a failed
	// save aborts the request with the application untouched.
	aadhaarPath := documentPath(app.ApplicationID, userID, "aadhaar.jpg")
	salarySlipPath := documentPath(app.ApplicationID, userID, "salary.pdf")
	if err := c.SaveUploadedFile(aadhaarFile, aadhaarPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save files"})
		return
	}
	if err := c.SaveUploadedFile(salarySlipFile, salarySlipPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save files"})
		return
	}

	aadhaarText := services.ExtractTextFromImage(aadhaarPath)
	salaryText := services.ExtractTextFromImage(salarySlipPath)
	identity := services.ParseAadhaarDocument(aadhaarText)
	financials := services.ParseFinancialDocument(salaryText)

	nameMatch := false
	if identity.Name != nil {
		nameMatch = services.IsNameMatch(app.FullName, *identity.Name, services.DefaultNameMatchThreshold)
	}
	incomeMatch := false
	if financials.Salary != nil {
		incomeMatch = services.IsIncomeMatch(app.MonthlyIncome, *financials.Salary)
	}

	decision, err := services.PredictCreditworthiness(config.DB, app, true, financials.Salary)
	if err != nil {
		respondPredictionError(c, err)
		return
	}

	if _, err := services.UpdateVerifiedDecision(config.DB, appID, decision.Label, decision.Score, nameMatch, incomeMatch); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save verified decision"})
		return
	}
	if _, err := services.UpdateDocsAndStatus(config.DB, appID, aadhaarPath, salarySlipPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update application status"})
		return
	}

	notificationHub.Broadcast(fmt.Sprintf(
		"Documents for application #%d have been verified and are ready for admin approval.", app.ApplicationID))

	c.JSON(http.StatusOK, gin.H{"message": "Documents uploaded and verified successfully."})
}

// GetMyApplications lists the applications of the logged-in user.
func GetMyApplications(c *gin.Context) {
	userID := c.GetInt("userID")

	apps, err := services.GetUserApplications(config.DB, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch applications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

// GetMyApplication returns one application owned by the logged-in user.
func GetMyApplication(c *gin.Context) {
	userID := c.GetInt("userID")
	appID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid application id"})
		return
	}

	app, err := services.GetApplication(config.DB, appID)
	if err != nil || app.OwnerID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Application not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"application": app})
}

// validateApplicationCreate enforces the required fields by hand: the payload
// arrives as a JSON form field and json.Unmarshal does not activate the
// binding tags.
func validateApplicationCreate(req *CreditApplicationCreate) error {
	switch {
	case req.FullName == "":
		return errors.New("full_name is required")
	case req.Gender == "":
		return errors.New("gender is required")
	case req.Married == "":
		return errors.New("married is required")
	case req.Dependents == "":
		return errors.New("dependents is required")
	case req.Education == "":
		return errors.New("education is required")
	case req.SelfEmployed == "":
		return errors.New("self_employed is required")
	case req.MonthlyIncome <= 0:
		return errors.New("monthly_income must be positive")
	case req.LoanAmount <= 0:
		return errors.New("loan_amount must be positive")
	case req.LoanAmountTerm <= 0:
		return errors.New("loan_amount_term must be positive")
	case req.CreditHistory == nil:
		return errors.New("credit_history is required")
	case req.PropertyArea == "":
		return errors.New("property_area is required")
	}
	return nil
}

func respondPredictionError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrModelUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Risk model unavailable; please retry after training"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Prediction failed"})
}
