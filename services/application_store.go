package services

import (
	"strings"

	"gorm.io/gorm"

	"credit-underwriting-api/models"
)

// Application store operations. Each update is a read-modify-write against a
// single application; workflow stages only ever write their own fields, so
// later-stage columns stay NULL until their stage runs.

func CreateApplication(db *gorm.DB, app *models.CreditApplication, ownerID int) error {
	app.OwnerID = ownerID
	app.Status = models.StatusPendingDocuments
	return db.Create(app).Error
}

func GetApplication(db *gorm.DB, appID int) (*models.CreditApplication, error) {
	var app models.CreditApplication
	if err := db.First(&app, "application_id = ?", appID).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

func GetUserApplications(db *gorm.DB, userID int) ([]models.CreditApplication, error) {
	var apps []models.CreditApplication
	err := db.Where("owner_id = ?", userID).Order("application_id").Find(&apps).Error
	return apps, err
}

func GetAllApplications(db *gorm.DB) ([]models.CreditApplication, error) {
	var apps []models.CreditApplication
	err := db.Preload("Owner").Order("application_id").Find(&apps).Error
	return apps, err
}

// UpdateStatementData saves the statement path and analyzed metrics. A nil
// metrics value records the path alone; the metric columns stay NULL and the
// pipeline continues with reduced signal.
func UpdateStatementData(db *gorm.DB, appID int, statementPath string, metrics *StatementMetrics) (*models.CreditApplication, error) {
	app, err := GetApplication(db, appID)
	if err != nil {
		return nil, err
	}

	app.BankStatementPath = &statementPath
	if metrics != nil {
		app.AverageBalance = &metrics.AverageBalance
		app.EstimatedSalary = &metrics.EstimatedSalary
		app.BouncedChecksCount = &metrics.BouncedChecksCount
		app.MissedRecentEMIs = &metrics.MissedRecentEMIs
	}

	if err := db.Save(app).Error; err != nil {
		return nil, err
	}
	return app, nil
}

func UpdatePreliminaryDecision(db *gorm.DB, appID int, decision string) (*models.CreditApplication, error) {
	app, err := GetApplication(db, appID)
	if err != nil {
		return nil, err
	}

	app.PreliminaryDecision = &decision

	if err := db.Save(app).Error; err != nil {
		return nil, err
	}
	return app, nil
}

func UpdateVerifiedDecision(db *gorm.DB, appID int, decision string, score float64, nameMatch, incomeMatch bool) (*models.CreditApplication, error) {
	app, err := GetApplication(db, appID)
	if err != nil {
		return nil, err
	}

	app.VerifiedDecision = &decision
	app.VerifiedScore = &score
	app.OCRNameMatch = &nameMatch
	app.OCRIncomeMatch = &incomeMatch

	if err := db.Save(app).Error; err != nil {
		return nil, err
	}
	return app, nil
}

// UpdateDocsAndStatus records the identity document paths and advances the
// application to pending_approval.
func UpdateDocsAndStatus(db *gorm.DB, appID int, aadhaarPath, salarySlipPath string) (*models.CreditApplication, error) {
	app, err := GetApplication(db, appID)
	if err != nil {
		return nil, err
	}

	app.AadhaarPath = &aadhaarPath
	app.SalarySlipPath = &salarySlipPath
	app.Status = models.StatusPendingApproval

	if err := db.Save(app).Error; err != nil {
		return nil, err
	}
	return app, nil
}

// UpdateFinalDecision records the admin-confirmed decision and moves the
// application to its terminal status (the lowercased decision label).
func UpdateFinalDecision(db *gorm.DB, appID int, decision string, score float64, reasonsJSON string) (*models.CreditApplication, error) {
	app, err := GetApplication(db, appID)
	if err != nil {
		return nil, err
	}

	app.FinalDecision = &decision
	app.FinalScore = &score
	app.DecisionReasons = &reasonsJSON
	app.Status = strings.ToLower(decision)

	if err := db.Save(app).Error; err != nil {
		return nil, err
	}
	return app, nil
}
