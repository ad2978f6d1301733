package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"credit-underwriting-api/models"
)

func createTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{Email: "applicant@example.com", HashedPassword: "x", FullName: "Ravi Kumar"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestApplicationWorkflowRoundTrip(t *testing.T) {
	db := openTestDB(t)
	user := createTestUser(t, db)

	term := 360
	credit := 1
	app := &models.CreditApplication{
		FullName:       "Ravi Kumar",
		MonthlyIncome:  20000,
		LoanAmount:     150000,
		LoanAmountTerm: &term,
		CreditHistory:  &credit,
	}
	require.NoError(t, CreateApplication(db, app, user.UserID))

	// Freshly created: awaiting documents, every later-stage column NULL.
	stored, err := GetApplication(db, app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingDocuments, stored.Status)
	assert.Equal(t, user.UserID, stored.OwnerID)
	assert.Nil(t, stored.BankStatementPath)
	assert.Nil(t, stored.AverageBalance)
	assert.Nil(t, stored.PreliminaryDecision)
	assert.Nil(t, stored.VerifiedDecision)
	assert.Nil(t, stored.FinalDecision)
	assert.False(t, stored.IsDecided())

	// Statement analysis stage.
	metrics := &StatementMetrics{AverageBalance: 42000, EstimatedSalary: 21000, BouncedChecksCount: 1, MissedRecentEMIs: false}
	stored, err = UpdateStatementData(db, app.ApplicationID, "uploads/app_1_user_1_statement.pdf", metrics)
	require.NoError(t, err)
	require.NotNil(t, stored.AverageBalance)
	assert.Equal(t, 42000.0, *stored.AverageBalance)
	require.NotNil(t, stored.BouncedChecksCount)
	assert.Equal(t, 1, *stored.BouncedChecksCount)
	require.NotNil(t, stored.MissedRecentEMIs)
	assert.False(t, *stored.MissedRecentEMIs)

	stored, err = UpdatePreliminaryDecision(db, app.ApplicationID, LabelMediumRisk)
	require.NoError(t, err)
	require.NotNil(t, stored.PreliminaryDecision)
	assert.Equal(t, LabelMediumRisk, *stored.PreliminaryDecision)
	assert.Equal(t, models.StatusPendingDocuments, stored.Status)

	// Document verification stage.
	stored, err = UpdateVerifiedDecision(db, app.ApplicationID, LabelLowRisk, 0.82, true, true)
	require.NoError(t, err)
	require.NotNil(t, stored.VerifiedScore)
	assert.Equal(t, 0.82, *stored.VerifiedScore)
	require.NotNil(t, stored.OCRNameMatch)
	assert.True(t, *stored.OCRNameMatch)

	stored, err = UpdateDocsAndStatus(db, app.ApplicationID, "uploads/app_1_user_1_aadhaar.jpg", "uploads/app_1_user_1_salary.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, stored.Status)
	require.NotNil(t, stored.AadhaarPath)

	// Admin decision: terminal status is the lowercased decision label.
	stored, err = UpdateFinalDecision(db, app.ApplicationID, DecisionApproved, 0.82, `{"Prediction based on":"Overall application profile"}`)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	require.NotNil(t, stored.FinalDecision)
	assert.Equal(t, DecisionApproved, *stored.FinalDecision)
	assert.True(t, stored.IsDecided())
}

func TestUpdateStatementDataNilMetrics(t *testing.T) {
	db := openTestDB(t)
	user := createTestUser(t, db)

	app := &models.CreditApplication{FullName: "Ravi Kumar", MonthlyIncome: 20000, LoanAmount: 150000}
	require.NoError(t, CreateApplication(db, app, user.UserID))

	// Unparseable statement: the path is recorded, the metric columns stay
	// NULL so downstream hard rules skip them.
	stored, err := UpdateStatementData(db, app.ApplicationID, "uploads/app_1_user_1_statement.pdf", nil)
	require.NoError(t, err)
	require.NotNil(t, stored.BankStatementPath)
	assert.Nil(t, stored.AverageBalance)
	assert.Nil(t, stored.EstimatedSalary)
	assert.Nil(t, stored.BouncedChecksCount)
	assert.Nil(t, stored.MissedRecentEMIs)
}

func TestUpdateFinalDecisionRejected(t *testing.T) {
	db := openTestDB(t)
	user := createTestUser(t, db)

	app := &models.CreditApplication{FullName: "Ravi Kumar", MonthlyIncome: 20000, LoanAmount: 150000}
	require.NoError(t, CreateApplication(db, app, user.UserID))

	stored, err := UpdateFinalDecision(db, app.ApplicationID, DecisionRejected, 0.12, `{"Reason":"Multiple bounced checks found in the bank statement."}`)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)
}

func TestGetUserApplicationsScopedToOwner(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db)
	other := &models.User{Email: "other@example.com", HashedPassword: "x", FullName: "Priya Sharma"}
	require.NoError(t, db.Create(other).Error)

	mine := &models.CreditApplication{FullName: "Ravi Kumar", MonthlyIncome: 20000, LoanAmount: 150000}
	require.NoError(t, CreateApplication(db, mine, owner.UserID))
	theirs := &models.CreditApplication{FullName: "Priya Sharma", MonthlyIncome: 30000, LoanAmount: 90000}
	require.NoError(t, CreateApplication(db, theirs, other.UserID))

	apps, err := GetUserApplications(db, owner.UserID)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, mine.ApplicationID, apps[0].ApplicationID)

	all, err := GetAllApplications(db)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	// Owner relation is preloaded for the admin listing.
	assert.Equal(t, owner.Email, all[0].Owner.Email)
}

func TestGetApplicationNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetApplication(db, 9999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
