package services

import (
	"log"
	"os"
	"strconv"

	"gorm.io/gorm"

	"credit-underwriting-api/models"
)

// Decision labels. The three risk tiers come out of the model path; Approved
// and Rejected are the admin-confirmed terminal labels.
const (
	LabelHighRiskRejected = "High Risk (Rejected)"
	LabelLowRisk          = "Low Risk (Likely Approve)"
	LabelHighRisk         = "High Risk (Likely Reject)"
	LabelMediumRisk       = "Medium Risk (Admin Review Required)"

	DecisionApproved = "Approved"
	DecisionRejected = "Rejected"
)

// Fixed scores for hard-rule rejections, distinct from any model output.
const (
	hardRuleCreditHistoryScore = 0.05
	hardRuleMissedEMIScore     = 0.10
	hardRuleBouncedChecksScore = 0.15
)

const defaultReviewBandWidth = 0.15

// Decision is a risk verdict with its confidence score and rationale.
type Decision struct {
	Label   string            `json:"label"`
	Score   float64           `json:"score"`
	Reasons map[string]string `json:"reasons"`
}

// PredictCreditworthiness produces a risk verdict for an application.
//
// Deterministic hard rules run first and short-circuit the model entirely;
// they are valid decisions, not errors. Only when every gate passes is the
// trained forest consulted, with the score mapped to a three-tier label around
// the calibrated threshold. When useOCRData is set and an extracted salary is
// available, it replaces the declared income for scoring.
func PredictCreditworthiness(db *gorm.DB, app *models.CreditApplication, useOCRData bool, ocrSalary *float64) (Decision, error) {
	if app.CreditHistory != nil && *app.CreditHistory == 0 {
		return Decision{
			Label:   LabelHighRiskRejected,
			Score:   hardRuleCreditHistoryScore,
			Reasons: map[string]string{"Reason": "Failed to meet previous credit guidelines."},
		}, nil
	}
	if app.MissedRecentEMIs != nil && *app.MissedRecentEMIs {
		return Decision{
			Label:   LabelHighRiskRejected,
			Score:   hardRuleMissedEMIScore,
			Reasons: map[string]string{"Reason": "Recent EMI payments were missed in the bank statement."},
		}, nil
	}
	if app.BouncedChecksCount != nil && *app.BouncedChecksCount > 1 {
		return Decision{
			Label:   LabelHighRiskRejected,
			Score:   hardRuleBouncedChecksScore,
			Reasons: map[string]string{"Reason": "Multiple bounced checks found in the bank statement."},
		}, nil
	}

	artifact, err := EnsureModel(db)
	if err != nil {
		return Decision{}, err
	}

	monthlyIncome := app.MonthlyIncome
	if useOCRData && ocrSalary != nil {
		monthlyIncome = *ocrSalary
	}

	score := artifact.Score(app, monthlyIncome)
	label := labelForScore(score, artifact.Threshold)

	log.Printf("Risk prediction for application %d: score %.2f, threshold %.2f -> %s",
		app.ApplicationID, score, artifact.Threshold, label)

	return Decision{
		Label:   label,
		Score:   score,
		Reasons: map[string]string{"Prediction based on": "Overall application profile"},
	}, nil
}

func labelForScore(score, threshold float64) string {
	band := reviewBandWidth()
	switch {
	case score > threshold+band:
		return LabelLowRisk
	case score < threshold-band:
		return LabelHighRisk
	default:
		return LabelMediumRisk
	}
}

// reviewBandWidth returns the medium-risk band half-width around the
// calibrated threshold. The 0.15 default is a convention carried from the
// original rollout, so it stays configurable rather than hard-coded.
func reviewBandWidth() float64 {
	if raw := os.Getenv("REVIEW_BAND_WIDTH"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 {
			return v
		}
	}
	return defaultReviewBandWidth
}
