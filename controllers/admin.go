package controllers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"credit-underwriting-api/config"
	"credit-underwriting-api/services"
)

// GetAllApplications lists every application for the admin dashboard.
func GetAllApplications(c *gin.Context) {
	apps, err := services.GetAllApplications(config.DB)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch applications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

// ApproveApplication records the admin's final approval.
func ApproveApplication(c *gin.Context) {
	finalizeApplication(c, services.DecisionApproved,
		"Congratulations! Your application #%d has been approved. You can now download your final report.")
}

// RejectApplication records the admin's final rejection.
func RejectApplication(c *gin.Context) {
	finalizeApplication(c, services.DecisionRejected,
		"We're sorry, but your application #%d has been rejected after a final review.")
}

// finalizeApplication runs the scoring logic one last time (hard rules still
// apply), records the human-confirmed decision, renders the report and
// notifies the applicant. Notification and email are best-effort; their
// failure never rolls back the decision.
func finalizeApplication(c *gin.Context, decision string, notificationFormat string) {
	appID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid application id"})
		return
	}

	app, err := services.GetApplication(config.DB, appID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Application not found"})
		return
	}

	prediction, err := services.PredictCreditworthiness(config.DB, app, false, nil)
	if err != nil {
		respondPredictionError(c, err)
		return
	}

	reasonsJSON, err := json.Marshal(prediction.Reasons)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode decision reasons"})
		return
	}

	if _, err := services.UpdateFinalDecision(config.DB, appID, decision, prediction.Score, string(reasonsJSON)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save final decision"})
		return
	}

	// Re-fetch so the report always renders the stored decision, not the
	// in-memory copy.
	decidedApp, err := services.GetApplication(config.DB, appID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve application after update"})
		return
	}

	reportPath, err := services.CreateReportPDF(decidedApp)
	if err != nil {
		log.Printf("Report generation failed for application %d: %v", appID, err)
	}

	notificationHub.SendPersonalMessage(fmt.Sprintf(notificationFormat, appID), decidedApp.OwnerID)
	sendDecisionEmail(decidedApp.OwnerID, appID, decision)

	c.JSON(http.StatusOK, gin.H{
		"message":    fmt.Sprintf("Application %s.", lowercaseDecision(decision)),
		"decision":   decision,
		"score":      prediction.Score,
		"report_url": "/" + reportPath,
	})
}

// TrainModel triggers a background retraining run.
func TrainModel(c *gin.Context) {
	done := services.ModelTrainer.TrainAsync(config.DB)
	go func() {
		if err := <-done; err != nil {
			log.Printf("Model re-training failed: %v", err)
			return
		}
		log.Println("Model re-training completed")
	}()

	notificationHub.Broadcast("Admin has initiated a manual model re-training.")
	c.JSON(http.StatusOK, gin.H{"message": "Model training has been started in the background."})
}

func sendDecisionEmail(ownerID, appID int, decision string) {
	var email string
	if err := config.DB.Table("users").Select("email").Where("user_id = ?", ownerID).Scan(&email).Error; err != nil || email == "" {
		return
	}

	subject := fmt.Sprintf("Your loan application #%d: %s", appID, decision)
	body := fmt.Sprintf("<p>Your loan application <b>#%d</b> has been <b>%s</b>.</p>", appID, lowercaseDecision(decision))
	if err := config.SendMail([]string{email}, subject, body); err != nil {
		log.Printf("Decision email to user %d failed: %v", ownerID, err)
	}
}

func lowercaseDecision(decision string) string {
	if decision == services.DecisionApproved {
		return "approved"
	}
	return "rejected"
}
