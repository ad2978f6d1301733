// Offline training tool: retrains the risk model from the baseline corpus and
// all decided applications, then writes the artifact where the API loads it.
package main

import (
	"log"

	"github.com/joho/godotenv"

	"credit-underwriting-api/config"
	"credit-underwriting-api/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config.InitLogging()
	config.InitDB()

	if err := services.TrainAndSaveModel(config.DB); err != nil {
		log.Fatalf("Training failed: %v", err)
	}
	log.Printf("Model artifact written to %s", services.ModelPath())
}
