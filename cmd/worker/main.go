package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"tollgate/internal/app/bootstrap"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Start schedulers (outbox relay, verification timeout sweeps).
func main() {
	_ = godotenv.Load()

	log.Println("tollgate worker starting")
	app, err := bootstrap.BuildWorker()
	if err != nil {
		log.Fatalf("bootstrap worker failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("worker shutdown close failed: %v", err)
		}
	}()

	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("tollgate worker stopped with error: %v", err)
	}
}
