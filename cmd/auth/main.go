package main

import (
	"log"

	"github.com/gatehouse-id/gatehouse/internal/auth/app"
)

func main() {
	a, err := app.New(app.LoadConfig())
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	if err := a.Run(); err != nil {
		log.Fatalf("auth service exited: %v", err)
	}
}
