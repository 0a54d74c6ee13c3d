package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/MurkesM/ARPG/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := app.DefaultConfig().ApplyEnv(os.Getenv, log.Default())
	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
