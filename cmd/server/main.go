package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"tilewalk/server/internal/app"
	"tilewalk/server/internal/observability"
	"tilewalk/server/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	logger := telemetry.WrapLogger(log.Default())
	cfg := app.Config{
		Addr:        os.Getenv("ADDR"),
		ClientDir:   os.Getenv("CLIENT_DIR"),
		MapFile:     os.Getenv("MAP_FILE"),
		JSONLogPath: os.Getenv("LOG_JSON_PATH"),
		Logger:      logger,
	}

	if raw := os.Getenv("TICK_RATE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.TickRate = value
		} else {
			logger.Printf("invalid TICK_RATE=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("SEARCH_BUDGET"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.SearchBudget = value
		} else {
			logger.Printf("invalid SEARCH_BUDGET=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("ENABLE_PPROF"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.Observability = observability.Config{EnablePprof: value}
		} else {
			logger.Printf("invalid ENABLE_PPROF=%q: %v", raw, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
