package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/inquora/distill/internal/app"
	"github.com/inquora/distill/internal/config"
	"github.com/inquora/distill/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment as-is")
	}

	configPath := flag.String("config", "config/config.toml", "path to TOML config file")
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close(ctx)

	srv := server.New(a.Orchestrator, a.Rollback, a.Store)
	log.Printf("Listening on %s", *addr)
	if err := srv.Run(*addr); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
