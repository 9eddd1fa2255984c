package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/keshin-shop/api/internal/api"
	"github.com/keshin-shop/api/internal/config"
	"github.com/keshin-shop/api/internal/gemini"
	"github.com/keshin-shop/api/internal/pkg/supabase"
	"github.com/keshin-shop/api/pkg/database"
	"github.com/keshin-shop/api/pkg/kafka"
)

func main() {
	// Load .env if present, then the environment.
	_ = godotenv.Load()
	cfg := config.LoadConfig()

	db, err := database.NewClients(cfg.Database.URL, cfg.Redis.Addr)
	if err != nil {
		slog.Error("Failed to initialize database clients", "error", err)
		os.Exit(1)
	}
	defer db.DB.Close()
	slog.Info("✅ Connected to databases")

	producer, err := kafka.NewProducer(cfg.Kafka.Broker, cfg.Kafka.RetryMax, cfg.Kafka.RetryBackoff)
	if err != nil {
		slog.Error("Failed to create Kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	slog.Info("✅ Connected to Kafka")

	transformer, err := gemini.NewClient(cfg.Gemini)
	if err != nil {
		slog.Error("Failed to create Gemini client", "error", err)
		os.Exit(1)
	}

	auth := supabase.NewAuthClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey, cfg.Supabase.JWTSecret)

	server := api.NewServer(cfg, db, producer, auth, transformer)
	slog.Info("🚀 Server starting", "port", cfg.Server.Port)
	if err := server.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
