package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/config"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := setupDatabase(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up store")
	}
	defer backend.Close()

	services, err := setupServices(ctx, cfg, backend)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	server := setupServer(cfg, backend, services)

	log.Info().
		Str("port", cfg.Port).
		Str("store", cfg.Store).
		Int("modes", len(cfg.Modes)).
		Bool("publisher", services.Publisher != nil).
		Bool("override_listener", services.Overrides != nil).
		Msg("starting mind game server")

	if err := run(ctx, cfg, services, server); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}
