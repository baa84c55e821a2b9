package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"coinfeed/internal/infrastructure/config"
	"coinfeed/internal/infrastructure/logger"
	"coinfeed/internal/infrastructure/svc"
)

func main() {
	logger.Setup("info")

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service initialization failed")
	}
	defer sc.Close()

	log.Info().
		Str("config", *configPath).
		Str("exchange", cfg.Feed.Exchange).
		Int("symbols", len(cfg.Symbols.List)).
		Bool("catalog", cfg.Catalog.Enabled).
		Msg("coinfeed started")

	if err := sc.Run(ctx); err != nil {
		log.Error().Err(err).Msg("coinfeed exited")
		return
	}
	log.Info().Msg("coinfeed stopped")
}
