package main

import (
	"github.com/joho/godotenv"
	"github.com/mcdev12/battletimer/go/internal/config"
	"github.com/rs/zerolog/log"
)

func loadConfig() config.Config {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	cfg.SetupLogging()
	return cfg
}
