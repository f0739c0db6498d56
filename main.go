package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vlshowcase/internal/api"
	"vlshowcase/internal/config"
	"vlshowcase/internal/qwen"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfgPath := os.Getenv("VLSHOWCASE_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.Qwen.APIKey == "" {
		log.Warn().Msg("QWEN_API_KEY not set; generate requests will fail with CONFIG_ERROR")
	}

	upstream := qwen.NewClient(cfg.Qwen.Endpoint, cfg.Qwen.Model, cfg.Qwen.APIKey)
	handler := api.NewHandler(upstream, cfg.Qwen.APIKey)

	router := gin.Default()
	handler.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	log.Info().Str("addr", addr).Str("model", cfg.Qwen.Model).Msg("starting showcase server")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
