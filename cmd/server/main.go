package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/medline/teleconsult/internal/adapters"
	router "github.com/medline/teleconsult/internal/adapters/http"
	"github.com/medline/teleconsult/internal/app"
	"github.com/medline/teleconsult/internal/config"
	"github.com/medline/teleconsult/internal/storage/sqlite"
)

func main() {
	logLevel := pflag.String("log-level", "info", "zerolog level: debug, info, warn, error")
	configEnv := pflag.String("config-env", "", "config environment, overrides CONFIG_ENV")
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if lvl, err := zerolog.ParseLevel(*logLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *configEnv != "" {
		os.Setenv("CONFIG_ENV", *configEnv)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	store, err := sqlite.Open(cfg.FeedbackDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open feedback store")
	}
	defer store.Close()

	reg := app.NewRegistry()
	relay := app.NewRelay(reg, &log.Logger)
	feedback := app.NewFeedbackCapture(store, &log.Logger)

	signalCtl := &adapters.SignalWSController{
		Registry:   reg,
		Relay:      relay,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}

	r := router.SetupRouter(ctx, cfg, reg, signalCtl, feedback)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("teleconsult signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
