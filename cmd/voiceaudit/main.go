package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	voiceaudit "github.com/amberlink/voiceaudit"
	"github.com/amberlink/voiceaudit/internal/api"
	"github.com/amberlink/voiceaudit/internal/audio"
	"github.com/amberlink/voiceaudit/internal/config"
	"github.com/amberlink/voiceaudit/internal/database"
	"github.com/amberlink/voiceaudit/internal/detect"
	"github.com/amberlink/voiceaudit/internal/diarize"
	"github.com/amberlink/voiceaudit/internal/inbox"
	"github.com/amberlink/voiceaudit/internal/pipeline"
	"github.com/amberlink/voiceaudit/internal/retry"
	"github.com/amberlink/voiceaudit/internal/storage"
)

var version = "dev"

func main() {
	startTime := time.Now()

	// Config
	cfg, err := config.Load()
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("voiceaudit starting")

	if !audio.CheckSox() {
		log.Warn().Msg("sox not found on PATH, compressed uploads will fail")
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx, voiceaudit.SchemaSQL); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}

	// Object store for clips and original recordings
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.AudioDir).Msg("failed to create audio directory")
	}
	store, err := storage.New(cfg.S3, cfg.AudioDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	log.Info().Str("type", store.Type()).Msg("storage ready")

	// Pipeline
	executor := retry.New(cfg.RetryMaxAttempts, cfg.RetryPause, log)
	engine := diarize.NewHTTPEngine(cfg.DiarizeURL, cfg.DiarizeToken, cfg.DiarizeTimeout, log)
	client := detect.NewClient(cfg.DetectURL, cfg.DetectToken, cfg.DetectCallbackURL, log)

	// Polling and the provider callback are alternative resolution paths.
	// With a callback URL configured the poller stays off and records are
	// completed by POST /api/v1/detect-callback.
	var resolver pipeline.Resolver
	if !client.CallbackEnabled() {
		resolver = detect.NewPoller(client, executor, cfg.DetectPollInterval, cfg.DetectPollTimeout, log)
	} else {
		log.Info().Str("callback_url", cfg.DetectCallbackURL).Msg("callback mode, polling disabled")
	}

	assembler := pipeline.NewAssembler(store, audio.SoxEncoder{}, executor, log)
	aggregator := pipeline.NewAggregator(db, log)
	coordinator := pipeline.NewCoordinator(engine, store, assembler, client, resolver, aggregator, executor, log)
	runner := pipeline.NewRunner(coordinator, log)

	// Optional inbox watcher
	if cfg.InboxDir != "" {
		watcher := inbox.New(runner, cfg.InboxDir, log)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.InboxDir).Msg("failed to start inbox watcher")
		}
		defer watcher.Stop()
	}

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, db, store.Type(), runner, aggregator, version, startTime, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Stop accepting requests, then let in-flight jobs finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDrain()
	if err := runner.Drain(drainCtx); err != nil {
		log.Warn().Err(err).Msg("jobs still running at shutdown, canceling")
		runner.Shutdown()
	}

	log.Info().Msg("voiceaudit stopped")
}
