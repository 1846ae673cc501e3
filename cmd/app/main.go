package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/pdfseek/internal/config"
	"github.com/local/pdfseek/internal/filetype"
	logpkg "github.com/local/pdfseek/internal/logger"
	"github.com/local/pdfseek/internal/metrics"
	"github.com/local/pdfseek/internal/pdfdoc"
	"github.com/local/pdfseek/internal/statuscheck"
	"github.com/local/pdfseek/internal/storage"
	"github.com/local/pdfseek/internal/store"
	"github.com/local/pdfseek/internal/viewer"
	"github.com/local/pdfseek/internal/web"
)

func main() {
	cfg := cfgpkg.Load()

	if err := logpkg.Init(cfg.Logging, cfg.Axiom); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
	}
	defer logpkg.Close()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	statusOpts := statuscheck.Options{}

	// Source storage
	var sources storage.Store
	switch cfg.Storage.Backend {
	case "s3":
		s3s, err := storage.NewS3(ctx, storage.S3Options{
			Bucket:          cfg.Storage.S3Bucket,
			Prefix:          cfg.Storage.S3Prefix,
			Region:          cfg.Storage.AWSRegion,
			AccessKeyID:     cfg.Storage.AWSAccessKeyID,
			SecretAccessKey: cfg.Storage.AWSSecretAccessKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 storage")
		}
		sources = s3s
		statusOpts.S3 = s3s
	default:
		local, err := storage.NewLocal(cfg.Storage.UploadDir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.Storage.UploadDir).Msg("failed to init upload dir")
		}
		sources = local
		statusOpts.Upload = local
	}
	sources = storage.NewEncrypted(sources, cfg.Storage.EncryptionPassphrase)

	// Session metadata
	var sessions store.SessionStore
	if cfg.Store.RedisURL != "" {
		rs, err := store.NewRedisSessions(cfg.Store.RedisURL, cfg.Store.HistoryLimit, cfg.Store.TTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		sessions = rs
		statusOpts.Redis = rs
	} else {
		log.Warn().Msg("REDIS_URL not set; session metadata kept in memory")
		sessions = store.NewMemorySessions(cfg.Store.HistoryLimit)
	}
	defer sessions.Close()

	reg := viewer.NewRegistry(viewer.Dependencies{
		Engine:   pdfdoc.NewMuPDFEngine(),
		Detector: filetype.New(),
		Sources:  sources,
		Sessions: sessions,
	}, viewer.Options{
		Scale:          cfg.Viewer.Scale,
		SearchTimeout:  cfg.Viewer.SearchTimeout,
		ProbeThreshold: cfg.Viewer.ProbeThreshold,
		SpeechLang:     cfg.Viewer.SpeechLang,
	}, cfg.Viewer.SessionIdleTTL)
	defer reg.Close()
	go reg.Run(ctx)

	mux := http.NewServeMux()
	web.New(web.Options{
		Registry:    reg,
		Status:      statuscheck.New(statusOpts),
		MaxUploadMB: cfg.HTTP.MaxUploadMB,
		SpeechLang:  cfg.Viewer.SpeechLang,
		Scale:       cfg.Viewer.Scale,
	}).RegisterRoutes(mux)

	srv := &http.Server{Addr: ":" + cfg.HTTP.Port, Handler: mux}
	go func() {
		log.Info().Str("port", cfg.HTTP.Port).Str("storage", cfg.Storage.Backend).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("shutdown complete")
}
