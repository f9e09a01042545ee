package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"plate-alert-service/internal/config"
	"plate-alert-service/internal/db"
	"plate-alert-service/internal/logger"
	"plate-alert-service/internal/provider"
	"plate-alert-service/internal/repository"
	"plate-alert-service/internal/service"
	"plate-alert-service/internal/sms"
	"plate-alert-service/internal/stream"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	db         *gorm.DB
	repo       *repository.DetectionRepository
	detections *service.DetectionService
	history    *service.HistoryService
	hub        *stream.Hub
}

func loadApp(migrate bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	gdb, err := db.Connect(cfg.DB.DSN, migrate, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:  cfg,
		log:  log,
		db:   gdb,
		repo: repository.NewDetectionRepository(gdb),
	}
	a.wire()
	return a, nil
}

func (a *app) wire() {
	cfg := a.cfg

	var primary, backup provider.Provider
	if cfg.Provider.PrimaryURL != "" {
		primary = provider.NewWorkflowProvider(cfg.Provider.PrimaryURL, cfg.Provider.PrimaryAPIKey, cfg.Provider.Timeout)
	}
	if cfg.Provider.BackupURL != "" {
		backup = provider.NewHTTPProvider("backup", cfg.Provider.BackupURL, cfg.Provider.BackupAPIKey, cfg.Provider.Timeout)
	}
	gateway := provider.NewGateway(primary, backup, cfg.Provider.MaxAttempts, cfg.Provider.BaseDelay, a.log)

	var sender service.SMSSender
	if cfg.SMS.APIKey != "" {
		sender = sms.NewClient(cfg.SMS.URL, cfg.SMS.APIKey, cfg.SMS.Sender, cfg.Provider.Timeout)
	} else {
		a.log.Warn().Msg("sms api key not set, owner alerts will be recorded as failed")
	}

	notifier := service.NewNotifier(sender, a.repo, service.NotifierOptions{
		MaxRetries: cfg.SMS.MaxRetries,
		RetryDelay: cfg.SMS.RetryDelay,
		Signature:  cfg.SMS.Signature,
	}, a.log)

	a.detections = service.NewDetectionService(
		gateway,
		service.NewMatcher(a.repo, cfg.Detection.SimilarityThreshold, a.log),
		notifier,
		a.repo,
		service.NewResultCache(cfg.Cache.TTL, cfg.Cache.MaxEntries, cfg.Cache.EvictCount),
		service.DetectionOptions{
			ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
			MaxBatchSize:        cfg.Detection.MaxBatchSize,
			DefaultConcurrency:  cfg.Detection.DefaultConcurrency,
			MaxConcurrency:      cfg.Detection.MaxConcurrency,
		},
		a.log,
	)
	a.history = service.NewHistoryService(a.repo, a.log)
	a.hub = stream.NewHub(a.log)
	a.detections.SetPublisher(a.hub)
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
