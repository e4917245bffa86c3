package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courtfile/media-ingest/internal/common"
	"github.com/courtfile/media-ingest/internal/index"
	"github.com/courtfile/media-ingest/internal/ingest"
	"github.com/courtfile/media-ingest/internal/jobs"
	"github.com/courtfile/media-ingest/internal/media"
	"github.com/courtfile/media-ingest/internal/provider"
	"github.com/courtfile/media-ingest/internal/repository"
	"github.com/courtfile/media-ingest/internal/resilience"
	"github.com/courtfile/media-ingest/internal/topics"
	"github.com/courtfile/media-ingest/internal/transcribe"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, repository.Config{
		DBPath:      cfg.Archive.DBPath,
		DialTimeout: cfg.Archive.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open archive database", "error", err, "path", cfg.Archive.DBPath)
		os.Exit(1)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("close database", "error", cerr)
		}
	}()
	if err := repository.HealthCheck(ctx, db, 5*time.Second); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		OpenDuration:     cfg.Resilience.OpenDuration,
		SamplingWindow:   cfg.Resilience.SamplingWindow,
	}, logger)
	policy := resilience.NewPolicy(resilience.PolicyConfig{
		MaxRetryAttempts: cfg.Resilience.MaxRetryAttempts,
		BaseDelay:        cfg.Resilience.BaseDelay,
		MaxDelay:         cfg.Resilience.MaxDelay,
		JitterMax:        cfg.Resilience.JitterMax,
	}, breaker, logger)

	client := provider.NewClient(provider.ClientConfig{
		BaseURL:        cfg.Provider.BaseURL,
		APIKey:         cfg.Provider.APIKey,
		RequestTimeout: cfg.Provider.RequestTimeout,
	}, policy, logger)

	tracker := jobs.NewTracker(client, jobs.TrackerConfig{
		PollInterval: cfg.Provider.PollInterval,
		MaxWait:      cfg.Provider.MaxWait,
	}, logger)

	svc := transcribe.NewService(client, tracker, transcribe.Options{
		LanguageCode:      cfg.Provider.LanguageCode,
		SpeakerLabels:     cfg.Provider.SpeakerLabels,
		SentimentAnalysis: cfg.Provider.Sentiment,
		Punctuate:         cfg.Provider.Punctuate,
		FormatText:        cfg.Provider.FormatText,
	}, logger)
	svc = transcribe.WithSilenceDetection(svc, media.NewSilenceAnalyzer("ffmpeg", logger), logger)

	var topicExtractor ingest.TopicExtractor
	if cfg.Topics.APIKey != "" {
		topicExtractor = topics.NewClient(topics.Config{
			BaseURL: cfg.Topics.BaseURL,
			APIKey:  cfg.Topics.APIKey,
			Model:   cfg.Topics.Model,
			Timeout: cfg.Topics.Timeout,
		}, logger)
	}

	mediaRepo := repository.NewMediaRepository(db, logger)
	transcriptRepo := repository.NewTranscriptRepository(db, logger)

	orch := ingest.NewOrchestrator(
		media.NewExtractor("ffmpeg", cfg.Ingest.WorkDir, logger),
		client,
		svc,
		topicExtractor,
		index.NewFTSIndexer(db, logger),
		mediaRepo,
		transcriptRepo,
		ingest.OrchestratorConfig{
			IndexRetries:    cfg.Ingest.IndexRetries,
			IndexRetryDelay: cfg.Ingest.IndexRetryDelay,
		},
		logger,
	)

	queue := ingest.NewQueue(orch, logger,
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithQueueSize(cfg.Ingest.QueueSize),
		ingest.WithProcessTimeout(cfg.Ingest.ProcessTimeout),
	)

	events, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       cfg.Ingest.WatchRoots,
		InitialScan: true,
		Debounce:    2 * time.Second,
	})
	if err != nil {
		logger.Error("failed to start watcher", "error", err, "roots", cfg.Ingest.WatchRoots)
		os.Exit(1)
	}

	logger.Info("ingest daemon started",
		"roots", cfg.Ingest.WatchRoots,
		"workers", cfg.Ingest.Workers,
		"provider", cfg.Provider.BaseURL,
	)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case path, ok := <-events:
			if !ok {
				break loop
			}
			_ = queue.Enqueue(ctx, ingest.Job{SourcePath: path})
		case werr, ok := <-watchErrs:
			if ok && werr != nil {
				logger.Warn("watch error", "error", werr)
			}
		}
	}

	logger.Info("shutting down, draining queue")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
