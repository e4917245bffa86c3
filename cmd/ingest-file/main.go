package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/courtfile/media-ingest/internal/common"
	"github.com/courtfile/media-ingest/internal/export"
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

// ingest-file runs the full pipeline for one media file and optionally
// writes an XLSX transcript next to it.
func main() {
	xlsxOut := flag.String("xlsx", "", "write an XLSX transcript to this path after ingestion")
	timeout := flag.Duration("timeout", 45*time.Minute, "overall deadline for the ingestion")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "ingest-file [-xlsx out.xlsx] <media-file>")
		os.Exit(2)
	}
	sourcePath := flag.Arg(0)
	if _, err := os.Stat(sourcePath); err != nil {
		logger.Error("cannot read media file", "path", sourcePath, "error", err)
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if cfg.Provider.APIKey == "" {
		logger.Error("TRANSCRIBE_API_KEY is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := repository.Open(ctx, repository.Config{
		DBPath:      cfg.Archive.DBPath,
		DialTimeout: cfg.Archive.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open archive database", "error", err, "path", cfg.Archive.DBPath)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

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
			OnProgress: func(p ingest.Progress) {
				logger.Info("progress", "stage", string(p.Stage), "pct", p.ProgressPercentage)
			},
		},
		logger,
	)

	out := orch.ProcessMedia(ctx, sourcePath)
	if out.Failed() {
		logger.Error("ingestion failed",
			"status", string(out.Status), "stage", string(out.Stage), "errors", out.Errors)
		os.Exit(1)
	}

	fmt.Printf("media %s ingested (%s)\n", out.MediaID, out.Status)
	if out.Transcript != nil {
		fmt.Printf("transcript: %d segments, %d silence intervals\n",
			len(out.Transcript.Segments), len(out.Transcript.SilenceIntervals))
	}
	for _, topic := range out.Topics {
		fmt.Printf("topic: %s\n", topic)
	}

	if *xlsxOut != "" {
		data, err := export.NewService(mediaRepo, transcriptRepo, logger).
			ExportTranscriptXLSX(ctx, out.MediaID)
		if err != nil {
			logger.Error("xlsx export failed", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*xlsxOut, data, 0o644); err != nil {
			logger.Error("write xlsx", "path", *xlsxOut, "error", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *xlsxOut)
	}
}
