package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"call-transcribe-go/internal/batch"
	"call-transcribe-go/internal/config"
	"call-transcribe-go/internal/dataset"
	"call-transcribe-go/internal/logger"
	"call-transcribe-go/internal/processor"
	"call-transcribe-go/internal/sink"
	"call-transcribe-go/internal/transcription"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "call-transcribe-go").Info("starting bulk run")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log.WithFields(logrus.Fields{
		"input":       cfg.InputPath,
		"output":      cfg.OutputPath,
		"concurrency": cfg.Concurrency,
		"token_fp":    cfg.TokenFingerprint(),
	}).Info("configuration loaded")

	records, err := dataset.NewFileSource(cfg.InputPath).Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load input records")
	}
	log.WithField("records", len(records)).Info("input loaded")

	skip := map[string]struct{}{}
	if cfg.Resume {
		skip, err = sink.SeenURLs(cfg.OutputPath)
		if err != nil {
			log.WithError(err).Fatal("failed to read existing output for resume")
		}
		log.WithField("already_done", len(skip)).Info("resuming previous run")
	}

	out, err := sink.OpenJSONL(cfg.OutputPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open output sink")
	}
	defer out.Close()

	client := transcription.New(transcription.Config{
		BaseURL:     cfg.APIBaseURL,
		BearerToken: cfg.BearerToken,
		TeamName:    cfg.TeamName,
		CallType:    cfg.CallType,
		Timeout:     cfg.RequestTimeout,
		MaxAttempts: cfg.MaxAttempts,
	})

	orch, err := batch.New(processor.New(client), out, batch.Options{
		Concurrency: cfg.Concurrency,
		Skip:        skip,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to build orchestrator")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := orch.Run(ctx, records)
	fields := logrus.Fields{
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	}
	for stage, n := range summary.FailedByStage {
		fields["failed_"+string(stage)] = n
	}
	if err != nil {
		log.WithError(err).WithFields(fields).Error("bulk run aborted")
		os.Exit(1)
	}
	if summary.Canceled {
		log.WithFields(fields).Warn("bulk run canceled, partial output kept")
		return
	}
	log.WithFields(fields).Info("bulk run completed")
}
