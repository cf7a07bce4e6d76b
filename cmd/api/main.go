package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"call-transcribe-go/internal/config"
	"call-transcribe-go/internal/logger"
	"call-transcribe-go/internal/processor"
	"call-transcribe-go/internal/transcription"
	"call-transcribe-go/internal/types"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "call-transcribe-go").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log.WithField("token_fp", cfg.TokenFingerprint()).Info("configuration loaded")

	client := transcription.New(transcription.Config{
		BaseURL:     cfg.APIBaseURL,
		BearerToken: cfg.BearerToken,
		TeamName:    cfg.TeamName,
		CallType:    cfg.CallType,
		Timeout:     cfg.RequestTimeout,
		MaxAttempts: cfg.MaxAttempts,
	})
	proc := processor.New(client)

	mux := http.NewServeMux()

	// health
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Info("health check")
		fmt.Fprint(w, "ok")
	})

	// single-recording transcription
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "transcribe")
		reqLog.Info("transcribe request received")

		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form data", http.StatusBadRequest)
			return
		}
		rawURL := r.FormValue("url")
		if rawURL == "" {
			reqLog.Warn("missing url")
			http.Error(w, "missing url", http.StatusBadRequest)
			return
		}
		rec := types.CallRecord{
			CallerID:     formValueOr(r, "caller_id", "unknown"),
			ReceiverID:   formValueOr(r, "receiver_id", "unknown"),
			RecordingURL: rawURL,
		}
		reqLog = reqLog.WithField("raw_url", rawURL)

		start := time.Now()
		res := proc.Process(r.Context(), rec)
		reqLog.WithField("duration_ms", time.Since(start).Milliseconds()).Info("processor finished")

		w.Header().Set("Content-Type", "application/json")
		if !res.Outcome.Success {
			reqLog.WithField("stage", res.Outcome.Stage).Warn("transcription failed")
			w.WriteHeader(http.StatusBadGateway)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			reqLog.WithError(err).Error("failed to write response")
		}
	})

	addr := fmt.Sprintf(":%s", envOr("PORT", "8080"))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func formValueOr(r *http.Request, key, def string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return def
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
