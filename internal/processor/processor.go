// Package processor runs one call record through normalize + transcribe.
// Every path ends in a ResultRecord; no failure escapes this boundary.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"call-transcribe-go/internal/logger"
	"call-transcribe-go/internal/normalizer"
	"call-transcribe-go/internal/transcription"
	"call-transcribe-go/internal/types"
)

// Transcriber is the outbound side of the pipeline, satisfied by
// *transcription.Client.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL, callerID, receiverID string) (transcription.Transcript, error)
}

type Processor struct {
	transcriber Transcriber
	log         *logrus.Entry
}

func New(t Transcriber) *Processor {
	return &Processor{
		transcriber: t,
		log:         logger.New().WithComponent("processor"),
	}
}

// Process resolves and transcribes one record. It always returns a
// ResultRecord, never an error: per-item failures are captured in the
// outcome so the batch loop can keep going.
func (p *Processor) Process(ctx context.Context, rec types.CallRecord) (res types.ResultRecord) {
	res = types.ResultRecord{CallRecord: rec}
	log := p.log.WithFields(logrus.Fields{
		"index":   rec.Index,
		"raw_url": rec.RecordingURL,
	})
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Error("recovered panic while processing record")
			res.Outcome = types.FailureOutcome(types.StageRemoteError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	norm, err := normalizer.Normalize(rec.RecordingURL)
	if err != nil {
		log.WithError(err).Warn("record failed normalization")
		res.Outcome = types.FailureOutcome(types.StageNormalize, err.Error())
		return res
	}
	res.NormalizedURL = norm.URL
	if !norm.Verified {
		log.WithField("normalized_url", norm.URL).Debug("unrecognized URL shape, passing through")
	}

	tr, err := p.transcriber.Transcribe(ctx, norm.URL, rec.CallerID, rec.ReceiverID)
	if err != nil {
		var terr *transcription.Error
		if errors.As(err, &terr) {
			res.Outcome = types.FailureOutcome(terr.Stage, terr.Err.Error())
		} else {
			res.Outcome = types.FailureOutcome(types.StageNetwork, err.Error())
		}
		log.WithError(err).WithField("duration_ms", time.Since(start).Milliseconds()).Warn("transcription failed")
		return res
	}

	res.Outcome = types.SuccessOutcome(tr.Text, tr.MediaID, tr.TranscriptURL)
	log.WithFields(logrus.Fields{
		"media_id":    tr.MediaID,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("record transcribed")
	return res
}
