// Package transcription wraps the provider's speech-to-text HTTP API:
// submit one recording URL, fetch the resulting transcript text. Every
// failure is classified into a pipeline stage so callers can tell
// retry-later failures from fix-the-input failures.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"call-transcribe-go/internal/logger"
	"call-transcribe-go/internal/types"
)

// Config carries everything one client instance needs. It is read-only
// after New; a single client is safe for concurrent use.
type Config struct {
	BaseURL     string
	BearerToken string
	TeamName    string
	CallType    string
	Timeout     time.Duration
	MaxAttempts int
}

// Transcript is a successful transcription result.
type Transcript struct {
	Text          string
	MediaID       string
	TranscriptURL string
}

// Error is a classified client failure.
type Error struct {
	Stage types.Stage
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func failf(stage types.Stage, format string, args ...interface{}) *Error {
	return &Error{Stage: stage, Err: fmt.Errorf(format, args...)}
}

type submitResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		MediaId          string `json:"MediaId"`
		Status           string `json:"Status"`
		TranscriptionURL string `json:"TranscriptionURL"`
		WordsCount       int    `json:"WordsCount"`
	} `json:"Data"`
	Reason   string `json:"Reason,omitempty"`
	UniqueId string `json:"UniqueId,omitempty"`
}

type Client struct {
	cfg           Config
	httpClient    *http.Client
	retryInterval time.Duration
	log           *logrus.Entry
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CallType == "" {
		cfg.CallType = "PNS"
	}
	return &Client{
		cfg:           cfg,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		retryInterval: 500 * time.Millisecond,
		log:           logger.New().WithComponent("transcription"),
	}
}

// Transcribe submits one canonical audio URL and returns the transcript
// text. The returned error, if any, is always a *Error.
func (c *Client) Transcribe(ctx context.Context, audioURL, callerID, receiverID string) (Transcript, error) {
	log := c.log.WithField("audio_url", audioURL)
	log.Info("submitting recording for transcription")

	sub, err := c.submit(ctx, audioURL, callerID, receiverID)
	if err != nil {
		return Transcript{}, asClientError(err)
	}
	log = log.WithField("media_id", sub.Data.MediaId)
	log.WithField("transcription_url", sub.Data.TranscriptionURL).Info("transcription ready, downloading text")

	text, err := c.download(ctx, sub.Data.TranscriptionURL)
	if err != nil {
		return Transcript{}, asClientError(err)
	}
	if strings.TrimSpace(text) == "" {
		return Transcript{}, failf(types.StageRemoteError, "transcript body is empty")
	}
	log.WithField("chars", len(text)).Info("transcript downloaded")
	return Transcript{
		Text:          text,
		MediaID:       sub.Data.MediaId,
		TranscriptURL: sub.Data.TranscriptionURL,
	}, nil
}

// submit posts the recording URL to {base}/transcribe. The provider answers
// synchronously with the transcript's download URL.
func (c *Client) submit(ctx context.Context, audioURL, callerID, receiverID string) (submitResponse, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/transcribe"
	var out submitResponse

	op := func() error {
		// the multipart body is consumed per attempt, rebuild it each time
		var b bytes.Buffer
		w := multipart.NewWriter(&b)
		w.WriteField("caller_id", callerID)
		w.WriteField("receiver_id", receiverID)
		w.WriteField("callRecordingLink", audioURL)
		w.WriteField("callType", c.cfg.CallType)
		_ = w.Close()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &b)
		if err != nil {
			return backoff.Permanent(failf(types.StageNetwork, "build request: %v", err))
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("BearerToken", c.cfg.BearerToken)
		req.Header.Set("TeamName", c.cfg.TeamName)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return transportError(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(failf(types.StageAuth, "credentials rejected: status=%d body=%s", resp.StatusCode, snippet(body)))
		case resp.StatusCode >= 500:
			return failf(types.StageRemoteError, "server error: status=%d body=%s", resp.StatusCode, snippet(body))
		case resp.StatusCode >= 400:
			return backoff.Permanent(failf(types.StageRemoteError, "rejected request: status=%d body=%s", resp.StatusCode, snippet(body)))
		}

		if err := json.Unmarshal(body, &out); err != nil {
			return backoff.Permanent(failf(types.StageRemoteError, "undecodable response: %v body=%s", err, snippet(body)))
		}
		if out.Code != 200 || !strings.EqualFold(out.Status, "Success") {
			return backoff.Permanent(failf(types.StageRemoteError, "transcribe error: code=%d status=%s reason=%s", out.Code, out.Status, out.Reason))
		}
		if out.Data.TranscriptionURL == "" {
			return backoff.Permanent(failf(types.StageRemoteError, "response is missing TranscriptionURL"))
		}
		return nil
	}

	if err := backoff.Retry(op, c.newBackOff(ctx)); err != nil {
		return submitResponse{}, err
	}
	return out, nil
}

// download fetches the transcript text. The provider's CDN intermittently
// answers 403 for freshly produced files, so 403 here is retried.
func (c *Client) download(ctx context.Context, transcriptURL string) (string, error) {
	var text string

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, transcriptURL, nil)
		if err != nil {
			return backoff.Permanent(failf(types.StageRemoteError, "build download request: %v", err))
		}
		req.Header.Set("User-Agent", "curl/7.88.1")
		req.Header.Set("Accept", "*/*")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return transportError(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode == http.StatusForbidden || resp.StatusCode >= 500:
			return failf(types.StageRemoteError, "transcript fetch failed: status=%d body=%s", resp.StatusCode, snippet(body))
		case resp.StatusCode >= 300:
			return backoff.Permanent(failf(types.StageRemoteError, "transcript fetch rejected: status=%d body=%s", resp.StatusCode, snippet(body)))
		}
		text = string(body)
		return nil
	}

	if err := backoff.Retry(op, c.newBackOff(ctx)); err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1)), ctx)
}

func transportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return &Error{Stage: types.StageTimeout, Err: err}
	}
	return &Error{Stage: types.StageNetwork, Err: err}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// asClientError guarantees the caller always sees a *Error.
func asClientError(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Stage: types.StageTimeout, Err: err}
	}
	return &Error{Stage: types.StageNetwork, Err: err}
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
