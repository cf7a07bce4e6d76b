package transcription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"call-transcribe-go/internal/types"
)

func newTestClient(baseURL string) *Client {
	c := New(Config{
		BaseURL:     baseURL,
		BearerToken: "test-token",
		TeamName:    "TEST-TEAM",
		CallType:    "PNS",
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
	})
	c.retryInterval = time.Millisecond
	return c
}

// fakeProvider serves the /transcribe submit endpoint and the transcript
// text file, with per-endpoint response hooks.
func fakeProvider(t *testing.T, submit, text http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", submit)
	mux.HandleFunc("/text", text)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func okSubmit(t *testing.T, ts func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.Header.Get("BearerToken"); got != "test-token" {
			t.Errorf("BearerToken = %q", got)
		}
		if got := r.Header.Get("TeamName"); got != "TEST-TEAM" {
			t.Errorf("TeamName = %q", got)
		}
		if got := r.FormValue("callRecordingLink"); got == "" {
			t.Error("callRecordingLink missing")
		}
		if got := r.FormValue("callType"); got != "PNS" {
			t.Errorf("callType = %q", got)
		}
		fmt.Fprintf(w, `{"Code":200,"Status":"Success","Data":{"MediaId":"m-1","TranscriptionURL":"%s/text"}}`, ts())
	}
}

func TestTranscribeSuccess(t *testing.T) {
	var ts *httptest.Server
	ts = fakeProvider(t,
		okSubmit(t, func() string { return ts.URL }),
		func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("User-Agent"); got != "curl/7.88.1" {
				t.Errorf("User-Agent = %q", got)
			}
			fmt.Fprint(w, "hello world")
		},
	)

	c := newTestClient(ts.URL)
	tr, err := c.Transcribe(context.Background(), "https://audio.example.com/a.mp3", "C1", "R1")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hello world" {
		t.Errorf("Text = %q", tr.Text)
	}
	if tr.MediaID != "m-1" {
		t.Errorf("MediaID = %q", tr.MediaID)
	}
}

func TestTranscribeRetriesTransientSubmit(t *testing.T) {
	var attempts atomic.Int32
	var ts *httptest.Server
	ok := okSubmit(t, func() string { return ts.URL })
	ts = fakeProvider(t,
		func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) <= 2 {
				http.Error(w, "upstream busy", http.StatusServiceUnavailable)
				return
			}
			ok(w, r)
		},
		func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "recovered transcript") },
	)

	c := newTestClient(ts.URL)
	tr, err := c.Transcribe(context.Background(), "https://audio.example.com/a.mp3", "C1", "R1")
	if err != nil {
		t.Fatalf("Transcribe after transient failures: %v", err)
	}
	if tr.Text != "recovered transcript" {
		t.Errorf("Text = %q", tr.Text)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("submit attempts = %d, want 3", got)
	}
}

func TestTranscribeNoRetryOnNotFound(t *testing.T) {
	var attempts atomic.Int32
	ts := fakeProvider(t,
		func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			http.Error(w, "no such endpoint", http.StatusNotFound)
		},
		func(w http.ResponseWriter, r *http.Request) {},
	)

	c := newTestClient(ts.URL)
	_, err := c.Transcribe(context.Background(), "https://audio.example.com/a.mp3", "C1", "R1")
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if ce.Stage != types.StageRemoteError {
		t.Errorf("Stage = %s, want remote_error", ce.Stage)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("submit attempts = %d, want 1 (4xx must not retry)", got)
	}
}

func TestTranscribeAuthRejection(t *testing.T) {
	var attempts atomic.Int32
	ts := fakeProvider(t,
		func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			http.Error(w, "bad token", http.StatusUnauthorized)
		},
		func(w http.ResponseWriter, r *http.Request) {},
	)

	c := newTestClient(ts.URL)
	_, err := c.Transcribe(context.Background(), "https://audio.example.com/a.mp3", "C1", "R1")
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if ce.Stage != types.StageAuth {
		t.Errorf("Stage = %s, want auth", ce.Stage)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("submit attempts = %d, want 1", got)
	}
}

func TestTranscribeEnvelopeFailure(t *testing.T) {
	ts := fakeProvider(t,
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"Code":500,"Status":"Failed","Reason":"unsupported media"}`)
		},
		func(w http.ResponseWriter, r *http.Request) {},
	)

	c := newTestClient(ts.URL)
	_, err := c.Transcribe(context.Background(), "https://audio.example.com/a.mp3", "C1", "R1")
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if ce.Stage != types.StageRemoteError {
		t.Errorf("Stage = %s, want remote_error", ce.Stage)
	}
}

func TestTranscribeMalformedEnvelope(t *testing.T) {
	ts := fakeProvider(t,
		func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "<html>gateway page</html>") },
		func(w http.ResponseWriter, r *http.Request) {},
	)

	c := newTestClient(ts.URL)
	_, err := c.Transcribe(context.Background(), "https://audio.example.com/a.mp3", "C1", "R1")
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if ce.Stage != types.StageRemoteError {
		t.Errorf("Stage = %s, want remote_error", ce.Stage)
	}
}

func TestTranscribeEmptyTranscript(t *testing.T) {
	var ts *httptest.Server
	ts = fakeProvider(t,
		okSubmit(t, func() string { return ts.URL }),
		func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "  \n ") },
	)

	c := newTestClient(ts.URL)
	_, err := c.Transcribe(context.Background(), "https://audio.example.com/a.mp3", "C1", "R1")
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if ce.Stage != types.StageRemoteError {
		t.Errorf("Stage = %s, want remote_error", ce.Stage)
	}
}

func TestTranscribeRetriesForbiddenDownload(t *testing.T) {
	var downloads atomic.Int32
	var ts *httptest.Server
	ts = fakeProvider(t,
		okSubmit(t, func() string { return ts.URL }),
		func(w http.ResponseWriter, r *http.Request) {
			if downloads.Add(1) == 1 {
				http.Error(w, "not yet propagated", http.StatusForbidden)
				return
			}
			fmt.Fprint(w, "late transcript")
		},
	)

	c := newTestClient(ts.URL)
	tr, err := c.Transcribe(context.Background(), "https://audio.example.com/a.mp3", "C1", "R1")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "late transcript" {
		t.Errorf("Text = %q", tr.Text)
	}
	if got := downloads.Load(); got != 2 {
		t.Errorf("download attempts = %d, want 2", got)
	}
}

func TestTranscribeConnectionRefused(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	_, err := c.Transcribe(context.Background(), "https://audio.example.com/a.mp3", "C1", "R1")
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if ce.Stage != types.StageNetwork {
		t.Errorf("Stage = %s, want network", ce.Stage)
	}
}
