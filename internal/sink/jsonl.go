// Package sink persists results as append-only JSONL: one self-contained
// JSON object per line, so any interrupted run leaves a valid prefix.
package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"call-transcribe-go/internal/types"
)

type JSONL struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenJSONL opens path for appending, creating it if needed. Prior lines
// are never rewritten.
func OpenJSONL(path string) (*JSONL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return &JSONL{f: f, path: path}, nil
}

func (s *JSONL) Append(rec types.ResultRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	// flush each record so a crash mid-batch loses at most the line in flight
	return s.f.Sync()
}

func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// SeenURLs reads recording URLs from an existing output file, for skipping
// already-processed records on a re-run. A missing file means a fresh run;
// a torn final line from a crashed run is ignored.
func SeenURLs(path string) (map[string]struct{}, error) {
	seen := map[string]struct{}{}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return seen, nil
		}
		return nil, fmt.Errorf("open existing output: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		var line struct {
			RecordingURL string `json:"pns_call_recording_url"`
		}
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			continue
		}
		if line.RecordingURL != "" {
			seen[line.RecordingURL] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan existing output: %w", err)
	}
	return seen, nil
}
