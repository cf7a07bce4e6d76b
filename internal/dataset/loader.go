// Package dataset reads call records from tabular input. CSV and xlsx
// files are supported; rows are keyed by the caller_id, receiver_id and
// pns_call_recording_url columns.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"call-transcribe-go/internal/types"
)

const (
	colCaller   = "caller_id"
	colReceiver = "receiver_id"
	colURL      = "pns_call_recording_url"
	colURLAlias = "recording_url"
)

// FileSource produces the record sequence from one input file. Load
// re-reads the file on every call, so the sequence is restartable.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load() ([]types.CallRecord, error) {
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".xlsx":
		return loadXLSX(s.path)
	default:
		return loadCSV(s.path)
	}
}

func loadCSV(path string) ([]types.CallRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // provider exports have ragged rows
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return recordsFromRows(rows)
}

func loadXLSX(path string) ([]types.CallRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return recordsFromRows(rows)
}

func recordsFromRows(rows [][]string) ([]types.CallRecord, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("input has no header row")
	}
	header := rows[0]

	urlIdx := findColumn(header, colURL, colURLAlias)
	if urlIdx == -1 {
		return nil, fmt.Errorf("input is missing the %s column", colURL)
	}
	callerIdx := findColumn(header, colCaller)
	receiverIdx := findColumn(header, colReceiver)

	out := make([]types.CallRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		// a row with a missing URL still becomes a record; the pipeline
		// reports it as a normalize failure instead of dropping it
		out = append(out, types.CallRecord{
			Index:        i + 1,
			CallerID:     cell(row, callerIdx),
			ReceiverID:   cell(row, receiverIdx),
			RecordingURL: cell(row, urlIdx),
		})
	}
	return out, nil
}

func findColumn(header []string, names ...string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
