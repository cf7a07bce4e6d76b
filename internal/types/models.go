package types

// Stage identifies where in the pipeline a record failed.
type Stage string

const (
	StageNormalize   Stage = "normalize"
	StageNetwork     Stage = "network"
	StageAuth        Stage = "auth"
	StageRemoteError Stage = "remote_error"
	StageTimeout     Stage = "timeout"
)

// CallRecord is one row from the input list. RecordingURL is required;
// the identifiers are optional metadata carried through unchanged.
// Index is the 1-based source row, kept so operators can re-sort output
// produced out of order by concurrent processing.
type CallRecord struct {
	Index        int    `json:"index,omitempty"`
	CallerID     string `json:"caller_id,omitempty"`
	ReceiverID   string `json:"receiver_id,omitempty"`
	RecordingURL string `json:"pns_call_recording_url"`
}

// Outcome is the tagged result of processing one record: either a
// transcript or a classified failure, never both.
type Outcome struct {
	Success       bool   `json:"success"`
	Transcript    string `json:"transcription,omitempty"`
	MediaID       string `json:"media_id,omitempty"`
	TranscriptURL string `json:"transcription_url,omitempty"`
	Stage         Stage  `json:"stage,omitempty"`
	Message       string `json:"error,omitempty"`
}

func SuccessOutcome(transcript, mediaID, transcriptURL string) Outcome {
	return Outcome{
		Success:       true,
		Transcript:    transcript,
		MediaID:       mediaID,
		TranscriptURL: transcriptURL,
	}
}

func FailureOutcome(stage Stage, message string) Outcome {
	return Outcome{Stage: stage, Message: message}
}

// ResultRecord is the unit appended to the output sink: exactly one per
// CallRecord, immutable once emitted.
type ResultRecord struct {
	CallRecord
	NormalizedURL string  `json:"normalized_url,omitempty"`
	Outcome       Outcome `json:"outcome"`
}
