// Package protocol defines the JSON messages and subjects the daemon
// exchanges with presentation clients over the bus.
package protocol

import "time"

// Command is a control request from a presentation client.
type Command struct {
	Value string `json:"value,omitempty"`
}

// Transcript is one successful transcription delivered to clients.
type Transcript struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Model     string    `json:"model"`
	Language  string    `json:"language"`
	AudioMS   int64     `json:"audio_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is a human-readable status line, mirrored to clients on
// every pipeline or engine state change.
type Status struct {
	Text      string    `json:"text"`
	Recording bool      `json:"recording"`
	Engine    string    `json:"engine"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
}

// Failure is a non-fatal, user-dismissible error notification.
type Failure struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectRecordStart = "dikteer.control.record.start"
	SubjectRecordStop  = "dikteer.control.record.stop"
	SubjectModelSet    = "dikteer.control.model.set"
	SubjectLanguageSet = "dikteer.control.language.set"

	SubjectTranscript = "dikteer.transcript.final"
	SubjectStatus     = "dikteer.status"
	SubjectError      = "dikteer.error"
)
