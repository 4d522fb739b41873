// Package engine manages the offline speech-recognition model: which
// backend is loaded, what state the load is in, and the single entry
// point for turning an audio artifact into text.
package engine

import (
	"context"
	"fmt"

	"github.com/praatlabs/dikteer/internal/config"
)

// Recognizer abstracts speech-to-text backends.
type Recognizer interface {
	Transcribe(ctx context.Context, artifactPath string, language string) (string, error)
	Close() error
}

// NewRecognizer builds the backend selected by config for the given
// model size.
func NewRecognizer(cfg config.EngineConfig, model string) (Recognizer, error) {
	switch cfg.Mode {
	case "whisper":
		return newWhisperRecognizer(cfg, model)
	case "exec":
		return newExecRecognizer(cfg, model)
	case "mock":
		return NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}
}
