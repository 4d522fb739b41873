package engine

import (
	"context"
	"fmt"
	"path/filepath"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a recognizer for tests and development
// that never touches a model.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, artifactPath string, language string) (string, error) {
	return fmt.Sprintf("[%s lang=%s]", filepath.Base(artifactPath), language), nil
}

func (m *mockRecognizer) Close() error { return nil }
