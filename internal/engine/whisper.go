package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/go-audio/wav"

	"github.com/praatlabs/dikteer/internal/config"
)

// whisperRecognizer runs inference in-process through the whisper.cpp
// bindings. Model files follow the ggml naming convention
// (ggml-<size>.bin) inside the configured models directory.
type whisperRecognizer struct {
	model   whisper.Model
	threads int
}

func newWhisperRecognizer(cfg config.EngineConfig, size string) (Recognizer, error) {
	path := filepath.Join(cfg.ModelsDir, fmt.Sprintf("ggml-%s.bin", size))
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, err)
	}
	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %s: %w", path, err)
	}
	return &whisperRecognizer{model: model, threads: cfg.Threads}, nil
}

func (r *whisperRecognizer) Transcribe(ctx context.Context, artifactPath string, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	samples, err := wavToFloat32(artifactPath)
	if err != nil {
		return "", fmt.Errorf("decode artifact: %w", err)
	}

	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create whisper context: %w", err)
	}
	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			return "", fmt.Errorf("set language %q: %w", language, err)
		}
	}
	if r.threads > 0 {
		wctx.SetThreads(uint(r.threads))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper process: %w", err)
	}

	var text strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read segment: %w", err)
		}
		text.WriteString(segment.Text)
	}
	return text.String(), nil
}

func (r *whisperRecognizer) Close() error {
	return r.model.Close()
}

// wavToFloat32 decodes a 16-bit PCM WAV file into the normalized
// float32 samples whisper.cpp expects.
func wavToFloat32(path string) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / 32768.0
	}
	return samples, nil
}
