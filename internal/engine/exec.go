package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/praatlabs/dikteer/internal/config"
)

// execRecognizer shells out to an external transcriber. The command
// receives the artifact path, model size, and language as flags and
// must print {"text": "..."} on stdout.
type execRecognizer struct {
	cmd   []string
	model string
}

type execResult struct {
	Text string `json:"text"`
}

func newExecRecognizer(cfg config.EngineConfig, model string) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}
	return &execRecognizer{cmd: args, model: model}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, artifactPath string, language string) (string, error) {
	args := append([]string{}, r.cmd[1:]...)
	args = append(args, "--audio", artifactPath, "--model", r.model)
	if language != "" {
		args = append(args, "--language", language)
	}

	command := exec.CommandContext(ctx, r.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("engine command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("decode engine response: %w", err)
	}
	return resp.Text, nil
}

func (r *execRecognizer) Close() error { return nil }
