package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 || cfg.Audio.BlockSamples != 1024 {
		t.Fatalf("unexpected default audio profile: %+v", cfg.Audio)
	}
	if cfg.Engine.Model != "base" || cfg.Engine.Language != "af" {
		t.Fatalf("unexpected default engine config: %+v", cfg.Engine)
	}
	if cfg.Pipeline.PollIntervalMS != 100 {
		t.Fatalf("expected 100ms poll interval, got %d", cfg.Pipeline.PollIntervalMS)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dikteer.yaml")
	data := []byte("engine:\n  mode: mock\n  model: tiny\n  language: en\nrecordings:\n  directory: /tmp/rec\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Mode != "mock" || cfg.Engine.Model != "tiny" || cfg.Engine.Language != "en" {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Recordings.Directory != "/tmp/rec" {
		t.Fatalf("unexpected recordings dir: %s", cfg.Recordings.Directory)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DIKTEER_ENGINE_MODE", "mock")
	t.Setenv("DIKTEER_ENGINE_MODEL", "small")
	t.Setenv("DIKTEER_ENGINE_LANGUAGE", "en")
	t.Setenv("DIKTEER_AUDIO_BLOCK_SAMPLES", "512")
	t.Setenv("DIKTEER_PIPELINE_POLL_INTERVAL_MS", "50")
	t.Setenv("DIKTEER_TRANSCRIPTS_ENABLED", "false")
	t.Setenv("DIKTEER_BUS_SERVERS", "nats://one:4222, nats://two:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Mode != "mock" || cfg.Engine.Model != "small" || cfg.Engine.Language != "en" {
		t.Fatalf("expected engine overrides, got %+v", cfg.Engine)
	}
	if cfg.Audio.BlockSamples != 512 {
		t.Fatalf("expected block samples override, got %d", cfg.Audio.BlockSamples)
	}
	if cfg.Pipeline.PollIntervalMS != 50 {
		t.Fatalf("expected poll interval override, got %d", cfg.Pipeline.PollIntervalMS)
	}
	if cfg.Transcripts.Enabled {
		t.Fatal("expected transcripts disabled")
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
}

func TestValidateRejectsUnknownModel(t *testing.T) {
	t.Setenv("DIKTEER_ENGINE_MODEL", "gigantic")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown model")
	}
}

func TestValidateRejectsUnknownLanguage(t *testing.T) {
	t.Setenv("DIKTEER_ENGINE_LANGUAGE", "xx")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown language")
	}
}

func TestValidateRejectsUnknownEngineMode(t *testing.T) {
	t.Setenv("DIKTEER_ENGINE_MODE", "cloud")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown engine mode")
	}
}
