package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Audio       AudioConfig      `yaml:"audio"`
	Engine      EngineConfig     `yaml:"engine"`
	Recordings  RecordingsConfig `yaml:"recordings"`
	Transcripts TranscriptConfig `yaml:"transcripts"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// AudioConfig describes the fixed capture profile. Whisper expects
// 16 kHz mono s16le, so the defaults are rarely worth changing.
type AudioConfig struct {
	Mode           string `yaml:"mode"` // portaudio, mock
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	SampleBits     int    `yaml:"sample_bits"`
	BlockSamples   int    `yaml:"block_samples"`
	MaxSessionSecs int    `yaml:"max_session_secs"`
}

type EngineConfig struct {
	Mode      string `yaml:"mode"` // whisper, exec, mock
	ModelsDir string `yaml:"models_dir"`
	Model     string `yaml:"model"` // tiny, base, small, medium, large
	Language  string `yaml:"language"`
	Threads   int    `yaml:"threads"`
	Command   string `yaml:"command"`
}

type RecordingsConfig struct {
	Directory string `yaml:"directory"`
}

type TranscriptConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	MaxRows int    `yaml:"max_rows"`
}

type PipelineConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

// ModelSizes is the set of accepted Whisper model identifiers.
var ModelSizes = []string{"tiny", "base", "small", "medium", "large"}

// Languages is the set of accepted language codes. "auto" defers
// detection to the engine.
var Languages = []string{"af", "en", "auto"}

func Default() Config {
	return Config{
		RuntimeName: "dikteerd",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Audio: AudioConfig{
			Mode:           "portaudio",
			SampleRate:     16000,
			Channels:       1,
			SampleBits:     16,
			BlockSamples:   1024,
			MaxSessionSecs: 0,
		},
		Engine: EngineConfig{
			Mode:      "whisper",
			ModelsDir: "./models",
			Model:     "base",
			Language:  "af",
			Threads:   0,
		},
		Recordings: RecordingsConfig{
			Directory: "./recordings",
		},
		Transcripts: TranscriptConfig{
			Enabled: true,
			Path:    "./data/dikteer-transcripts.db",
			MaxRows: 10000,
		},
		Pipeline: PipelineConfig{
			PollIntervalMS: 100,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "DIKTEER_RUNTIME_NAME")
	overrideString(&cfg.Environment, "DIKTEER_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "DIKTEER_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "DIKTEER_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "DIKTEER_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "DIKTEER_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "DIKTEER_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "DIKTEER_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "DIKTEER_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "DIKTEER_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "DIKTEER_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "DIKTEER_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "DIKTEER_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "DIKTEER_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "DIKTEER_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "DIKTEER_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Audio.Mode, "DIKTEER_AUDIO_MODE")
	overrideInt(&cfg.Audio.SampleRate, "DIKTEER_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "DIKTEER_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.SampleBits, "DIKTEER_AUDIO_SAMPLE_BITS")
	overrideInt(&cfg.Audio.BlockSamples, "DIKTEER_AUDIO_BLOCK_SAMPLES")
	overrideInt(&cfg.Audio.MaxSessionSecs, "DIKTEER_AUDIO_MAX_SESSION_SECS")
	overrideString(&cfg.Engine.Mode, "DIKTEER_ENGINE_MODE")
	overrideString(&cfg.Engine.ModelsDir, "DIKTEER_ENGINE_MODELS_DIR")
	overrideString(&cfg.Engine.Model, "DIKTEER_ENGINE_MODEL")
	overrideString(&cfg.Engine.Language, "DIKTEER_ENGINE_LANGUAGE")
	overrideInt(&cfg.Engine.Threads, "DIKTEER_ENGINE_THREADS")
	overrideString(&cfg.Engine.Command, "DIKTEER_ENGINE_COMMAND")
	overrideString(&cfg.Recordings.Directory, "DIKTEER_RECORDINGS_DIR")
	overrideBool(&cfg.Transcripts.Enabled, "DIKTEER_TRANSCRIPTS_ENABLED")
	overrideString(&cfg.Transcripts.Path, "DIKTEER_TRANSCRIPTS_PATH")
	overrideInt(&cfg.Transcripts.MaxRows, "DIKTEER_TRANSCRIPTS_MAX_ROWS")
	overrideInt(&cfg.Pipeline.PollIntervalMS, "DIKTEER_PIPELINE_POLL_INTERVAL_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// ValidModel reports whether model is a known Whisper size.
func ValidModel(model string) bool {
	for _, m := range ModelSizes {
		if m == model {
			return true
		}
	}
	return false
}

// ValidLanguage reports whether lang is an accepted language code.
func ValidLanguage(lang string) bool {
	for _, l := range Languages {
		if l == lang {
			return true
		}
	}
	return false
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Audio.Mode {
	case "portaudio", "mock":
	default:
		return errors.New("audio.mode must be one of portaudio|mock")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if cfg.Audio.SampleBits != 16 {
		return errors.New("audio.sample_bits must be 16")
	}
	if cfg.Audio.BlockSamples <= 0 {
		return errors.New("audio.block_samples must be positive")
	}
	if cfg.Audio.MaxSessionSecs < 0 {
		return errors.New("audio.max_session_secs must be >= 0")
	}
	switch cfg.Engine.Mode {
	case "whisper", "exec", "mock":
	default:
		return errors.New("engine.mode must be one of whisper|exec|mock")
	}
	if cfg.Engine.Mode == "whisper" && cfg.Engine.ModelsDir == "" {
		return errors.New("engine.models_dir must be set when mode=whisper")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if !ValidModel(cfg.Engine.Model) {
		return fmt.Errorf("engine.model must be one of %s", strings.Join(ModelSizes, "|"))
	}
	if !ValidLanguage(cfg.Engine.Language) {
		return fmt.Errorf("engine.language must be one of %s", strings.Join(Languages, "|"))
	}
	if cfg.Engine.Threads < 0 {
		return errors.New("engine.threads must be >= 0")
	}
	if cfg.Recordings.Directory == "" {
		return errors.New("recordings.directory must not be empty")
	}
	if cfg.Transcripts.Enabled && cfg.Transcripts.Path == "" {
		return errors.New("transcripts.path must not be empty when enabled")
	}
	if cfg.Transcripts.MaxRows < 0 {
		return errors.New("transcripts.max_rows must be >= 0")
	}
	if cfg.Pipeline.PollIntervalMS <= 0 {
		return errors.New("pipeline.poll_interval_ms must be positive")
	}
	return nil
}
