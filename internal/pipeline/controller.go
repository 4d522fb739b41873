package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/praatlabs/dikteer/internal/artifact"
	"github.com/praatlabs/dikteer/internal/audio"
	"github.com/praatlabs/dikteer/internal/config"
	"github.com/praatlabs/dikteer/internal/engine"
)

var (
	// ErrAlreadyRecording rejects a start while a session is active.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording rejects a stop with no active session.
	ErrNotRecording = errors.New("not recording")
	// ErrRecording rejects model/language changes mid-session.
	ErrRecording = errors.New("recording in progress")
)

// Hooks are the presentation-layer callbacks the controller reports
// through. All of them are invoked from whichever goroutine calls the
// controller, never concurrently with themselves from Poll.
type Hooks struct {
	Status     func(text string)
	Transcript func(segment string)
	Error      func(message string)
}

func (h Hooks) ensure() Hooks {
	if h.Status == nil {
		h.Status = func(string) {}
	}
	if h.Transcript == nil {
		h.Transcript = func(string) {}
	}
	if h.Error == nil {
		h.Error = func(string) {}
	}
	return h
}

// Archiver persists finished results. Failures are logged, never
// surfaced to the user path.
type Archiver interface {
	Archive(ctx context.Context, r Result) error
}

// Controller owns the recording state machine and dispatches the
// background workers. User-initiated transitions and model/language
// changes are serialized behind one lock; transcription runs detached
// and reports through the result queue only.
type Controller struct {
	cfg       config.Config
	log       *slog.Logger
	device    audio.Device
	artifacts *artifact.Store
	engine    *engine.Handle
	archiver  Archiver
	hooks     Hooks
	queue     *ResultQueue

	mu         sync.Mutex
	recording  bool
	capture    *audio.Capture
	language   string
	transcript strings.Builder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sessionsStarted  metric.Int64Counter
	transcriptionsOK metric.Int64Counter
	transcriptionsNG metric.Int64Counter
	inferenceSeconds metric.Float64Histogram
}

func NewController(cfg config.Config, device audio.Device, artifacts *artifact.Store, archiver Archiver, hooks Hooks, log *slog.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:       cfg,
		log:       log.With(slog.String("component", "pipeline")),
		device:    device,
		artifacts: artifacts,
		archiver:  archiver,
		hooks:     hooks.ensure(),
		queue:     NewResultQueue(),
		language:  cfg.Engine.Language,
		ctx:       ctx,
		cancel:    cancel,
	}
	c.engine = engine.NewHandle(cfg.Engine, log, c.onEngineStatus)
	c.initMetrics()
	return c
}

func (c *Controller) initMetrics() {
	meter := otel.Meter("github.com/praatlabs/dikteer/pipeline")
	var err error
	if c.sessionsStarted, err = meter.Int64Counter("dikteer.sessions.started", metric.WithDescription("Capture sessions started")); err != nil {
		c.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		return
	}
	if c.transcriptionsOK, err = meter.Int64Counter("dikteer.transcriptions.ok", metric.WithDescription("Transcriptions completed successfully")); err != nil {
		c.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		return
	}
	if c.transcriptionsNG, err = meter.Int64Counter("dikteer.transcriptions.failed", metric.WithDescription("Transcriptions that produced an error result")); err != nil {
		c.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		return
	}
	if c.inferenceSeconds, err = meter.Float64Histogram("dikteer.inference.seconds", metric.WithDescription("Model inference wall time")); err != nil {
		c.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
}

// Start kicks off the initial model load. Recording stays rejected
// until the engine reports ready.
func (c *Controller) Start() {
	c.engine.EnsureLoaded(c.cfg.Engine.Model)
}

// Close stops any active capture without transcribing it, waits for
// in-flight transcriptions to finish, and releases the engine.
func (c *Controller) Close() {
	c.mu.Lock()
	capture := c.capture
	c.capture = nil
	c.recording = false
	c.mu.Unlock()

	if capture != nil {
		session := capture.Stop()
		c.log.Warn("recording discarded at shutdown", slog.Duration("audio", session.Duration()))
	}
	c.cancel()
	c.wg.Wait()
	c.engine.Close()
}

func (c *Controller) onEngineStatus(s engine.Status) {
	switch s.State {
	case engine.StateLoading:
		c.hooks.Status(fmt.Sprintf("Loading %s model...", s.Model))
	case engine.StateReady:
		c.hooks.Status("Model loaded - ready to record")
	case engine.StateFailed:
		c.hooks.Status("Model loading failed")
		c.hooks.Error(fmt.Sprintf("Failed to load model: %s", s.Err))
	}
}

// EngineStatus exposes the engine load state for readiness probes.
func (c *Controller) EngineStatus() engine.Status {
	return c.engine.Status()
}

// Ready reports whether the engine has a loaded model.
func (c *Controller) Ready() bool {
	return c.engine.Ready()
}

// Recording reports whether a capture session is active.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func (c *Controller) profile() audio.Profile {
	return audio.Profile{
		SampleRate:   c.cfg.Audio.SampleRate,
		Channels:     c.cfg.Audio.Channels,
		SampleBits:   c.cfg.Audio.SampleBits,
		BlockSamples: c.cfg.Audio.BlockSamples,
	}
}

// StartRecording opens the capture stream and begins a session.
// Rejected while already recording or while the engine is not ready;
// a device failure is reported synchronously and leaves the state
// machine in Idle.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		c.hooks.Error("Already recording")
		return ErrAlreadyRecording
	}
	if !c.engine.Ready() {
		c.mu.Unlock()
		c.hooks.Error("Please wait for the model to load first")
		return engine.ErrNotReady
	}

	maxLen := time.Duration(c.cfg.Audio.MaxSessionSecs) * time.Second
	capture, err := audio.StartCapture(c.device, c.profile(), maxLen, c.log)
	if err != nil {
		c.mu.Unlock()
		c.hooks.Error(fmt.Sprintf("Failed to start recording: %s", err))
		return fmt.Errorf("start recording: %w", err)
	}
	c.capture = capture
	c.recording = true
	c.mu.Unlock()

	if c.sessionsStarted != nil {
		c.sessionsStarted.Add(c.ctx, 1)
	}
	c.log.Info("recording started")
	c.hooks.Status("Recording... stop when finished")
	return nil
}

// StopRecording ends the active session and hands it to a detached
// transcription worker. Always returns the state machine to Idle,
// whatever the transcription later yields.
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return ErrNotRecording
	}
	capture := c.capture
	c.capture = nil
	c.recording = false
	language := c.language
	c.mu.Unlock()

	session := capture.Stop()
	c.log.Info("recording stopped",
		slog.Duration("audio", session.Duration()),
		slog.Int("chunks", len(session.Chunks())))
	c.hooks.Status("Processing audio...")

	c.wg.Add(1)
	go c.transcribe(session, language)
	return nil
}

// transcribe is the worker: artifact, inference, one result. It never
// panics out; every failure becomes an Err result on the queue.
func (c *Controller) transcribe(session *audio.Session, language string) {
	defer c.wg.Done()

	res := Result{
		SessionID: uuid.NewString(),
		Language:  language,
		Audio:     session.Duration(),
		Model:     c.engine.Status().Model,
	}

	path, err := c.artifacts.Write(session)
	if err != nil {
		res.Err = err.Error()
		c.finish(res)
		return
	}
	res.Artifact = path

	start := time.Now()
	text, err := c.engine.Transcribe(c.ctx, path, language)
	res.Inference = time.Since(start)
	if err != nil {
		res.Err = err.Error()
		c.finish(res)
		return
	}

	res.Text = strings.TrimSpace(text)
	c.finish(res)
}

func (c *Controller) finish(res Result) {
	c.queue.Push(res)

	if res.Ok() {
		if c.transcriptionsOK != nil {
			c.transcriptionsOK.Add(c.ctx, 1)
		}
		if c.inferenceSeconds != nil {
			c.inferenceSeconds.Record(c.ctx, res.Inference.Seconds())
		}
		c.log.Info("transcription complete",
			slog.String("session_id", res.SessionID),
			slog.Duration("audio", res.Audio),
			slog.Duration("inference", res.Inference))
	} else {
		if c.transcriptionsNG != nil {
			c.transcriptionsNG.Add(c.ctx, 1)
		}
		c.log.Warn("transcription failed",
			slog.String("session_id", res.SessionID),
			slog.String("error", res.Err))
	}

	if c.archiver != nil {
		if err := c.archiver.Archive(c.ctx, res); err != nil {
			c.log.Warn("failed to archive result", slog.String("error", err.Error()))
		}
	}
}

// SetModel switches the engine to another model size. Serialized with
// start/stop: rejected while recording so a swap can never race an
// active session.
func (c *Controller) SetModel(size string) error {
	if !config.ValidModel(size) {
		return fmt.Errorf("unknown model size %q", size)
	}
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		c.hooks.Error("Cannot change model while recording")
		return ErrRecording
	}
	c.mu.Unlock()

	c.engine.EnsureLoaded(size)
	return nil
}

// SetLanguage switches the language used for subsequent sessions.
func (c *Controller) SetLanguage(code string) error {
	if !config.ValidLanguage(code) {
		return fmt.Errorf("unknown language %q", code)
	}
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		c.hooks.Error("Cannot change language while recording")
		return ErrRecording
	}
	c.language = code
	c.mu.Unlock()
	return nil
}

// Language returns the language applied to the next session.
func (c *Controller) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// DrainResults removes and returns all completed results in
// completion order. Draining an empty queue returns nil.
func (c *Controller) DrainResults() []Result {
	return c.queue.Drain()
}

// Poll drains completed results and applies them to the transcript:
// successes append with a blank-line separator, failures surface as a
// user-visible error. Called on a fixed cadence from the single
// consumer context; an empty queue is a normal, silent outcome.
func (c *Controller) Poll() []Result {
	results := c.queue.Drain()
	for _, r := range results {
		if r.Ok() {
			c.mu.Lock()
			if c.transcript.Len() > 0 {
				c.transcript.WriteString("\n\n")
			}
			c.transcript.WriteString(r.Text)
			c.mu.Unlock()
			c.hooks.Transcript(r.Text)
			c.hooks.Status("Transcription complete - ready for next recording")
		} else {
			c.hooks.Error(r.Err)
			c.hooks.Status("Transcription failed")
		}
	}
	return results
}

// Transcript returns the assembled text so far.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.String()
}

// ClearTranscript discards the assembled text.
func (c *Controller) ClearTranscript() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.Reset()
}
