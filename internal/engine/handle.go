package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/praatlabs/dikteer/internal/config"
)

// ErrNotReady is returned when transcription is attempted without a
// loaded model. The controller gates recording on readiness, but the
// engine refuses on its own rather than produce wrong results.
var ErrNotReady = errors.New("recognition engine not ready")

// State enumerates the load lifecycle of the engine handle.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the handle reported to observers.
type Status struct {
	State State
	Model string
	Err   string
}

// holder pairs a recognizer with a reference count so a model swap
// never closes an instance still in use by an in-flight transcription.
type holder struct {
	rec     Recognizer
	refs    int
	retired bool
}

// Handle owns the loaded recognizer. Loads run on their own goroutine;
// the loaded instance is swapped wholesale under the lock, never
// mutated in place. At most one load is in flight per handle.
type Handle struct {
	cfg     config.EngineConfig
	log     *slog.Logger
	notify  func(Status)
	factory func(config.EngineConfig, string) (Recognizer, error)

	mu         sync.Mutex
	state      State
	model      string
	lastErr    string
	cur        *holder
	generation int
	wg         sync.WaitGroup
}

// NewHandle creates an unloaded handle. notify is invoked on every
// state change, off the handle's lock; it may be nil.
func NewHandle(cfg config.EngineConfig, log *slog.Logger, notify func(Status)) *Handle {
	if notify == nil {
		notify = func(Status) {}
	}
	return &Handle{
		cfg:     cfg,
		log:     log.With(slog.String("component", "engine")),
		notify:  notify,
		factory: NewRecognizer,
	}
}

// Status returns the current load state.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{State: h.state, Model: h.model, Err: h.lastErr}
}

// Ready reports whether a model is loaded and transcription may start.
func (h *Handle) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == StateReady
}

// EnsureLoaded asynchronously loads the given model size. Idempotent:
// a handle already loaded with (or loading) the same model is left
// alone. A different model retires the current instance and starts a
// fresh load; a load superseded before it finishes is discarded.
func (h *Handle) EnsureLoaded(model string) {
	h.mu.Lock()
	if h.model == model && (h.state == StateReady || h.state == StateLoading) {
		h.mu.Unlock()
		return
	}

	h.generation++
	gen := h.generation
	h.model = model
	h.state = StateLoading
	h.lastErr = ""
	h.retireLocked()
	status := Status{State: StateLoading, Model: model}
	h.mu.Unlock()

	h.notify(status)
	h.log.Info("loading model", slog.String("model", model))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		rec, err := h.factory(h.cfg, model)

		h.mu.Lock()
		if gen != h.generation {
			// A newer load superseded this one.
			h.mu.Unlock()
			if rec != nil {
				_ = rec.Close()
			}
			return
		}
		var status Status
		if err != nil {
			h.state = StateFailed
			h.lastErr = err.Error()
			status = Status{State: StateFailed, Model: model, Err: h.lastErr}
		} else {
			h.cur = &holder{rec: rec}
			h.state = StateReady
			status = Status{State: StateReady, Model: model}
		}
		h.mu.Unlock()

		if err != nil {
			h.log.Error("model load failed", slog.String("model", model), slog.String("error", err.Error()))
		} else {
			h.log.Info("model loaded", slog.String("model", model))
		}
		h.notify(status)
	}()
}

// Transcribe runs inference on the artifact with the loaded model.
// Fails with ErrNotReady when no model is loaded. The recognizer
// reference is pinned for the duration of the call, so a concurrent
// model swap cannot pull it out from under an in-flight transcription.
func (h *Handle) Transcribe(ctx context.Context, artifactPath string, language string) (string, error) {
	h.mu.Lock()
	if h.state != StateReady || h.cur == nil {
		h.mu.Unlock()
		return "", ErrNotReady
	}
	held := h.cur
	held.refs++
	h.mu.Unlock()

	text, err := held.rec.Transcribe(ctx, artifactPath, language)
	h.release(held)
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", artifactPath, err)
	}
	return text, nil
}

func (h *Handle) release(held *holder) {
	h.mu.Lock()
	held.refs--
	closeNow := held.retired && held.refs == 0
	h.mu.Unlock()
	if closeNow {
		_ = held.rec.Close()
	}
}

// retireLocked detaches the current recognizer. It is closed
// immediately when idle, otherwise when its last user releases it.
func (h *Handle) retireLocked() {
	old := h.cur
	h.cur = nil
	if old == nil {
		return
	}
	old.retired = true
	if old.refs == 0 {
		_ = old.rec.Close()
	}
}

// Close retires the loaded recognizer and waits for any in-flight
// load to settle.
func (h *Handle) Close() {
	h.mu.Lock()
	h.generation++
	h.state = StateUnloaded
	h.retireLocked()
	h.mu.Unlock()
	h.wg.Wait()
}
