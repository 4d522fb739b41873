package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/praatlabs/dikteer/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRecognizer struct {
	text  string
	gate  chan struct{} // when set, Transcribe blocks until closed
	mu    sync.Mutex
	fresh bool
}

func (f *fakeRecognizer) Transcribe(_ context.Context, _ string, _ string) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	return f.text, nil
}

func (f *fakeRecognizer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fresh = false
	return nil
}

func (f *fakeRecognizer) closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.fresh
}

type fakeFactory struct {
	mu    sync.Mutex
	calls []string
	recs  map[string]*fakeRecognizer
	errs  map[string]error
	delay map[string]chan struct{} // load blocks until closed
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		recs:  make(map[string]*fakeRecognizer),
		errs:  make(map[string]error),
		delay: make(map[string]chan struct{}),
	}
}

func (f *fakeFactory) build(_ config.EngineConfig, model string) (Recognizer, error) {
	f.mu.Lock()
	f.calls = append(f.calls, model)
	gate := f.delay[model]
	err := f.errs[model]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	rec := &fakeRecognizer{text: "text-" + model, fresh: true}
	f.mu.Lock()
	f.recs[model] = rec
	f.mu.Unlock()
	return rec, nil
}

func (f *fakeFactory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestHandle(factory *fakeFactory) (*Handle, chan Status) {
	statuses := make(chan Status, 32)
	h := NewHandle(config.EngineConfig{Mode: "mock"}, testLogger(), func(s Status) { statuses <- s })
	h.factory = factory.build
	return h, statuses
}

func waitState(t *testing.T, statuses chan Status, want State) Status {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-statuses:
			if s.State == want {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func TestTranscribeBeforeLoadRefuses(t *testing.T) {
	h, _ := newTestHandle(newFakeFactory())
	defer h.Close()
	if _, err := h.Transcribe(context.Background(), "x.wav", "af"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestEnsureLoadedReachesReady(t *testing.T) {
	factory := newFakeFactory()
	h, statuses := newTestHandle(factory)
	defer h.Close()

	h.EnsureLoaded("base")
	waitState(t, statuses, StateReady)

	if !h.Ready() {
		t.Fatal("handle should be ready")
	}
	text, err := h.Transcribe(context.Background(), "x.wav", "af")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "text-base" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestEnsureLoadedIsIdempotent(t *testing.T) {
	factory := newFakeFactory()
	h, statuses := newTestHandle(factory)
	defer h.Close()

	h.EnsureLoaded("base")
	waitState(t, statuses, StateReady)
	h.EnsureLoaded("base")

	time.Sleep(20 * time.Millisecond)
	if got := factory.callCount(); got != 1 {
		t.Fatalf("expected 1 load, got %d", got)
	}
}

func TestModelChangeRetiresOldInstance(t *testing.T) {
	factory := newFakeFactory()
	h, statuses := newTestHandle(factory)
	defer h.Close()

	h.EnsureLoaded("base")
	waitState(t, statuses, StateReady)
	h.EnsureLoaded("tiny")
	waitState(t, statuses, StateReady)

	if !factory.recs["base"].closed() {
		t.Fatal("old recognizer should be closed after swap")
	}
	text, err := h.Transcribe(context.Background(), "x.wav", "af")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "text-tiny" {
		t.Fatalf("expected new model output, got %q", text)
	}
}

func TestLoadFailureLeavesHandleNotReady(t *testing.T) {
	factory := newFakeFactory()
	factory.errs["base"] = errors.New("model file missing")
	h, statuses := newTestHandle(factory)
	defer h.Close()

	h.EnsureLoaded("base")
	s := waitState(t, statuses, StateFailed)
	if s.Err == "" {
		t.Fatal("failed status should carry a reason")
	}
	if h.Ready() {
		t.Fatal("handle must not be ready after failed load")
	}
	if _, err := h.Transcribe(context.Background(), "x.wav", "af"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestSupersededLoadIsDiscarded(t *testing.T) {
	factory := newFakeFactory()
	gate := make(chan struct{})
	factory.delay["base"] = gate
	h, statuses := newTestHandle(factory)
	defer h.Close()

	h.EnsureLoaded("base")
	h.EnsureLoaded("tiny")
	waitState(t, statuses, StateReady)
	close(gate) // let the stale base load finish now

	deadline := time.After(2 * time.Second)
	for {
		if rec := factory.recs["base"]; rec != nil && rec.closed() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("stale load result should be closed once it completes")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if s := h.Status(); s.Model != "tiny" || s.State != StateReady {
		t.Fatalf("unexpected status %+v", s)
	}
}

func TestSwapDoesNotCloseInFlightRecognizer(t *testing.T) {
	factory := newFakeFactory()
	h, statuses := newTestHandle(factory)
	defer h.Close()

	h.EnsureLoaded("base")
	waitState(t, statuses, StateReady)

	gate := make(chan struct{})
	factory.recs["base"].gate = gate

	resultCh := make(chan string, 1)
	go func() {
		text, err := h.Transcribe(context.Background(), "x.wav", "af")
		if err != nil {
			resultCh <- "error: " + err.Error()
			return
		}
		resultCh <- text
	}()

	time.Sleep(10 * time.Millisecond) // let the transcription pin the instance
	h.EnsureLoaded("tiny")
	waitState(t, statuses, StateReady)

	if factory.recs["base"].closed() {
		t.Fatal("in-flight recognizer closed by swap")
	}

	close(gate)
	select {
	case text := <-resultCh:
		if text != "text-base" {
			t.Fatalf("unexpected result %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("transcription never finished")
	}

	deadline := time.After(2 * time.Second)
	for !factory.recs["base"].closed() {
		select {
		case <-deadline:
			t.Fatal("retired recognizer never closed after release")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
