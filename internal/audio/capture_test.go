package audio

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testProfile() Profile {
	return Profile{SampleRate: 16000, Channels: 1, SampleBits: 16, BlockSamples: 4}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubStream produces numbered blocks with a short real-time delay,
// then fails once the scripted blocks run out.
type stubStream struct {
	profile  Profile
	produced int
	limit    int
	failAt   int
	closed   bool
}

func (s *stubStream) ReadBlock() ([]byte, error) {
	time.Sleep(time.Millisecond)
	if s.failAt > 0 && s.produced >= s.failAt {
		return nil, errors.New("stream underrun")
	}
	if s.limit > 0 && s.produced >= s.limit {
		// Simulate an open mic with silence once the script is done.
		return make([]byte, s.profile.BlockBytes()), nil
	}
	block := make([]byte, s.profile.BlockBytes())
	block[0] = byte(s.produced)
	s.produced++
	return block, nil
}

func (s *stubStream) Close() error {
	s.closed = true
	return nil
}

type stubDevice struct {
	stream  *stubStream
	openErr error
}

func (d *stubDevice) Open(profile Profile) (Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.stream.profile = profile
	return d.stream, nil
}

func TestCaptureAppendsInOrder(t *testing.T) {
	dev := &stubDevice{stream: &stubStream{}}
	rec, err := StartCapture(dev, testProfile(), 0, testLogger())
	if err != nil {
		t.Fatalf("start capture: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	session := rec.Stop()

	if !session.Stopped() {
		t.Fatal("session should be stopped after hand-off")
	}
	chunks := session.Chunks()
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for i, c := range chunks {
		if c[0] != byte(i) {
			t.Fatalf("chunk %d out of order: marker %d", i, c[0])
		}
		if len(c) != testProfile().BlockBytes() {
			t.Fatalf("chunk %d wrong size: %d", i, len(c))
		}
	}
	if got, want := session.SampleCount(), len(chunks)*testProfile().BlockSamples; got != want {
		t.Fatalf("sample count %d, want %d", got, want)
	}
	if !dev.stream.closed {
		t.Fatal("stream should be closed on stop")
	}
}

func TestCaptureDeviceFailureIsSynchronous(t *testing.T) {
	dev := &stubDevice{openErr: errors.New("no such device")}
	if _, err := StartCapture(dev, testProfile(), 0, testLogger()); err == nil {
		t.Fatal("expected device error")
	}
}

func TestCaptureReadErrorKeepsPartialAudio(t *testing.T) {
	dev := &stubDevice{stream: &stubStream{failAt: 3}}
	rec, err := StartCapture(dev, testProfile(), 0, testLogger())
	if err != nil {
		t.Fatalf("start capture: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	session := rec.Stop()

	if got := len(session.Chunks()); got != 3 {
		t.Fatalf("expected 3 partial chunks, got %d", got)
	}
}

func TestCaptureMaxSessionLength(t *testing.T) {
	dev := &stubDevice{stream: &stubStream{limit: 2}}
	// Two 4-sample blocks at 16kHz come to 500µs, so the cap trips
	// on the second block.
	rec, err := StartCapture(dev, testProfile(), 400*time.Microsecond, testLogger())
	if err != nil {
		t.Fatalf("start capture: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	session := rec.Stop()
	if got := len(session.Chunks()); got != 2 {
		t.Fatalf("expected capture to stop at 2 chunks, got %d", got)
	}
}

func TestSessionAppendAfterStop(t *testing.T) {
	s := NewSession(testProfile())
	if err := s.Append([]byte{1, 2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	s.Stop()
	if err := s.Append([]byte{3, 4}); !errors.Is(err, ErrSessionStopped) {
		t.Fatalf("expected ErrSessionStopped, got %v", err)
	}
	if len(s.Chunks()) != 1 {
		t.Fatalf("stopped session mutated: %d chunks", len(s.Chunks()))
	}
}

func TestProfileHelpers(t *testing.T) {
	p := Profile{SampleRate: 16000, Channels: 1, SampleBits: 16, BlockSamples: 1024}
	if p.BlockBytes() != 2048 {
		t.Fatalf("block bytes %d, want 2048", p.BlockBytes())
	}
	if p.BlockDuration() != 64*time.Millisecond {
		t.Fatalf("block duration %s, want 64ms", p.BlockDuration())
	}
}
