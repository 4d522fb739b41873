// Package audio owns the capture profile, the per-recording session
// buffer, and the worker that streams microphone blocks into it.
package audio

import (
	"errors"
	"time"
)

// ErrSessionStopped is returned when a chunk is appended to a session
// that has already been handed off.
var ErrSessionStopped = errors.New("capture session already stopped")

// Profile is the fixed PCM capture profile, copied into each session
// at start so a config change never affects an in-flight recording.
type Profile struct {
	SampleRate   int
	Channels     int
	SampleBits   int
	BlockSamples int
}

// BlockBytes returns the size of one capture block in bytes.
func (p Profile) BlockBytes() int {
	return p.BlockSamples * p.Channels * p.SampleBits / 8
}

// BlockDuration returns the real-time duration of one capture block.
func (p Profile) BlockDuration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.BlockSamples) * time.Second / time.Duration(p.SampleRate)
}

// Session is one contiguous recording. Chunks are appended by the
// capture worker while recording; after Stop the sequence is immutable
// and ownership passes to the transcription side.
type Session struct {
	profile   Profile
	startedAt time.Time
	chunks    [][]byte
	stopped   bool
}

func NewSession(profile Profile) *Session {
	return &Session{
		profile:   profile,
		startedAt: time.Now(),
	}
}

func (s *Session) Profile() Profile     { return s.profile }
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Append adds one PCM chunk. Only the capture worker calls this, and
// only before Stop.
func (s *Session) Append(chunk []byte) error {
	if s.stopped {
		return ErrSessionStopped
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.chunks = append(s.chunks, buf)
	return nil
}

// Stop freezes the session. Idempotent.
func (s *Session) Stop() {
	s.stopped = true
}

func (s *Session) Stopped() bool { return s.stopped }

// Chunks returns the recorded chunks in arrival order.
func (s *Session) Chunks() [][]byte { return s.chunks }

// PCM concatenates all chunks into a single buffer.
func (s *Session) PCM() []byte {
	total := 0
	for _, c := range s.chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range s.chunks {
		out = append(out, c...)
	}
	return out
}

// SampleCount returns the number of samples buffered so far.
func (s *Session) SampleCount() int {
	total := 0
	for _, c := range s.chunks {
		total += len(c)
	}
	return total / (s.profile.Channels * s.profile.SampleBits / 8)
}

// Duration returns the recorded real-time length.
func (s *Session) Duration() time.Duration {
	if s.profile.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.SampleCount()) * time.Second / time.Duration(s.profile.SampleRate)
}
