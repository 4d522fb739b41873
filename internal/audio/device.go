package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Device opens capture streams on an input source.
type Device interface {
	Open(profile Profile) (Stream, error)
}

// Stream is one open capture stream. ReadBlock blocks for up to one
// block's real-time duration.
type Stream interface {
	ReadBlock() ([]byte, error)
	Close() error
}

// PortAudioDevice captures from the default system input via the
// PortAudio binding. Initialize is process-wide and refcounted by
// portaudio itself, but we guard it so Open/Close pairs stay balanced.
type PortAudioDevice struct {
	mu   sync.Mutex
	init bool
}

func NewPortAudioDevice() *PortAudioDevice {
	return &PortAudioDevice{}
}

func (d *PortAudioDevice) Open(profile Profile) (Stream, error) {
	d.mu.Lock()
	if !d.init {
		if err := portaudio.Initialize(); err != nil {
			d.mu.Unlock()
			return nil, fmt.Errorf("initialize portaudio: %w", err)
		}
		d.init = true
	}
	d.mu.Unlock()

	buf := make([]int16, profile.BlockSamples*profile.Channels)
	stream, err := portaudio.OpenDefaultStream(profile.Channels, 0, float64(profile.SampleRate), profile.BlockSamples, buf)
	if err != nil {
		return nil, fmt.Errorf("open default input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	return &portAudioStream{stream: stream, buf: buf}, nil
}

// Terminate releases the portaudio runtime. Call once at shutdown.
func (d *PortAudioDevice) Terminate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.init {
		_ = portaudio.Terminate()
		d.init = false
	}
}

type portAudioStream struct {
	stream *portaudio.Stream
	buf    []int16
}

func (s *portAudioStream) ReadBlock() ([]byte, error) {
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("read input block: %w", err)
	}
	out := make([]byte, len(s.buf)*2)
	for i, sample := range s.buf {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out, nil
}

func (s *portAudioStream) Close() error {
	_ = s.stream.Stop()
	return s.stream.Close()
}
