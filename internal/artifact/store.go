// Package artifact persists capture sessions as WAV files in the
// recordings directory, one file per session, named by capture
// timestamp. Files are never removed automatically; housekeeping is
// left to the operator.
package artifact

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/praatlabs/dikteer/internal/audio"
)

type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("recordings directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// Write serializes a stopped session into a WAV file and returns its
// path. Nanosecond timestamps keep rapid start/stop cycles from
// colliding.
func (s *Store) Write(session *audio.Session) (string, error) {
	if !session.Stopped() {
		return "", fmt.Errorf("session still recording")
	}
	profile := session.Profile()
	name := fmt.Sprintf("%d.wav", session.StartedAt().UnixNano())
	path := filepath.Join(s.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	defer file.Close()

	if err := writePCMToWav(file, session.PCM(), profile.SampleRate, profile.Channels); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", name, err)
	}
	return path, nil
}

// List returns all artifact paths in the store, oldest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read recordings dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".wav") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// ListOrphans returns artifact paths with no entry in referenced,
// oldest first. External housekeeping uses this to find recordings
// the transcript log no longer accounts for; the store itself never
// deletes anything.
func (s *Store) ListOrphans(referenced []string) ([]string, error) {
	paths, err := s.List()
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(referenced))
	for _, p := range referenced {
		known[filepath.Clean(p)] = struct{}{}
	}
	var orphans []string
	for _, p := range paths {
		if _, ok := known[filepath.Clean(p)]; !ok {
			orphans = append(orphans, p)
		}
	}
	return orphans, nil
}

func writePCMToWav(file *os.File, pcm []byte, sampleRate int, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	buffer := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
