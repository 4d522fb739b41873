package audio

import "time"

// MockDevice produces silent blocks at real-time pace, for running
// the pipeline without a microphone.
type MockDevice struct{}

func NewMockDevice() *MockDevice {
	return &MockDevice{}
}

func (d *MockDevice) Open(profile Profile) (Stream, error) {
	return &mockStream{profile: profile}, nil
}

type mockStream struct {
	profile Profile
}

func (s *mockStream) ReadBlock() ([]byte, error) {
	time.Sleep(s.profile.BlockDuration())
	return make([]byte, s.profile.BlockBytes()), nil
}

func (s *mockStream) Close() error { return nil }
