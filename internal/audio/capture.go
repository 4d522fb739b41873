package audio

import (
	"fmt"
	"log/slog"
	"time"
)

// Capture runs one recording: a goroutine pulling fixed-size blocks
// from an open stream into a session until signalled to stop. The stop
// is cooperative, observed between blocking reads.
type Capture struct {
	session *Session
	stream  Stream
	log     *slog.Logger
	maxLen  time.Duration
	stop    chan struct{}
	done    chan struct{}
}

// StartCapture opens a stream on the device and begins recording into
// a fresh session. A device that cannot be opened fails synchronously,
// before the worker starts.
func StartCapture(device Device, profile Profile, maxLen time.Duration, log *slog.Logger) (*Capture, error) {
	stream, err := device.Open(profile)
	if err != nil {
		return nil, fmt.Errorf("open capture stream: %w", err)
	}

	c := &Capture{
		session: NewSession(profile),
		stream:  stream,
		log:     log,
		maxLen:  maxLen,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.run()
	return c, nil
}

func (c *Capture) run() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		chunk, err := c.stream.ReadBlock()
		if err != nil {
			// Partial audio is kept; the session is still handed off.
			c.log.Warn("capture read failed, ending recording early", slog.String("error", err.Error()))
			return
		}
		if err := c.session.Append(chunk); err != nil {
			c.log.Warn("capture append failed", slog.String("error", err.Error()))
			return
		}
		if c.maxLen > 0 && c.session.Duration() >= c.maxLen {
			c.log.Warn("recording reached max session length", slog.Duration("max", c.maxLen))
			return
		}
	}
}

// Stop signals the worker, waits for it to exit its current read,
// closes the stream, and returns the frozen session.
func (c *Capture) Stop() *Session {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	<-c.done
	if err := c.stream.Close(); err != nil {
		c.log.Warn("close capture stream", slog.String("error", err.Error()))
	}
	c.session.Stop()
	return c.session
}
