// Package bridge connects the pipeline controller to presentation
// clients on the bus: control subjects in, transcript/status/error
// subjects out. All state transitions and result draining happen on
// one loop goroutine, which stands in for the UI thread the
// controller's contract assumes.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/praatlabs/dikteer/internal/bus"
	"github.com/praatlabs/dikteer/internal/pipeline"
	"github.com/praatlabs/dikteer/internal/protocol"
)

type command struct {
	subject string
	value   string
}

type Bridge struct {
	bus      *bus.Client
	log      *slog.Logger
	interval time.Duration

	ctrl     *pipeline.Controller
	commands chan command
	subs     []*nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
}

func New(parent context.Context, busClient *bus.Client, interval time.Duration, log *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(parent)
	return &Bridge{
		bus:      busClient,
		log:      log.With(slog.String("component", "bridge")),
		interval: interval,
		commands: make(chan command, 16),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Hooks returns the presentation callbacks to hand the controller.
// They publish to the bus and are safe from any goroutine.
func (b *Bridge) Hooks() pipeline.Hooks {
	return pipeline.Hooks{
		Status: b.publishStatus,
		Error:  b.publishError,
	}
}

// Attach binds the controller the bridge drives. Must be called
// before Start.
func (b *Bridge) Attach(ctrl *pipeline.Controller) {
	b.ctrl = ctrl
}

// Start subscribes to the control subjects and begins the poll loop.
func (b *Bridge) Start() error {
	if b.ctrl == nil {
		return fmt.Errorf("bridge started without a controller")
	}
	subjects := []string{
		protocol.SubjectRecordStart,
		protocol.SubjectRecordStop,
		protocol.SubjectModelSet,
		protocol.SubjectLanguageSet,
	}
	for _, subject := range subjects {
		sub, err := b.bus.Conn().Subscribe(subject, b.handleMessage)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		b.subs = append(b.subs, sub)
	}

	b.wg.Add(1)
	go b.loop()
	b.started = true
	return nil
}

func (b *Bridge) Close() {
	b.cancel()
	for _, sub := range b.subs {
		_ = sub.Drain()
	}
	b.wg.Wait()
}

func (b *Bridge) Healthy() bool {
	return b.started && b.bus.Healthy()
}

// handleMessage runs on the NATS delivery goroutine; it only funnels
// the command onto the loop.
func (b *Bridge) handleMessage(msg *nats.Msg) {
	var cmd protocol.Command
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			b.log.Warn("failed to decode command", slog.String("subject", msg.Subject), slog.String("error", err.Error()))
			return
		}
	}
	select {
	case b.commands <- command{subject: msg.Subject, value: cmd.Value}:
	case <-b.ctx.Done():
	}
}

func (b *Bridge) loop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case cmd := <-b.commands:
			b.dispatch(cmd)
		case <-ticker.C:
			for _, res := range b.ctrl.Poll() {
				if res.Ok() {
					b.publishTranscript(res)
				}
			}
		}
	}
}

// dispatch applies one control command. Rejections are already
// surfaced through the controller's hooks; here they only log.
func (b *Bridge) dispatch(cmd command) {
	var err error
	switch cmd.subject {
	case protocol.SubjectRecordStart:
		err = b.ctrl.StartRecording()
	case protocol.SubjectRecordStop:
		err = b.ctrl.StopRecording()
	case protocol.SubjectModelSet:
		if err = b.ctrl.SetModel(cmd.value); err != nil {
			b.publishError(err.Error())
		}
	case protocol.SubjectLanguageSet:
		if err = b.ctrl.SetLanguage(cmd.value); err != nil {
			b.publishError(err.Error())
		}
	default:
		b.log.Warn("unknown control subject", slog.String("subject", cmd.subject))
		return
	}
	if err != nil {
		b.log.Warn("control command rejected",
			slog.String("subject", cmd.subject),
			slog.String("error", err.Error()))
	}
}

func (b *Bridge) publishTranscript(res pipeline.Result) {
	msg := protocol.Transcript{
		SessionID: res.SessionID,
		Text:      res.Text,
		Model:     res.Model,
		Language:  res.Language,
		AudioMS:   res.Audio.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	b.publish(protocol.SubjectTranscript, msg)
}

func (b *Bridge) publishStatus(text string) {
	var recording bool
	var engineState, model string
	if b.ctrl != nil {
		recording = b.ctrl.Recording()
		status := b.ctrl.EngineStatus()
		engineState = status.State.String()
		model = status.Model
	}
	msg := protocol.Status{
		Text:      text,
		Recording: recording,
		Engine:    engineState,
		Model:     model,
		Timestamp: time.Now().UTC(),
	}
	b.publish(protocol.SubjectStatus, msg)
}

func (b *Bridge) publishError(message string) {
	b.publish(protocol.SubjectError, protocol.Failure{
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func (b *Bridge) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Warn("failed to marshal message", slog.String("subject", subject), slog.String("error", err.Error()))
		return
	}
	if err := b.bus.Conn().Publish(subject, data); err != nil {
		b.log.Warn("failed to publish message", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
