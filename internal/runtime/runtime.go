package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/praatlabs/dikteer/internal/artifact"
	"github.com/praatlabs/dikteer/internal/audio"
	"github.com/praatlabs/dikteer/internal/bridge"
	"github.com/praatlabs/dikteer/internal/bus"
	"github.com/praatlabs/dikteer/internal/config"
	"github.com/praatlabs/dikteer/internal/natsserver"
	"github.com/praatlabs/dikteer/internal/pipeline"
	"github.com/praatlabs/dikteer/internal/transcript"
)

// Runtime owns the daemon's services: telemetry, the bus (optionally
// embedded), the transcript store, the dictation pipeline, and the
// bridge that exposes the pipeline over NATS.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	metricsSrv  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	busClient  *bus.Client
	embedded   *natsserver.EmbeddedServer
	store      *transcript.Store
	controller *pipeline.Controller
	bridge     *bridge.Bridge
	device     *audio.PortAudioDevice
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up every service in dependency order, then blocks until
// ctx is cancelled and tears them down in reverse.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	r.embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS server: %w", err)
	}

	r.busClient, err = bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		r.embedded.Shutdown()
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	r.store, err = transcript.Open(ctx, r.cfg.Transcripts, r.logger)
	if err != nil {
		r.teardownBus()
		return fmt.Errorf("failed to open transcript store: %w", err)
	}

	artifacts, err := artifact.NewStore(r.cfg.Recordings.Directory)
	if err != nil {
		r.teardownStore()
		return fmt.Errorf("failed to prepare recordings directory: %w", err)
	}

	var device audio.Device
	switch r.cfg.Audio.Mode {
	case "mock":
		device = audio.NewMockDevice()
	default:
		r.device = audio.NewPortAudioDevice()
		device = r.device
	}

	pollInterval := time.Duration(r.cfg.Pipeline.PollIntervalMS) * time.Millisecond
	r.bridge = bridge.New(ctx, r.busClient, pollInterval, r.logger)
	r.controller = pipeline.NewController(r.cfg, device, artifacts, r.store, r.bridge.Hooks(), r.logger)
	r.bridge.Attach(r.controller)

	if err := r.bridge.Start(); err != nil {
		r.controller.Close()
		r.teardownStore()
		return fmt.Errorf("failed to start bus bridge: %w", err)
	}

	r.controller.Start()

	if err := r.startHTTP(); err != nil {
		r.teardownServices()
		return err
	}
	r.startMetrics(metricHandler)

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", r.httpServer.Addr),
		slog.String("audio_mode", r.cfg.Audio.Mode),
		slog.String("engine_mode", r.cfg.Engine.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.teardownServices()
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) startHTTP() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (r *Runtime) startMetrics(handler http.Handler) {
	if handler == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	r.metricsSrv = &http.Server{
		Addr:              r.cfg.Telemetry.PrometheusBind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
}

// teardownServices stops the bridge and pipeline before the transports
// they depend on.
func (r *Runtime) teardownServices() {
	if r.bridge != nil {
		r.bridge.Close()
	}
	if r.controller != nil {
		r.controller.Close()
	}
	r.teardownStore()
	if r.device != nil {
		r.device.Terminate()
	}
}

func (r *Runtime) teardownStore() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("transcript store close error", slog.String("error", err.Error()))
		}
	}
	r.teardownBus()
}

func (r *Runtime) teardownBus() {
	if r.busClient != nil {
		r.busClient.Close()
	}
	r.embedded.Shutdown()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.controller.Ready() && r.busClient.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
