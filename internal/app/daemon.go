package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/backend"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/gpio"
	"github.com/rbright/murmur/internal/health"
	"github.com/rbright/murmur/internal/indicator"
	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/pipeline"
	"github.com/rbright/murmur/internal/playback"
	"github.com/rbright/murmur/internal/scratch"
	"github.com/rbright/murmur/internal/session"
)

const (
	socketProbeTimeout = 180 * time.Millisecond
	socketRetries      = 8
)

func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		ProbeTimeout: socketProbeTimeout,
		Retries:      socketRetries,
		Logger:       logger,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		if !errors.Is(err, ipc.ErrAlreadyRunning) {
			logger.Error("acquire control socket failed", "path", socketPath, "error", err.Error())
		}
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	controller, err := buildController(cfg, gpio.HostOpener(), logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("controller setup failed", "error", err.Error())
		return 1
	}

	var probe *health.Server
	if cfg.Health.Listen != "" {
		probe, err = health.Listen(cfg.Health.Listen, logger)
		if err != nil {
			abandon(controller)
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			logger.Error("health listener failed", "listen", cfg.Health.Listen, "error", err.Error())
			return 1
		}
		defer func() { _ = probe.Close() }()
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	if probe != nil {
		probe.SetServing(true)
	}
	logger.Info("daemon running", "socket", socketPath, "health", cfg.Health.Listen)

	runErr := controller.Run(ctx)
	if probe != nil {
		probe.SetServing(false)
	}
	serverCancel()
	serverErr := <-serverErrCh

	if runErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", runErr)
		return 1
	}
	if serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	logger.Info("daemon stopped")
	return 0
}

// abandon releases a controller that will never serve.
func abandon(controller *session.Controller) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = controller.Run(ctx)
}

// buildController assembles the capture, pipeline, playback, and GPIO
// collaborators described by cfg.
func buildController(cfg config.Config, open gpio.Opener, logger *slog.Logger) (*session.Controller, error) {
	arena, err := scratch.New(cfg.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("create scratch arena: %w", err)
	}

	source, err := audio.NewSource(cfg.Audio.Backend, cfg.Audio.Input, cfg.Audio.Fallback, logger)
	if err != nil {
		_ = arena.Close()
		return nil, err
	}
	policy := audio.Policy{
		Format:           audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels},
		SilenceThreshold: cfg.Audio.SilenceThreshold,
		SilenceDuration:  millis(cfg.Audio.SilenceMS),
		MaxDuration:      millis(cfg.Audio.MaxDurationMS),
	}

	sink, err := playback.NewSink(cfg.Playback.Backend, cfg.Playback.Command, arena, cfg.Playback.SampleRate)
	if err != nil {
		_ = arena.Close()
		return nil, err
	}
	speaker := playback.NewService(sink, cfg.Playback.SampleRate, logger)

	debounce := millis(cfg.GPIO.DebounceMS)
	button := func(line string) *gpio.Button {
		return gpio.OpenButton(logger, open, gpio.ButtonConfig{
			Line:      line,
			ActiveLow: cfg.GPIO.ButtonActiveLow,
			Debounce:  debounce,
		})
	}
	led := func(line string) *gpio.LED {
		return gpio.OpenLED(logger, open, gpio.LEDConfig{Line: line, ActiveLow: cfg.GPIO.LEDActiveLow})
	}
	record := button(cfg.GPIO.RecordButton)
	stop := button(cfg.GPIO.StopButton)
	nextProvider := button(cfg.GPIO.ProviderButton)
	nextVoice := button(cfg.GPIO.VoiceButton)

	panel := indicator.NewPanel(cfg.Indicator, led(cfg.GPIO.ActiveLED), led(cfg.GPIO.StatusLED), speaker, logger)

	responder := pipeline.New(
		backend.NewTranscriber(endpoint(cfg.Transcription)),
		backend.NewSpeech(endpoint(cfg.Synthesis.Endpoint)),
		cfg.Conversation.SystemPrompt,
		logger,
	)

	providers := make([]pipeline.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers = append(providers, pipeline.Provider{
			Name:  p.Name,
			Model: backend.NewChat(endpoint(p.Endpoint), p.MaxTokens),
		})
	}

	return session.NewController(session.Deps{
		Recorders: func() session.Recorder {
			return audio.NewCaptureSession(source, arena, policy, logger)
		},
		Responder: responder,
		Speaker:   speaker,
		Indicator: panel,
		Scratch:   arena,
		Closers:   []io.Closer{record, stop, nextProvider, nextVoice},
		Logger:    logger,
	}, session.Inputs{
		Record:   record.Events(),
		Stop:     stop.Events(),
		Provider: nextProvider.Events(),
		Voice:    nextVoice.Events(),
	}, session.Options{
		Providers:     providers,
		Voices:        cfg.Synthesis.Voices,
		Language:      cfg.Conversation.Language,
		HistoryLimit:  cfg.Conversation.HistoryLimit,
		Apology:       cfg.Conversation.Apology,
		ShutdownGrace: millis(cfg.ShutdownGraceMS),
		SkipUnvoiced:  cfg.Conversation.SkipUnvoiced,
		OnResult: func(result session.Result) {
			logSessionResult(logger, result)
		},
	}), nil
}

func endpoint(ep config.EndpointConfig) backend.Endpoint {
	return backend.Endpoint{
		BaseURL: ep.BaseURL,
		Model:   ep.Model,
		APIKey:  ep.APIKey(),
		Timeout: millis(ep.TimeoutMS),
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
