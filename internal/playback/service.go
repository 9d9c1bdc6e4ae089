package playback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/scratch"
)

// Output backends accepted by NewSink.
const (
	BackendPulse   = "pulse"
	BackendSpeaker = "speaker"
	BackendCommand = "command"
)

// Sink renders decoded samples. Play returns once the clip has finished.
type Sink interface {
	Play(ctx context.Context, samples Samples) error
}

// NewSink builds the output for backend. command is only used by the command backend.
func NewSink(backend string, command config.CommandConfig, arena *scratch.Arena, rate int) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendPulse:
		return PulseSink{}, nil
	case BackendSpeaker:
		return &SpeakerSink{Rate: rate}, nil
	case BackendCommand:
		return CommandSink{Command: command, Arena: arena}, nil
	default:
		return nil, fmt.Errorf("unsupported playback backend %q", backend)
	}
}

// Service serializes playback of speech and cues onto one sink.
type Service struct {
	sink       Sink
	outputRate int
	logger     *slog.Logger

	mu sync.Mutex
}

// NewService wraps sink. MP3 speech is resampled to outputRate.
func NewService(sink Sink, outputRate int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{sink: sink, outputRate: outputRate, logger: logger}
}

// Play decodes clip and plays it to completion.
func (s *Service) Play(ctx context.Context, clip Clip) error {
	samples, err := Decode(clip, s.outputRate)
	if err != nil {
		return err
	}
	return s.PlaySamples(ctx, samples)
}

// PlaySamples plays already-decoded PCM. Clips never overlap.
func (s *Service) PlaySamples(ctx context.Context, samples Samples) error {
	if len(samples.Data) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	if err := s.sink.Play(ctx, samples); err != nil {
		return fmt.Errorf("play clip: %w", err)
	}
	s.logger.Debug("clip played",
		"frames", samples.Frames(),
		"sample_rate", samples.SampleRate,
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return nil
}
