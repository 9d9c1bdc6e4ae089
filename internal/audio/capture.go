package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/scratch"
)

var (
	ErrAlreadyRecording = errors.New("capture already recording")
	ErrSessionFinished  = errors.New("capture session already finished")
	ErrNotStarted       = errors.New("capture session not started")
	// ErrCaptureFailed marks a device or stream failure. No audio accompanies it.
	ErrCaptureFailed = errors.New("capture failed")
)

// Source opens PCM streams from an input device.
type Source interface {
	Open(ctx context.Context, format Format) (Stream, error)
}

// Stream delivers PCM chunks until stopped or the device fails.
type Stream interface {
	// Chunks is closed when the stream ends for any reason.
	Chunks() <-chan []byte
	Stop() error
	// Err reports why the stream ended on its own, if it did.
	Err() error
}

// Reason names the trigger that ended a recording.
type Reason string

const (
	ReasonManual  Reason = "manual"
	ReasonSilence Reason = "silence"
	ReasonTimeout Reason = "timeout"
)

// CaptureState is the recording lifecycle.
type CaptureState string

const (
	CaptureIdle      CaptureState = "idle"
	CaptureRecording CaptureState = "recording"
	CaptureStopped   CaptureState = "stopped"
	CaptureFailed    CaptureState = "failed"
)

// Policy bounds one recording.
type Policy struct {
	Format Format
	// SilenceThreshold is the normalized RMS a chunk must reach to count as signal.
	SilenceThreshold float64
	// SilenceDuration of continuous sub-threshold audio ends the recording. Zero disables.
	SilenceDuration time.Duration
	MaxDuration     time.Duration
}

// Result is the outcome of a stopped recording.
type Result struct {
	Audio    []byte
	Reason   Reason
	Samples  int64
	Duration time.Duration
	Voiced   bool
}

// CaptureSession records one utterance. Every stop trigger funnels into one
// teardown performed by the pump goroutine.
type CaptureSession struct {
	source Source
	arena  *scratch.Arena
	policy Policy
	logger *slog.Logger

	mu     sync.Mutex
	state  CaptureState
	reason Reason

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	timer    *time.Timer

	result Result
	err    error
}

// NewCaptureSession prepares an idle session.
func NewCaptureSession(source Source, arena *scratch.Arena, policy Policy, logger *slog.Logger) *CaptureSession {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CaptureSession{
		source: source,
		arena:  arena,
		policy: policy,
		logger: logger,
		state:  CaptureIdle,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start opens the stream and begins recording.
func (s *CaptureSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case CaptureRecording:
		return ErrAlreadyRecording
	case CaptureStopped, CaptureFailed:
		return ErrSessionFinished
	}

	file, err := s.arena.Create("capture-*.wav")
	if err != nil {
		s.failLocked(fmt.Errorf("%w: %w", ErrCaptureFailed, err))
		return s.err
	}

	stream, err := s.source.Open(ctx, s.policy.Format)
	if err != nil {
		_ = file.Release()
		s.failLocked(fmt.Errorf("%w: open stream: %w", ErrCaptureFailed, err))
		return s.err
	}

	s.state = CaptureRecording
	if s.policy.MaxDuration > 0 {
		s.timer = time.AfterFunc(s.policy.MaxDuration, func() { s.trigger(ReasonTimeout) })
	}
	go s.pump(stream, file)
	return nil
}

// Stop requests a manual stop and waits for the teardown. Every caller gets the
// same result.
func (s *CaptureSession) Stop() (Result, error) {
	s.mu.Lock()
	if s.state == CaptureIdle {
		s.mu.Unlock()
		return Result{}, ErrNotStarted
	}
	s.mu.Unlock()

	s.trigger(ReasonManual)
	return s.Wait()
}

// Wait blocks until the session reaches a terminal state.
func (s *CaptureSession) Wait() (Result, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// Done is closed once the session is terminal.
func (s *CaptureSession) Done() <-chan struct{} {
	return s.done
}

// State reports the current lifecycle state.
func (s *CaptureSession) State() CaptureState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// trigger records the first stop reason and wakes the pump.
func (s *CaptureSession) trigger(reason Reason) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.stopCh)
	})
}

func (s *CaptureSession) failLocked(err error) {
	s.state = CaptureFailed
	s.err = err
	close(s.done)
}

func (s *CaptureSession) pump(stream Stream, file *scratch.File) {
	sink := newWAVSink(file, s.policy.Format)
	frameBytes := s.policy.Format.FrameBytes()
	maxSamples := s.policy.Format.SamplesFor(s.policy.MaxDuration)
	silenceSamples := s.policy.Format.SamplesFor(s.policy.SilenceDuration)

	var (
		samples   int64
		silentRun int64
		voiced    bool
		failure   error
	)

loop:
	for {
		select {
		case <-s.stopCh:
			break loop
		case chunk, ok := <-stream.Chunks():
			if !ok {
				failure = stream.Err()
				if failure == nil {
					failure = errors.New("stream ended unexpectedly")
				}
				break loop
			}

			frames := int64(len(chunk) / frameBytes)
			if maxSamples > 0 && samples+frames > maxSamples {
				frames = maxSamples - samples
			}
			if frames <= 0 {
				continue
			}
			chunk = chunk[:frames*int64(frameBytes)]

			if err := sink.Write(chunk); err != nil {
				failure = err
				break loop
			}
			samples += frames

			if RMS(chunk) >= s.policy.SilenceThreshold {
				voiced = true
				silentRun = 0
			} else {
				silentRun += frames
			}

			switch {
			case maxSamples > 0 && samples >= maxSamples:
				s.trigger(ReasonTimeout)
				break loop
			case silenceSamples > 0 && silentRun >= silenceSamples:
				s.trigger(ReasonSilence)
				break loop
			}
		}
	}

	s.finish(stream, file, sink, samples, voiced, failure)
}

// finish is the only teardown path for a started session. A stream that
// reports an error fails the session even when a stop trigger won the race.
func (s *CaptureSession) finish(stream Stream, file *scratch.File, sink *wavSink, samples int64, voiced bool, failure error) {
	if s.timer != nil {
		s.timer.Stop()
	}
	if err := stream.Stop(); err != nil && failure == nil {
		s.logger.Debug("capture stream stop failed", "error", err.Error())
	}
	if failure == nil {
		failure = stream.Err()
	}

	var data []byte
	if failure == nil {
		var err error
		data, err = sink.Finish()
		if err != nil {
			failure = err
		}
	}
	if err := file.Release(); err != nil {
		s.logger.Debug("capture scratch release failed", "error", err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if failure != nil {
		s.state = CaptureFailed
		s.err = fmt.Errorf("%w: %w", ErrCaptureFailed, failure)
		s.logger.Warn("capture failed", "error", failure.Error(), "samples", samples)
	} else {
		s.state = CaptureStopped
		s.result = Result{
			Audio:    data,
			Reason:   s.reason,
			Samples:  samples,
			Duration: s.policy.Format.DurationOf(samples),
			Voiced:   voiced,
		}
	}
	close(s.done)
}
