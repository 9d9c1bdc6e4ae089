package audio

import (
	"fmt"
	"log/slog"
	"strings"
)

// Capture backends accepted by NewSource.
const (
	BackendPulse     = "pulse"
	BackendPortAudio = "portaudio"
)

// NewSource returns the capture source for backend.
func NewSource(backend string, device string, fallback string, logger *slog.Logger) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendPulse:
		return PulseSource{Device: device, Fallback: fallback, Logger: logger}, nil
	case BackendPortAudio:
		return PortAudioSource{}, nil
	default:
		return nil, fmt.Errorf("unsupported audio backend %q", backend)
	}
}
