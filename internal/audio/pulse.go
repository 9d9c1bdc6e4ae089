// Package audio handles input device discovery, PCM capture streams, and the
// recording session that turns them into WAV clips.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	clientName = "murmur"
	clientIcon = "audio-input-microphone"

	pulseWatchInterval = 100 * time.Millisecond
)

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(clientName),
		pulse.ClientApplicationIconName(clientIcon),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          info.SourceName,
			Description: info.Device,
			State:       sourceStateString(info.State),
			Available:   sourceAvailable(info),
			Muted:       info.Mute,
			Default:     info.SourceName == defaultSource.ID(),
		})
	}
	return devices, nil
}

// SelectDevice resolves the preferred and fallback device names against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	input = normalizeTerm(input)
	fallback = normalizeTerm(fallback)

	var defaultDevice, byInput, byFallback *Device
	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			defaultDevice = dev
		}
		if byInput == nil && deviceMatches(*dev, input) {
			byInput = dev
		}
		if byFallback == nil && deviceMatches(*dev, fallback) {
			byFallback = dev
		}
	}

	primary := byInput
	if input == "" {
		primary = defaultDevice
	}
	if primary == nil {
		if input == "" {
			return Selection{}, errors.New("default audio source is unavailable")
		}
		return Selection{}, fmt.Errorf("audio.device %q did not match any device", input)
	}
	if usable(primary) {
		return Selection{Device: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	alt := byFallback
	if fallback == "" {
		alt = defaultDevice
	}
	if alt == nil || !usable(alt) {
		return Selection{}, fmt.Errorf("audio source %q is %s and no usable fallback exists", primary.ID, reason)
	}

	return Selection{
		Device:   *alt,
		Warning:  fmt.Sprintf("audio source %q is %s; using %q", primary.ID, reason, alt.ID),
		Fallback: alt.ID != primary.ID,
	}, nil
}

func normalizeTerm(term string) string {
	term = strings.TrimSpace(strings.ToLower(term))
	if term == "default" {
		return ""
	}
	return term
}

func usable(d *Device) bool {
	return d.Available && !d.Muted
}

func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

// PulseSource records from a PulseAudio (or PipeWire-pulse) source.
type PulseSource struct {
	Device   string
	Fallback string
	Logger   *slog.Logger
}

// Open selects the device and starts a record stream in format.
func (p PulseSource) Open(ctx context.Context, format Format) (Stream, error) {
	selection, err := SelectDevice(ctx, p.Device, p.Fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" && p.Logger != nil {
		p.Logger.Warn(selection.Warning)
	}

	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selection.Device.ID, err)
	}

	s := newPulseStream(format.ChunkBytes())
	s.client = client

	channels := pulse.RecordMono
	if format.Channels == 2 {
		channels = pulse.RecordStereo
	}
	writer := pulse.NewWriter(writerFunc(s.onPCM), pulseproto.FormatInt16LE)
	record, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		channels,
		pulse.RecordSampleRate(format.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(format.ChunkBytes())),
		pulse.RecordMediaName("murmur capture"),
	)
	if err != nil {
		_ = s.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	s.record = record
	record.Start()
	go s.watch(pulseWatchInterval, record.Error)
	return s, nil
}

// pulseStream re-slices Pulse callbacks into fixed-size chunks.
type pulseStream struct {
	chunkBytes int

	client *pulse.Client
	record *pulse.RecordStream

	chunks chan []byte
	stopCh chan struct{}

	mu       sync.Mutex
	pending  []byte
	stopped  bool
	err      error
	inflight sync.WaitGroup
}

func newPulseStream(chunkBytes int) *pulseStream {
	return &pulseStream{
		chunkBytes: chunkBytes,
		chunks:     make(chan []byte, 128),
		stopCh:     make(chan struct{}),
	}
}

func (s *pulseStream) Chunks() <-chan []byte {
	return s.chunks
}

// Err reports the server-side failure that ended the stream. Errors surfacing
// after Stop was requested are not failures.
func (s *pulseStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// watch ends the stream as soon as the server reports the record stream dead.
func (s *pulseStream) watch(interval time.Duration, streamErr func() error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			err := streamErr()
			if err == nil {
				continue
			}
			s.mu.Lock()
			if !s.stopped {
				s.err = err
			}
			s.mu.Unlock()
			_ = s.Stop()
			return
		}
	}
}

// Stop halts the record stream, flushes the residual partial chunk, and closes
// Chunks exactly once.
func (s *pulseStream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	if s.record != nil {
		s.record.Stop()
		s.record.Close()
	}
	if s.client != nil {
		s.client.Close()
	}

	s.inflight.Wait()

	s.mu.Lock()
	residual := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(residual) > 0 {
		select {
		case s.chunks <- residual:
		default:
		}
	}
	close(s.chunks)
	return nil
}

func (s *pulseStream) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same lock that guards stopped so Stop's Wait cannot race it.
	s.inflight.Add(1)
	defer s.inflight.Done()

	s.pending = append(s.pending, buffer...)
	var ready [][]byte
	for len(s.pending) >= s.chunkBytes {
		chunk := make([]byte, s.chunkBytes)
		copy(chunk, s.pending[:s.chunkBytes])
		s.pending = s.pending[s.chunkBytes:]
		ready = append(ready, chunk)
	}
	s.mu.Unlock()

	for _, chunk := range ready {
		select {
		case <-s.stopCh:
			return 0, io.EOF
		case s.chunks <- chunk:
		}
	}
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse port availability to a boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
