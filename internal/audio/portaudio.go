package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource records from the PortAudio default input device. It serves
// ALSA-only boards without a Pulse server.
type PortAudioSource struct{}

// Open initializes PortAudio and starts a blocking-read input stream.
func (PortAudioSource) Open(_ context.Context, format Format) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}

	frames := int(format.SamplesFor(frameDuration))
	buf := make([]int16, frames*format.Channels)
	stream, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), frames, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start portaudio stream: %w", err)
	}

	s := &portAudioStream{
		stream: stream,
		buf:    buf,
		chunks: make(chan []byte, 16),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.read()
	return s, nil
}

type portAudioStream struct {
	stream *portaudio.Stream
	buf    []int16

	chunks chan []byte
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func (s *portAudioStream) Chunks() <-chan []byte {
	return s.chunks
}

func (s *portAudioStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop asks the reader to exit and waits for it to release the device.
func (s *portAudioStream) Stop() error {
	s.once.Do(func() { close(s.stopCh) })
	<-s.done
	return nil
}

// read owns the PortAudio stream; only this goroutine touches it.
func (s *portAudioStream) read() {
	defer func() {
		_ = s.stream.Stop()
		_ = s.stream.Close()
		_ = portaudio.Terminate()
		close(s.chunks)
		close(s.done)
	}()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}

		chunk := make([]byte, 2*len(s.buf))
		for i, v := range s.buf {
			binary.LittleEndian.PutUint16(chunk[2*i:], uint16(v))
		}
		select {
		case <-s.stopCh:
			return
		case s.chunks <- chunk:
		}
	}
}
