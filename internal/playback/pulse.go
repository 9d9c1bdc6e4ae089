package playback

import (
	"context"
	"fmt"

	"github.com/jfreymuth/pulse"
)

// PulseSink plays through a short-lived PulseAudio playback stream per clip.
type PulseSink struct {
	MediaName string
}

// Play blocks until the stream drains or ctx is cancelled.
func (p PulseSink) Play(ctx context.Context, samples Samples) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("murmur"),
		pulse.ClientApplicationIconName("audio-speakers"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if ctx.Err() != nil || cursor >= len(samples.Data) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples.Data[cursor:])
		cursor += n
		if cursor >= len(samples.Data) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	channels := pulse.PlaybackMono
	if samples.Channels == 2 {
		channels = pulse.PlaybackStereo
	}
	name := p.MediaName
	if name == "" {
		name = "murmur speech"
	}

	stream, err := client.NewPlayback(
		reader,
		channels,
		pulse.PlaybackSampleRate(samples.SampleRate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName(name),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("pulse playback: %w", err)
	}
	return ctx.Err()
}
