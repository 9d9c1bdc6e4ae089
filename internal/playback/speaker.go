package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// SpeakerSink plays through beep's process-wide speaker (oto/ALSA). The
// speaker is initialized once at Rate; clips at other rates are resampled.
type SpeakerSink struct {
	Rate int

	once    sync.Once
	initErr error
}

// Play queues samples on the speaker and waits for the end of the clip.
func (s *SpeakerSink) Play(ctx context.Context, samples Samples) error {
	s.once.Do(func() {
		rate := beep.SampleRate(s.Rate)
		s.initErr = speaker.Init(rate, rate.N(time.Second/10))
	})
	if s.initErr != nil {
		return fmt.Errorf("init speaker: %w", s.initErr)
	}
	if samples.SampleRate <= 0 {
		return errors.New("clip has no sample rate")
	}

	var streamer beep.Streamer = &int16Streamer{samples: samples}
	if samples.SampleRate != s.Rate {
		streamer = beep.Resample(resampleQuality, beep.SampleRate(samples.SampleRate), beep.SampleRate(s.Rate), streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() { close(done) })))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// int16Streamer exposes interleaved PCM as a beep.Streamer.
type int16Streamer struct {
	samples Samples
	pos     int
}

func (s *int16Streamer) Stream(out [][2]float64) (int, bool) {
	channels := s.samples.Channels
	if channels <= 0 {
		channels = 1
	}
	n := 0
	for n < len(out) && s.pos+channels <= len(s.samples.Data) {
		left := float64(s.samples.Data[s.pos]) / 32768
		right := left
		if channels > 1 {
			right = float64(s.samples.Data[s.pos+1]) / 32768
		}
		out[n] = [2]float64{left, right}
		s.pos += channels
		n++
	}
	return n, n > 0
}

func (s *int16Streamer) Err() error {
	return nil
}
