// Package playback decodes speech and cue clips and plays them on the
// configured output.
package playback

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/go-audio/wav"
)

// Kind is the clip encoding.
type Kind string

const (
	KindAuto Kind = ""
	KindPCM  Kind = "pcm"
	KindWAV  Kind = "wav"
	KindMP3  Kind = "mp3"
)

// resampleQuality is the beep.Resample quality used for speech.
const resampleQuality = 4

// Clip is encoded audio. SampleRate and Channels are only read for KindPCM.
type Clip struct {
	Kind       Kind
	Data       []byte
	SampleRate int
	Channels   int
}

// Samples is decoded interleaved PCM.
type Samples struct {
	Data       []int16
	SampleRate int
	Channels   int
}

// Frames reports the per-channel sample count.
func (s Samples) Frames() int {
	if s.Channels <= 0 {
		return 0
	}
	return len(s.Data) / s.Channels
}

// Sniff guesses the encoding from leading magic bytes.
func Sniff(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return KindWAV
	case bytes.HasPrefix(data, []byte("ID3")):
		return KindMP3
	case len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return KindMP3
	default:
		return KindPCM
	}
}

// Decode turns clip into PCM. MP3 input is resampled to outputRate when it differs.
func Decode(clip Clip, outputRate int) (Samples, error) {
	if len(clip.Data) == 0 {
		return Samples{}, errors.New("empty clip")
	}
	kind := clip.Kind
	if kind == KindAuto {
		kind = Sniff(clip.Data)
	}

	switch kind {
	case KindPCM:
		return decodePCM(clip)
	case KindWAV:
		return decodeWAV(clip.Data)
	case KindMP3:
		return decodeMP3(clip.Data, outputRate)
	default:
		return Samples{}, fmt.Errorf("unsupported clip kind %q", kind)
	}
}

func decodePCM(clip Clip) (Samples, error) {
	if clip.SampleRate <= 0 {
		return Samples{}, errors.New("pcm clip needs a sample rate")
	}
	channels := clip.Channels
	if channels <= 0 {
		channels = 1
	}
	data := make([]int16, len(clip.Data)/2)
	for i := range data {
		data[i] = int16(binary.LittleEndian.Uint16(clip.Data[2*i:]))
	}
	return Samples{Data: data, SampleRate: clip.SampleRate, Channels: channels}, nil
}

func decodeWAV(data []byte) (Samples, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Samples{}, errors.New("invalid wav clip")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Samples{}, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return Samples{}, errors.New("wav clip has no format")
	}

	shift := int(dec.BitDepth) - 16
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case shift > 0:
			v >>= shift
		case shift < 0:
			v <<= -shift
		}
		out[i] = int16(v)
	}
	return Samples{Data: out, SampleRate: buf.Format.SampleRate, Channels: buf.Format.NumChannels}, nil
}

func decodeMP3(data []byte, outputRate int) (Samples, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return Samples{}, fmt.Errorf("decode mp3: %w", err)
	}
	defer streamer.Close()

	var source beep.Streamer = streamer
	rate := int(format.SampleRate)
	if outputRate > 0 && outputRate != rate {
		source = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(outputRate), streamer)
		rate = outputRate
	}

	// speech is downmixed to mono
	var out []int16
	frames := make([][2]float64, 512)
	for {
		n, ok := source.Stream(frames)
		for _, f := range frames[:n] {
			out = append(out, floatToInt16((f[0]+f[1])/2))
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return Samples{}, fmt.Errorf("stream mp3: %w", err)
	}
	return Samples{Data: out, SampleRate: rate, Channels: 1}, nil
}

func floatToInt16(v float64) int16 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}
