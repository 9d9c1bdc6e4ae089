package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const frameDuration = 20 * time.Millisecond

// Format is signed 16-bit little-endian PCM at SampleRate with Channels
// interleaved channels.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameBytes is the size of one sample across all channels.
func (f Format) FrameBytes() int {
	return 2 * f.Channels
}

// ChunkBytes is the size of one 20ms capture chunk.
func (f Format) ChunkBytes() int {
	return int(f.SamplesFor(frameDuration)) * f.FrameBytes()
}

// SamplesFor converts d into a per-channel sample count, rounding down.
func (f Format) SamplesFor(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d) * int64(f.SampleRate) / int64(time.Second)
}

// DurationOf converts a per-channel sample count into wall time.
func (f Format) DurationOf(samples int64) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(samples * int64(time.Second) / int64(f.SampleRate))
}

// RMS returns the normalized root-mean-square energy of s16le pcm in [0, 1].
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
