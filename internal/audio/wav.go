package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/rbright/murmur/internal/scratch"
)

const wavFormatPCM = 1

// wavSink assembles a WAV file on scratch storage while PCM arrives.
type wavSink struct {
	file    *scratch.File
	enc     *wav.Encoder
	format  *goaudio.Format
	written int64
}

func newWAVSink(file *scratch.File, format Format) *wavSink {
	return &wavSink{
		file:   file,
		enc:    wav.NewEncoder(file, format.SampleRate, 16, format.Channels, wavFormatPCM),
		format: &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
	}
}

func (w *wavSink) Write(pcm []byte) error {
	data := make([]int, len(pcm)/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	if err := w.enc.Write(&goaudio.IntBuffer{Format: w.format, Data: data, SourceBitDepth: 16}); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	w.written += int64(len(data))
	return nil
}

// Finish finalizes the header and returns the complete file contents.
func (w *wavSink) Finish() ([]byte, error) {
	if w.written == 0 {
		// forces the header out for an empty recording
		if err := w.Write(nil); err != nil {
			return nil, err
		}
	}
	if err := w.enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind wav: %w", err)
	}
	data, err := io.ReadAll(w.file)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	return data, nil
}
