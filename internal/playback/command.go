package playback

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/scratch"
)

// CommandSink writes each clip to a scratch WAV file and runs an external
// player on it (for example aplay -q).
type CommandSink struct {
	Command config.CommandConfig
	Arena   *scratch.Arena
}

// Play runs the player to completion. The scratch file is released on every path.
func (c CommandSink) Play(ctx context.Context, samples Samples) error {
	if len(c.Command.Argv) == 0 {
		return errors.New("playback command is empty")
	}

	file, err := c.Arena.Create("playback-*.wav")
	if err != nil {
		return err
	}
	defer func() { _ = file.Release() }()

	enc := wav.NewEncoder(file, samples.SampleRate, 16, samples.Channels, 1)
	data := make([]int, len(samples.Data))
	for i, v := range samples.Data {
		data[i] = int(v)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: samples.Channels, SampleRate: samples.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write playback wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize playback wav: %w", err)
	}

	argv := c.Command.Args(file.Path())
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("run %s: %w", argv[0], err)
		}
		return fmt.Errorf("run %s: %w: %s", argv[0], err, msg)
	}
	return nil
}
