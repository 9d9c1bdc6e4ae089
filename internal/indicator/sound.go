package indicator

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/playback"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueError
)

func (k cueKind) String() string {
	switch k {
	case cueStart:
		return "start"
	case cueStop:
		return "stop"
	case cueComplete:
		return "complete"
	case cueError:
		return "error"
	default:
		return fmt.Sprintf("cue(%d)", int(k))
	}
}

const cueSampleRate = 16000

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var builtinCues = map[cueKind][]toneSpec{
	cueStart: {
		{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
	},
	cueStop: {
		{frequencyHz: 620, duration: 120 * time.Millisecond, volume: 0.18},
	},
	cueComplete: {
		{frequencyHz: 740, duration: 65 * time.Millisecond, volume: 0.18},
		{frequencyHz: 988, duration: 90 * time.Millisecond, volume: 0.18},
	},
	cueError: {
		{frequencyHz: 480, duration: 90 * time.Millisecond, volume: 0.2},
		{frequencyHz: 360, duration: 90 * time.Millisecond, volume: 0.2},
		{frequencyHz: 240, duration: 140 * time.Millisecond, volume: 0.2},
	},
}

// cueSet holds one playable clip per cue kind.
type cueSet map[cueKind]playback.Clip

// loadCues synthesizes the built-in tones and replaces any kind that has a
// readable override file configured.
func loadCues(cfg config.IndicatorConfig) (cueSet, []error) {
	overrides := map[cueKind]string{
		cueStart:    cfg.SoundStartFile,
		cueStop:     cfg.SoundStopFile,
		cueComplete: cfg.SoundCompleteFile,
		cueError:    cfg.SoundErrorFile,
	}

	cues := make(cueSet, len(builtinCues))
	var problems []error
	for kind, parts := range builtinCues {
		cues[kind] = pcmClip(synthesizeCue(parts))

		path := expandUserPath(overrides[kind])
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s cue file: %w", kind, err))
			continue
		}
		cues[kind] = playback.Clip{Data: data}
	}
	return cues, problems
}

func pcmClip(samples []int16) playback.Clip {
	data := make([]byte, 2*len(samples))
	for i, v := range samples {
		data[2*i] = byte(uint16(v))
		data[2*i+1] = byte(uint16(v) >> 8)
	}
	return playback.Clip{Kind: playback.KindPCM, Data: data, SampleRate: cueSampleRate, Channels: 1}
}

func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(raw, "~"), "/"))
}

func synthesizeCue(parts []toneSpec) []int16 {
	if len(parts) == 0 {
		return nil
	}
	gap := samplesForDuration(22 * time.Millisecond)

	var pcm []int16
	for i, part := range parts {
		pcm = append(pcm, synthesizeTone(part)...)
		if i < len(parts)-1 {
			pcm = append(pcm, make([]int16, gap)...)
		}
	}
	return pcm
}

// synthesizeTone renders a sine with a short linear attack and release.
func synthesizeTone(spec toneSpec) []int16 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	ramp := min(n/10, cueSampleRate/200) // at most 5ms
	ramp = max(ramp, 1)

	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		envelope := 1.0
		if i < ramp {
			envelope = float64(i) / float64(ramp)
		}
		if tail := n - i - 1; tail < ramp {
			envelope = math.Min(envelope, float64(tail)/float64(ramp))
		}
		t := float64(i) / cueSampleRate
		pcm[i] = int16(math.Round(math.Sin(2*math.Pi*spec.frequencyHz*t) * spec.volume * envelope * 32767))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
