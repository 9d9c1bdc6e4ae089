package indicator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/playback"
)

func TestLoadCuesSynthesizesEveryKind(t *testing.T) {
	cues, problems := loadCues(config.IndicatorConfig{})
	require.Empty(t, problems)
	for _, kind := range []cueKind{cueStart, cueStop, cueComplete, cueError} {
		clip, ok := cues[kind]
		require.True(t, ok, kind.String())
		require.Equal(t, playback.KindPCM, clip.Kind)
		require.Equal(t, cueSampleRate, clip.SampleRate)
		require.NotEmpty(t, clip.Data)
	}
}

func TestLoadCuesUsesOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "start.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFdata"), 0o600))

	cues, problems := loadCues(config.IndicatorConfig{
		SoundStartFile: path,
		SoundErrorFile: filepath.Join(t.TempDir(), "missing.wav"),
	})
	require.Len(t, problems, 1)
	require.Contains(t, problems[0].Error(), "error cue file")
	require.Equal(t, []byte("RIFFdata"), cues[cueStart].Data)
	require.Equal(t, playback.KindPCM, cues[cueError].Kind)
}

func TestSynthesizeToneDuration(t *testing.T) {
	got := synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0.2})
	require.Len(t, got, samplesForDuration(100*time.Millisecond))
	require.Zero(t, got[0])
}

func TestSynthesizeToneInvalidSpecReturnsEmpty(t *testing.T) {
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 0, duration: 100 * time.Millisecond, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 0, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0}))
}

func TestSynthesizeCueInsertsGaps(t *testing.T) {
	parts := []toneSpec{
		{frequencyHz: 440, duration: 50 * time.Millisecond, volume: 0.2},
		{frequencyHz: 660, duration: 50 * time.Millisecond, volume: 0.2},
	}
	got := synthesizeCue(parts)
	require.Len(t, got, 2*samplesForDuration(50*time.Millisecond)+samplesForDuration(22*time.Millisecond))
	require.Empty(t, synthesizeCue(nil))
}

func TestExpandUserPath(t *testing.T) {
	t.Setenv("HOME", "/home/pi")
	require.Equal(t, "", expandUserPath("  "))
	require.Equal(t, "/home/pi", expandUserPath("~"))
	require.Equal(t, "/home/pi/cues/start.wav", expandUserPath("~/cues/start.wav"))
	require.Equal(t, "/opt/cues/start.wav", expandUserPath("/opt/cues/start.wav"))
}
