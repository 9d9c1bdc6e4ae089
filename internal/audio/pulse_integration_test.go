//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/murmur/internal/scratch"
)

func TestListDevicesIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	devices, err := ListDevices(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)
}

func TestPulseCaptureTimeoutIntegration(t *testing.T) {
	arena, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	defer func() { require.NoError(t, arena.Close()) }()

	format := Format{SampleRate: 16000, Channels: 1}
	session := NewCaptureSession(PulseSource{}, arena, Policy{
		Format:           format,
		SilenceThreshold: 0.01,
		MaxDuration:      500 * time.Millisecond,
	}, nil)
	require.NoError(t, session.Start(context.Background()))

	result, err := session.Wait()
	require.NoError(t, err)
	require.Equal(t, ReasonTimeout, result.Reason)
	require.LessOrEqual(t, result.Samples, int64(8000))
	require.Zero(t, arena.Live())
}
