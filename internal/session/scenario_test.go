package session

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/indicator"
	"github.com/rbright/murmur/internal/pipeline"
	"github.com/rbright/murmur/internal/scratch"
)

var scenarioFormat = audio.Format{SampleRate: 16000, Channels: 1}

// liveStream produces identical chunks until stopped, like an open microphone.
type liveStream struct {
	chunks chan []byte
	quit   chan struct{}
	once   sync.Once
}

func (s *liveStream) Chunks() <-chan []byte { return s.chunks }

func (s *liveStream) Stop() error {
	s.once.Do(func() { close(s.quit) })
	return nil
}

func (s *liveStream) Err() error { return nil }

type liveSource struct {
	amplitude int16
}

func (s liveSource) Open(_ context.Context, format audio.Format) (audio.Stream, error) {
	chunk := make([]byte, format.ChunkBytes())
	for i := 0; i+1 < len(chunk); i += 2 {
		v := s.amplitude
		if (i/2)%2 == 1 {
			v = -v
		}
		binary.LittleEndian.PutUint16(chunk[i:], uint16(v))
	}

	stream := &liveStream{chunks: make(chan []byte), quit: make(chan struct{})}
	go func() {
		for {
			select {
			case stream.chunks <- chunk:
			case <-stream.quit:
				return
			}
		}
	}()
	return stream, nil
}

type fakeLight struct {
	mu     sync.Mutex
	on     bool
	closed bool
}

func (l *fakeLight) Set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = on
}

func (l *fakeLight) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLight) state() (on bool, closed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on, l.closed
}

type scriptedTranscriber struct{ text string }

func (s scriptedTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return s.text, nil
}

type scriptedModel struct {
	reply   string
	err     error
	block   bool
	entered chan struct{}
	once    sync.Once
}

func (m *scriptedModel) Complete(ctx context.Context, _ []pipeline.Message) (string, error) {
	if m.entered != nil {
		m.once.Do(func() { close(m.entered) })
	}
	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.reply, m.err
}

type recordingSynth struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSynth) Synthesize(_ context.Context, text string, _ string, _ string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return []byte("ID3" + text), nil
}

type rig struct {
	*harness
	arena   *scratch.Arena
	active  *fakeLight
	status  *fakeLight
	speaker *fakeSpeaker
	synth   *recordingSynth
}

func newRig(t *testing.T, source audio.Source, policy audio.Policy, stt pipeline.Transcriber, model pipeline.ChatModel, grace time.Duration) *rig {
	t.Helper()
	arena, err := scratch.New(t.TempDir())
	require.NoError(t, err)

	r := &rig{
		arena:   arena,
		active:  &fakeLight{},
		status:  &fakeLight{},
		speaker: &fakeSpeaker{},
		synth:   &recordingSynth{},
	}
	panel := indicator.NewPanel(config.IndicatorConfig{}, r.active, r.status, nil, nil)
	policy.Format = scenarioFormat

	r.harness = startController(t, Deps{
		Recorders: func() Recorder { return audio.NewCaptureSession(source, arena, policy, nil) },
		Responder: pipeline.New(stt, r.synth, "Answer briefly.", nil),
		Speaker:   r.speaker,
		Indicator: panel,
		Scratch:   arena,
	}, Inputs{}, Options{
		Providers:     []pipeline.Provider{{Name: "groq", Model: model}},
		Voices:        []string{"nova"},
		Language:      "en",
		ShutdownGrace: grace,
	})
	return r
}

func TestScenarioSilenceEndsWithNoSpeech(t *testing.T) {
	r := newRig(t,
		liveSource{amplitude: 10},
		audio.Policy{SilenceThreshold: 0.02, SilenceDuration: 300 * time.Millisecond, MaxDuration: 5 * time.Second},
		scriptedTranscriber{text: "  "},
		&scriptedModel{reply: "unused"},
		time.Second,
	)

	_, err := r.ctrl.Press(context.Background())
	require.NoError(t, err)

	res := r.result(t)
	require.Equal(t, OutcomeNoSpeech, res.Outcome)
	require.Equal(t, audio.ReasonSilence, res.StopReason)
	require.Equal(t, 300*time.Millisecond, res.Captured)
	require.Empty(t, r.speaker.played())

	status := r.harness.status(t)
	require.Equal(t, fsm.StateIdle, status.State)
	require.Zero(t, status.History)

	activeOn, _ := r.active.state()
	statusOn, _ := r.status.state()
	require.False(t, activeOn)
	require.True(t, statusOn)
	require.Zero(t, r.arena.Live())
}

func TestScenarioTimeoutRunsFullPipeline(t *testing.T) {
	r := newRig(t,
		liveSource{amplitude: 8000},
		audio.Policy{SilenceThreshold: 0.02, SilenceDuration: time.Second, MaxDuration: 200 * time.Millisecond},
		scriptedTranscriber{text: "what time is it"},
		&scriptedModel{reply: "It is noon."},
		time.Second,
	)

	_, err := r.ctrl.Press(context.Background())
	require.NoError(t, err)

	res := r.result(t)
	require.Equal(t, OutcomeAnswered, res.Outcome)
	require.Equal(t, audio.ReasonTimeout, res.StopReason)
	require.Equal(t, 200*time.Millisecond, res.Captured)
	require.Equal(t, "what time is it", res.Transcript)
	require.Equal(t, "It is noon.", res.Reply)
	require.NoError(t, res.Err)
	require.Equal(t, [][]byte{[]byte("ID3It is noon.")}, r.speaker.played())
	require.Equal(t, 2, r.harness.status(t).History)
	require.Zero(t, r.arena.Live())
}

func TestScenarioInferenceFailureApologizes(t *testing.T) {
	r := newRig(t,
		liveSource{amplitude: 8000},
		audio.Policy{SilenceThreshold: 0.02, SilenceDuration: time.Second, MaxDuration: 100 * time.Millisecond},
		scriptedTranscriber{text: "tell me a joke"},
		&scriptedModel{err: errors.New("rate limited")},
		time.Second,
	)

	_, err := r.ctrl.Press(context.Background())
	require.NoError(t, err)

	res := r.result(t)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, pipeline.ErrInference)
	require.ErrorContains(t, res.Err, "groq")
	require.Equal(t, "tell me a joke", res.Transcript)
	require.Equal(t, []string{config.DefaultApology}, r.synth.texts)
	require.Equal(t, [][]byte{[]byte("ID3" + config.DefaultApology)}, r.speaker.played())

	status := r.harness.status(t)
	require.Equal(t, fsm.StateIdle, status.State)
	require.Zero(t, status.History)
}

func TestScenarioShutdownDuringProcessingReleasesEverything(t *testing.T) {
	model := &scriptedModel{block: true, entered: make(chan struct{})}
	r := newRig(t,
		liveSource{amplitude: 8000},
		audio.Policy{SilenceThreshold: 0.02, SilenceDuration: time.Second, MaxDuration: 100 * time.Millisecond},
		scriptedTranscriber{text: "hello"},
		model,
		50*time.Millisecond,
	)

	_, err := r.ctrl.Press(context.Background())
	require.NoError(t, err)

	select {
	case <-model.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("inference never started")
	}
	require.Equal(t, fsm.StateProcessing, r.harness.status(t).State)

	r.cancel()
	select {
	case <-r.ctrl.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("controller did not finish shutdown")
	}

	res := r.result(t)
	require.Equal(t, OutcomeInterrupted, res.Outcome)
	require.Zero(t, r.arena.Live())
	_, err = os.Stat(r.arena.Dir())
	require.True(t, os.IsNotExist(err))

	activeOn, activeClosed := r.active.state()
	statusOn, statusClosed := r.status.state()
	require.False(t, activeOn)
	require.False(t, statusOn)
	require.True(t, activeClosed)
	require.True(t, statusClosed)
	require.Empty(t, r.speaker.played())
}
