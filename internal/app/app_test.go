package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/gpio"
	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/pipeline"
	"github.com/rbright/murmur/internal/session"
)

// inertGPIO keeps daemon tests away from real hardware.
const inertGPIO = `{
  "gpio": {
    "record_button": "", "stop_button": "", "provider_button": "", "voice_button": "",
    "active_led": "", "status_led": ""
  }
}`

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "murmur")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteRejectsInvalidConfig(t *testing.T) {
	paths := setupRunnerEnv(t, `{"audio": {"channels": 3}}`)

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "audio.channels")
}

func TestExecuteLoadsEnvFileWithoutOverriding(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	envPath := filepath.Join(t.TempDir(), "keys.env")
	require.NoError(t, os.WriteFile(envPath, []byte("MURMUR_TEST_FRESH=from-file\nMURMUR_TEST_SET=from-file\n"), 0o600))
	t.Setenv("MURMUR_TEST_SET", "from-process")
	t.Cleanup(func() { _ = os.Unsetenv("MURMUR_TEST_FRESH") })

	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "-e", envPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "from-file", os.Getenv("MURMUR_TEST_FRESH"))
	require.Equal(t, "from-process", os.Getenv("MURMUR_TEST_SET"))
}

func TestRunnerStatusReportsNotRunningWhenSocketUnavailable(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "not running\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerPressWithoutDaemonFails(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "press"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "no running murmur daemon")
}

func TestRunnerForwardsCommandsToDaemon(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	commands := make(chan string, 8)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "murmur.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		commands <- req.Command
		resp := ipc.Response{OK: true, State: "idle", Provider: "groq", Voice: "nova"}
		if req.Command != ipc.CommandStatus {
			resp.Message = req.Command + " handled"
		}
		return resp
	})
	defer shutdown()

	runner := Runner{}
	all := []string{"status", "press", "stop", "switch-provider", "switch-voice"}
	for _, cmd := range all {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		runner.Stdout = stdout
		runner.Stderr = stderr

		exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, cmd})
		require.Equal(t, 0, exitCode, cmd)
		require.Empty(t, stderr.String(), cmd)
		require.Contains(t, stdout.String(), "provider=groq voice=nova", cmd)
	}

	got := make([]string, 0, len(all))
	for range all {
		got = append(got, <-commands)
	}
	require.ElementsMatch(t, all, got)
}

func TestRunnerSurfacesDaemonRejection(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "murmur.sock"), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: false, State: "processing", Error: "controller busy"}
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "switch-voice"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "controller busy")
}

func TestTryForwardSuccessAndFailureResponses(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "murmur.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	serverCtx, cancelServer := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- ipc.Serve(serverCtx, listener, ipc.HandlerFunc(func(_ context.Context, req ipc.Request) ipc.Response {
			switch req.Command {
			case ipc.CommandStatus:
				return ipc.Response{OK: true, State: "recording"}
			default:
				return ipc.Response{OK: false, Error: "not recording"}
			}
		}))
	}()

	resp, handled, err := tryForward(context.Background(), socketPath, ipc.CommandStatus)
	require.True(t, handled)
	require.NoError(t, err)
	require.Equal(t, "recording", resp.State)

	_, handled, err = tryForward(context.Background(), socketPath, ipc.CommandStop)
	require.True(t, handled)
	require.ErrorContains(t, err, "not recording")

	cancelServer()
	require.NoError(t, <-serverDone)
}

func TestTryForwardDoesNotRemoveSocketPathOnForwardFailure(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "murmur.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	_, handled, err := tryForward(context.Background(), socketPath, ipc.CommandStatus)
	require.False(t, handled)
	require.NoError(t, err)

	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
}

func TestTryForwardTreatsReadFailuresAsHandledErrors(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "murmur.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, acceptErr := listener.Accept()
		if acceptErr == nil {
			_ = conn.Close()
		}
	}()

	_, handled, err := tryForward(context.Background(), socketPath, ipc.CommandStatus)
	require.True(t, handled)
	require.ErrorContains(t, err, "forward command \"status\":")

	<-done
	require.NoError(t, listener.Close())
}

func TestRunnerDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t, inertGPIO)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "config: loaded")
	require.Contains(t, stdout.String(), "OPENAI_API_KEY")
}

func TestRunnerDevicesCommandDispatches(t *testing.T) {
	paths := setupRunnerEnv(t, "")
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "devices"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestRunnerRunRefusesSecondDaemon(t *testing.T) {
	paths := setupRunnerEnv(t, inertGPIO)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "murmur.sock"), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: "idle"}
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "run"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), ipc.ErrAlreadyRunning.Error())
}

func TestRunnerRunReleasesSocketWhenHealthListenerFails(t *testing.T) {
	paths := setupRunnerEnv(t, `{
  "gpio": {"record_button": "", "stop_button": "", "provider_button": "", "voice_button": "", "active_led": "", "status_led": ""},
  "health": {"listen": "127.0.0.1:notaport"}
}`)

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "run"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")

	_, statErr := os.Stat(filepath.Join(paths.runtimeDir, "murmur.sock"))
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunnerRunServesControlSocketUntilCancelled(t *testing.T) {
	paths := setupRunnerEnv(t, inertGPIO)
	socketPath := filepath.Join(paths.runtimeDir, "murmur.sock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}
	exitCh := make(chan int, 1)
	go func() {
		exitCh <- runner.Execute(ctx, []string{"--config", paths.configPath, "run"})
	}()

	var resp ipc.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = ipc.Send(context.Background(), socketPath, ipc.Request{Command: ipc.CommandStatus}, time.Second)
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
	require.True(t, resp.OK)
	require.Equal(t, string(fsm.StateIdle), resp.State)
	require.Equal(t, "openai", resp.Provider)
	require.Equal(t, "alloy", resp.Voice)

	resp, err := ipc.Send(context.Background(), socketPath, ipc.Request{Command: ipc.CommandSwitchVoice}, time.Second)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "nova", resp.Voice)

	cancel()
	select {
	case code := <-exitCh:
		require.Equal(t, 0, code, stderr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not exit")
	}

	_, statErr := os.Stat(socketPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestBuildControllerWithUnavailableGPIO(t *testing.T) {
	cfg := config.Default()
	cfg.ScratchDir = t.TempDir()
	cfg.Providers = append(cfg.Providers, config.ProviderConfig{Name: "local", Endpoint: cfg.Providers[0].Endpoint})

	opened := make([]string, 0)
	open := func(name string) (gpio.Pin, error) {
		opened = append(opened, name)
		return nil, errors.New("no gpio chip")
	}

	controller, err := buildController(cfg, open, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"GPIO17", "GPIO25", "GPIO27", "GPIO22", "GPIO23", "GPIO24"}, opened)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- controller.Run(ctx) }()

	status, err := controller.SwitchProvider(context.Background())
	require.NoError(t, err)
	require.Equal(t, "local", status.Provider)
	require.Equal(t, fsm.StateIdle, status.State)

	cancel()
	require.NoError(t, <-runDone)

	entries, err := os.ReadDir(cfg.ScratchDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestBuildControllerRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.ScratchDir = t.TempDir()
	cfg.Playback.Backend = "alsa"

	_, err := buildController(cfg, func(string) (gpio.Pin, error) { return nil, errors.New("unused") }, nil)
	require.ErrorContains(t, err, "unsupported playback backend")

	entries, err := os.ReadDir(cfg.ScratchDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestEndpointResolvesAPIKeyAndTimeout(t *testing.T) {
	t.Setenv("MURMUR_TEST_KEY", " secret ")
	ep := endpoint(config.EndpointConfig{BaseURL: "http://localhost:8080/v1", Model: "m", APIKeyEnv: "MURMUR_TEST_KEY", TimeoutMS: 1500})
	require.Equal(t, "secret", ep.APIKey)
	require.Equal(t, 1500*time.Millisecond, ep.Timeout)
	require.Equal(t, "m", ep.Model)
}

func TestLogSessionResultWritesFailureAndSuccess(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	started := time.Now()
	finished := started.Add(1500 * time.Millisecond)

	logSessionResult(logger, session.Result{
		ID:         "abc",
		Outcome:    session.OutcomeAnswered,
		StopReason: audio.ReasonSilence,
		StartedAt:  started,
		FinishedAt: finished,
		Transcript: "hello",
		Reply:      "hi there",
		Timings:    pipeline.Timings{Inference: 20 * time.Millisecond},
	})

	require.Contains(t, logBuf.String(), "interaction complete")
	require.Contains(t, logBuf.String(), "\"transcript_length\":5")
	require.Contains(t, logBuf.String(), "\"inference_ms\":20")
	require.Contains(t, logBuf.String(), "\"duration_ms\":1500")

	logBuf.Reset()
	logSessionResult(logger, session.Result{
		ID:         "def",
		Outcome:    session.OutcomeFailed,
		StartedAt:  started,
		FinishedAt: finished,
		Err:        errors.New("boom"),
	})
	require.Contains(t, logBuf.String(), "interaction failed")
	require.Contains(t, logBuf.String(), "boom")
	require.Contains(t, logBuf.String(), "\"outcome\":\"failed\"")
}

type runnerPaths struct {
	configPath string
	runtimeDir string
}

func setupRunnerEnv(t *testing.T, content string) runnerPaths {
	t.Helper()

	xdgStateHome := t.TempDir()
	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	configPath := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(configPath, []byte(content+"\n"), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}
