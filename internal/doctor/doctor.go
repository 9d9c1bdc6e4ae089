// Package doctor runs readiness diagnostics for config, credentials, GPIO, audio, and health.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/gpio"
	"github.com/rbright/murmur/internal/health"
)

const healthProbeTimeout = time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded, envPath string) Report {
	return run(ctx, cfg, envPath, gpio.HostOpener())
}

func run(ctx context.Context, cfg config.Loaded, envPath string, open gpio.Opener) Report {
	checks := []Check{checkConfig(cfg), checkEnvFile(envPath)}
	checks = append(checks, checkAPIKeys(cfg.Config)...)
	checks = append(checks, checkGPIO(cfg.Config.GPIO, open)...)

	if strings.EqualFold(cfg.Config.Audio.Backend, audio.BackendPulse) {
		checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	}
	if len(cfg.Config.Playback.Command.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Config.Playback.Command.Argv, "playback.command"))
	}
	if cfg.Config.Health.Listen != "" {
		checks = append(checks, checkHealth(ctx, cfg.Config.Health.Listen))
	}

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	if !cfg.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", cfg.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", cfg.Path)}
}

// checkEnvFile reports whether API keys come from a dotenv file. A missing
// file is fine when the keys are already exported.
func checkEnvFile(path string) Check {
	if path == "" {
		return Check{Name: "env_file", Pass: true, Message: "not configured"}
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Check{Name: "env_file", Pass: true, Message: fmt.Sprintf("%q not found; using process environment", path)}
	case err != nil:
		return Check{Name: "env_file", Pass: false, Message: err.Error()}
	case info.IsDir():
		return Check{Name: "env_file", Pass: false, Message: fmt.Sprintf("%q is a directory", path)}
	}
	return Check{Name: "env_file", Pass: true, Message: fmt.Sprintf("found %q", path)}
}

// checkAPIKeys verifies every referenced api_key_env once, in config order.
func checkAPIKeys(cfg config.Config) []Check {
	type user struct {
		label string
		env   string
	}
	users := []user{{"transcription", cfg.Transcription.APIKeyEnv}}
	for _, p := range cfg.Providers {
		users = append(users, user{"provider " + p.Name, p.Endpoint.APIKeyEnv})
	}
	users = append(users, user{"synthesis", cfg.Synthesis.Endpoint.APIKeyEnv})

	order := make([]string, 0, len(users))
	labels := make(map[string][]string, len(users))
	for _, u := range users {
		if u.env == "" {
			continue
		}
		if _, ok := labels[u.env]; !ok {
			order = append(order, u.env)
		}
		labels[u.env] = append(labels[u.env], u.label)
	}

	checks := make([]Check, 0, len(order))
	for _, name := range order {
		usedBy := strings.Join(labels[name], ", ")
		checks = append(checks, checkEnv(name, func(v string) bool {
			return strings.TrimSpace(v) != ""
		}, "set (used by "+usedBy+")", "empty; required by "+usedBy))
	}
	return checks
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkGPIO opens each configured line once and releases it again.
func checkGPIO(cfg config.GPIOConfig, open gpio.Opener) []Check {
	lines := []struct {
		key  string
		line string
	}{
		{"record_button", cfg.RecordButton},
		{"stop_button", cfg.StopButton},
		{"provider_button", cfg.ProviderButton},
		{"voice_button", cfg.VoiceButton},
		{"active_led", cfg.ActiveLED},
		{"status_led", cfg.StatusLED},
	}

	checks := make([]Check, 0, len(lines))
	for _, l := range lines {
		if l.line == "" {
			continue
		}
		name := "gpio." + l.key
		pin, err := open(l.line)
		if err != nil {
			checks = append(checks, Check{Name: name, Pass: false, Message: err.Error()})
			continue
		}
		_ = pin.Halt()
		checks = append(checks, Check{Name: name, Pass: true, Message: fmt.Sprintf("line %s available", l.line)})
	}
	return checks
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkHealth validates the listen address and reports a running daemon when
// one answers there.
func checkHealth(ctx context.Context, addr string) Check {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return Check{Name: "health", Pass: false, Message: fmt.Sprintf("invalid listen address %q: %v", addr, err)}
	}
	status, err := health.Probe(ctx, addr, healthProbeTimeout)
	if err != nil {
		return Check{Name: "health", Pass: true, Message: fmt.Sprintf("no daemon answering on %s", addr)}
	}
	return Check{Name: "health", Pass: true, Message: fmt.Sprintf("daemon on %s reports %s", addr, status)}
}
