package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.ShutdownGraceMS <= 0 {
		return nil, fmt.Errorf("shutdown_grace_ms must be > 0")
	}

	switch strings.ToLower(cfg.Audio.Backend) {
	case "pulse", "portaudio":
	default:
		return nil, fmt.Errorf("audio.backend must be one of: pulse, portaudio")
	}
	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		return nil, fmt.Errorf("audio.channels must be 1 or 2")
	}
	if cfg.Audio.SilenceThreshold <= 0 || cfg.Audio.SilenceThreshold >= 1 {
		return nil, fmt.Errorf("audio.silence_threshold must be between 0 and 1")
	}
	if cfg.Audio.SilenceMS < 0 {
		return nil, fmt.Errorf("audio.silence_ms must be >= 0")
	}
	if cfg.Audio.MaxDurationMS <= 0 {
		return nil, fmt.Errorf("audio.max_duration_ms must be > 0")
	}
	if cfg.Audio.SilenceMS == 0 {
		warnings = append(warnings, Warning{Message: "audio.silence_ms=0 disables silence detection; recordings end on stop or timeout"})
	}

	switch strings.ToLower(cfg.Playback.Backend) {
	case "pulse", "speaker":
	case "command":
		if len(cfg.Playback.Command.Argv) == 0 {
			return nil, fmt.Errorf("playback.command must not be empty when playback.backend=command")
		}
	default:
		return nil, fmt.Errorf("playback.backend must be one of: pulse, speaker, command")
	}
	if cfg.Playback.SampleRate <= 0 {
		return nil, fmt.Errorf("playback.sample_rate must be > 0")
	}

	if cfg.GPIO.DebounceMS < 0 {
		return nil, fmt.Errorf("gpio.debounce_ms must be >= 0")
	}
	if cfg.GPIO.RecordButton == "" {
		warnings = append(warnings, Warning{Message: "gpio.record_button is empty; interactions can only start over the control socket"})
	}
	if cfg.Indicator.CueTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.cue_timeout_ms must be >= 0")
	}

	if err := validateEndpoint("transcription", cfg.Transcription); err != nil {
		return nil, err
	}

	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("providers must contain at least one entry")
	}
	seen := make(map[string]struct{}, len(cfg.Providers))
	for i, p := range cfg.Providers {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("providers[%d].name must not be empty", i)
		}
		key := strings.ToLower(p.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("providers[%d].name %q is duplicated", i, p.Name)
		}
		seen[key] = struct{}{}
		if err := validateEndpoint(fmt.Sprintf("providers[%d]", i), p.Endpoint); err != nil {
			return nil, err
		}
		if p.MaxTokens < 0 {
			return nil, fmt.Errorf("providers[%d].max_tokens must be >= 0", i)
		}
	}

	if err := validateEndpoint("synthesis", cfg.Synthesis.Endpoint); err != nil {
		return nil, err
	}
	if len(cfg.Synthesis.Voices) == 0 {
		return nil, fmt.Errorf("synthesis.voices must contain at least one voice")
	}

	limit := cfg.Conversation.HistoryLimit
	if limit < 2 || limit%2 != 0 {
		return nil, fmt.Errorf("conversation.history_limit must be an even number >= 2")
	}
	if strings.TrimSpace(cfg.Conversation.Apology) == "" {
		return nil, fmt.Errorf("conversation.apology must not be empty")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}

func validateEndpoint(prefix string, ep EndpointConfig) error {
	if strings.TrimSpace(ep.BaseURL) == "" {
		return fmt.Errorf("%s.base_url must not be empty", prefix)
	}
	if strings.TrimSpace(ep.Model) == "" {
		return fmt.Errorf("%s.model must not be empty", prefix)
	}
	if ep.TimeoutMS < 0 {
		return fmt.Errorf("%s.timeout_ms must be >= 0", prefix)
	}
	return nil
}
