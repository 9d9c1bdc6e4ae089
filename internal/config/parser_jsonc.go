package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	EnvFile         *string `json:"env_file"`
	ScratchDir      *string `json:"scratch_dir"`
	ShutdownGraceMS *int    `json:"shutdown_grace_ms"`

	Audio         *jsoncAudio        `json:"audio"`
	Playback      *jsoncPlayback     `json:"playback"`
	GPIO          *jsoncGPIO         `json:"gpio"`
	Indicator     *jsoncIndicator    `json:"indicator"`
	Transcription *jsoncEndpoint     `json:"transcription"`
	Providers     []jsoncProvider    `json:"providers"`
	Synthesis     *jsoncSynthesis    `json:"synthesis"`
	Conversation  *jsoncConversation `json:"conversation"`
	Health        *jsoncHealth       `json:"health"`
	Log           *jsoncLog          `json:"log"`
}

type jsoncAudio struct {
	Backend          *string  `json:"backend"`
	Input            *string  `json:"input"`
	Fallback         *string  `json:"fallback"`
	SampleRate       *int     `json:"sample_rate"`
	Channels         *int     `json:"channels"`
	SilenceThreshold *float64 `json:"silence_threshold"`
	SilenceMS        *int     `json:"silence_ms"`
	MaxDurationMS    *int     `json:"max_duration_ms"`
}

type jsoncPlayback struct {
	Backend    *string `json:"backend"`
	SampleRate *int    `json:"sample_rate"`
	Command    *string `json:"command"`
}

type jsoncGPIO struct {
	RecordButton    *string `json:"record_button"`
	StopButton      *string `json:"stop_button"`
	ProviderButton  *string `json:"provider_button"`
	VoiceButton     *string `json:"voice_button"`
	ActiveLED       *string `json:"active_led"`
	StatusLED       *string `json:"status_led"`
	ButtonActiveLow *bool   `json:"button_active_low"`
	LEDActiveLow    *bool   `json:"led_active_low"`
	DebounceMS      *int    `json:"debounce_ms"`
}

type jsoncIndicator struct {
	SoundEnable       *bool   `json:"sound_enable"`
	SoundStartFile    *string `json:"sound_start_file"`
	SoundStopFile     *string `json:"sound_stop_file"`
	SoundCompleteFile *string `json:"sound_complete_file"`
	SoundErrorFile    *string `json:"sound_error_file"`
	CueTimeoutMS      *int    `json:"cue_timeout_ms"`
}

type jsoncEndpoint struct {
	BaseURL   *string `json:"base_url"`
	Model     *string `json:"model"`
	APIKeyEnv *string `json:"api_key_env"`
	TimeoutMS *int    `json:"timeout_ms"`
}

type jsoncProvider struct {
	Name *string `json:"name"`
	jsoncEndpoint
	MaxTokens *int `json:"max_tokens"`
}

type jsoncSynthesis struct {
	jsoncEndpoint
	Voices *jsoncStringList `json:"voices"`
}

type jsoncConversation struct {
	SystemPrompt *string `json:"system_prompt"`
	HistoryLimit *int    `json:"history_limit"`
	Apology      *string `json:"apology"`
	Language     *string `json:"language"`
	SkipUnvoiced *bool   `json:"skip_unvoiced"`
}

type jsoncHealth struct {
	Listen *string `json:"listen"`
}

type jsoncLog struct {
	Level   *string `json:"level"`
	Console *bool   `json:"console"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	setString(&cfg.EnvFile, payload.EnvFile)
	setString(&cfg.ScratchDir, payload.ScratchDir)
	setInt(&cfg.ShutdownGraceMS, payload.ShutdownGraceMS)

	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Backend, a.Backend)
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
		setInt(&cfg.Audio.SampleRate, a.SampleRate)
		setInt(&cfg.Audio.Channels, a.Channels)
		if a.SilenceThreshold != nil {
			cfg.Audio.SilenceThreshold = *a.SilenceThreshold
		}
		setInt(&cfg.Audio.SilenceMS, a.SilenceMS)
		setInt(&cfg.Audio.MaxDurationMS, a.MaxDurationMS)
	}

	if p := payload.Playback; p != nil {
		setString(&cfg.Playback.Backend, p.Backend)
		setInt(&cfg.Playback.SampleRate, p.SampleRate)
		if p.Command != nil {
			cmd, err := ParseCommand(*p.Command)
			if err != nil {
				return nil, fmt.Errorf("invalid playback.command: %w", err)
			}
			cfg.Playback.Command = cmd
		}
	}

	if g := payload.GPIO; g != nil {
		setString(&cfg.GPIO.RecordButton, g.RecordButton)
		setString(&cfg.GPIO.StopButton, g.StopButton)
		setString(&cfg.GPIO.ProviderButton, g.ProviderButton)
		setString(&cfg.GPIO.VoiceButton, g.VoiceButton)
		setString(&cfg.GPIO.ActiveLED, g.ActiveLED)
		setString(&cfg.GPIO.StatusLED, g.StatusLED)
		setBool(&cfg.GPIO.ButtonActiveLow, g.ButtonActiveLow)
		setBool(&cfg.GPIO.LEDActiveLow, g.LEDActiveLow)
		setInt(&cfg.GPIO.DebounceMS, g.DebounceMS)
	}

	if ind := payload.Indicator; ind != nil {
		setBool(&cfg.Indicator.SoundEnable, ind.SoundEnable)
		setString(&cfg.Indicator.SoundStartFile, ind.SoundStartFile)
		setString(&cfg.Indicator.SoundStopFile, ind.SoundStopFile)
		setString(&cfg.Indicator.SoundCompleteFile, ind.SoundCompleteFile)
		setString(&cfg.Indicator.SoundErrorFile, ind.SoundErrorFile)
		setInt(&cfg.Indicator.CueTimeoutMS, ind.CueTimeoutMS)
	}

	if payload.Transcription != nil {
		payload.Transcription.applyTo(&cfg.Transcription)
	}

	if payload.Providers != nil {
		providers := make([]ProviderConfig, 0, len(payload.Providers))
		for i, p := range payload.Providers {
			// unset endpoint fields inherit the built-in default provider
			entry := Default().Providers[0]
			entry.Name = ""
			setString(&entry.Name, p.Name)
			p.jsoncEndpoint.applyTo(&entry.Endpoint)
			setInt(&entry.MaxTokens, p.MaxTokens)
			if entry.Name == "" {
				return nil, fmt.Errorf("providers[%d].name must not be empty", i)
			}
			providers = append(providers, entry)
		}
		cfg.Providers = providers
	}

	if s := payload.Synthesis; s != nil {
		s.jsoncEndpoint.applyTo(&cfg.Synthesis.Endpoint)
		if s.Voices != nil {
			voices := make([]string, 0, len(*s.Voices))
			for _, v := range *s.Voices {
				if v = strings.TrimSpace(v); v != "" {
					voices = append(voices, v)
				}
			}
			cfg.Synthesis.Voices = voices
		}
	}

	if c := payload.Conversation; c != nil {
		if c.SystemPrompt != nil {
			cfg.Conversation.SystemPrompt = *c.SystemPrompt
		}
		setInt(&cfg.Conversation.HistoryLimit, c.HistoryLimit)
		setString(&cfg.Conversation.Apology, c.Apology)
		setString(&cfg.Conversation.Language, c.Language)
		setBool(&cfg.Conversation.SkipUnvoiced, c.SkipUnvoiced)
	}

	if payload.Health != nil {
		setString(&cfg.Health.Listen, payload.Health.Listen)
	}

	if l := payload.Log; l != nil {
		if l.Level != nil {
			cfg.Log.Level = strings.ToLower(strings.TrimSpace(*l.Level))
		}
		setBool(&cfg.Log.Console, l.Console)
	}

	return warnings, nil
}

func (e jsoncEndpoint) applyTo(dst *EndpointConfig) {
	setString(&dst.BaseURL, e.BaseURL)
	setString(&dst.Model, e.Model)
	setString(&dst.APIKeyEnv, e.APIKeyEnv)
	setInt(&dst.TimeoutMS, e.TimeoutMS)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
