// Package config resolves, parses, validates, and defaults murmur configuration.
package config

// Config is the fully materialized runtime configuration used by murmur.
type Config struct {
	// EnvFile is a dotenv file holding provider API keys.
	EnvFile         string
	ScratchDir      string
	ShutdownGraceMS int
	Audio           AudioConfig
	Playback        PlaybackConfig
	GPIO            GPIOConfig
	Indicator       IndicatorConfig
	Transcription   EndpointConfig
	Providers       []ProviderConfig
	Synthesis       SynthesisConfig
	Conversation    ConversationConfig
	Health          HealthConfig
	Log             LogConfig
}

// AudioConfig controls the capture source and recording policy.
type AudioConfig struct {
	Backend          string
	Input            string
	Fallback         string
	SampleRate       int
	Channels         int
	SilenceThreshold float64
	SilenceMS        int
	MaxDurationMS    int
}

// PlaybackConfig selects how replies and cues reach the speaker.
type PlaybackConfig struct {
	Backend    string
	SampleRate int
	Command    CommandConfig
}

// GPIOConfig names the button and LED lines. Empty names leave a port inert.
type GPIOConfig struct {
	RecordButton    string
	// StopButton ends a recording early. A record press while busy is ignored,
	// so with this line empty a recording ends only on silence, timeout, or the
	// stop control command.
	StopButton      string
	ProviderButton  string
	VoiceButton     string
	ActiveLED       string
	StatusLED       string
	ButtonActiveLow bool
	LEDActiveLow    bool
	DebounceMS      int
}

// IndicatorConfig controls audio cue behavior.
type IndicatorConfig struct {
	SoundEnable       bool
	SoundStartFile    string
	SoundStopFile     string
	SoundCompleteFile string
	SoundErrorFile    string
	CueTimeoutMS      int
}

// EndpointConfig locates one OpenAI-compatible API.
type EndpointConfig struct {
	BaseURL   string
	Model     string
	APIKeyEnv string
	TimeoutMS int
}

// ProviderConfig is one selectable inference provider.
type ProviderConfig struct {
	Name      string
	Endpoint  EndpointConfig
	MaxTokens int
}

// SynthesisConfig controls text-to-speech and the voice cycle.
type SynthesisConfig struct {
	Endpoint EndpointConfig
	Voices   []string
}

// ConversationConfig controls prompts and memory.
type ConversationConfig struct {
	SystemPrompt string
	HistoryLimit int
	Apology      string
	Language     string
	SkipUnvoiced bool
}

type HealthConfig struct {
	Listen string
}

type LogConfig struct {
	Level   string
	Console bool
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
