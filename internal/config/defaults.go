package config

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultAPIKeyEnv     = "OPENAI_API_KEY"

	// DefaultApology is spoken when an interaction fails.
	DefaultApology = "Sorry, something went wrong. Please try again."
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		ShutdownGraceMS: 3000,
		Audio: AudioConfig{
			Backend:          "pulse",
			Input:            "default",
			Fallback:         "default",
			SampleRate:       16000,
			Channels:         1,
			SilenceThreshold: 0.02,
			SilenceMS:        1500,
			MaxDurationMS:    15000,
		},
		Playback: PlaybackConfig{
			Backend:    "pulse",
			SampleRate: 24000,
		},
		GPIO: GPIOConfig{
			RecordButton:    "GPIO17",
			StopButton:      "GPIO25",
			ProviderButton:  "GPIO27",
			VoiceButton:     "GPIO22",
			ActiveLED:       "GPIO23",
			StatusLED:       "GPIO24",
			ButtonActiveLow: true,
			DebounceMS:      200,
		},
		Indicator: IndicatorConfig{
			SoundEnable:  true,
			CueTimeoutMS: 3000,
		},
		Transcription: EndpointConfig{
			BaseURL:   defaultOpenAIBaseURL,
			Model:     "whisper-1",
			APIKeyEnv: defaultAPIKeyEnv,
			TimeoutMS: 30000,
		},
		Providers: []ProviderConfig{{
			Name: "openai",
			Endpoint: EndpointConfig{
				BaseURL:   defaultOpenAIBaseURL,
				Model:     "gpt-4o-mini",
				APIKeyEnv: defaultAPIKeyEnv,
				TimeoutMS: 30000,
			},
			MaxTokens: 300,
		}},
		Synthesis: SynthesisConfig{
			Endpoint: EndpointConfig{
				BaseURL:   defaultOpenAIBaseURL,
				Model:     "tts-1",
				APIKeyEnv: defaultAPIKeyEnv,
				TimeoutMS: 30000,
			},
			Voices: []string{"alloy", "nova", "echo"},
		},
		Conversation: ConversationConfig{
			SystemPrompt: "You are a helpful voice assistant. Answer in one or two short spoken sentences without markdown.",
			HistoryLimit: 10,
			Apology:      DefaultApology,
			Language:     "en",
		},
		Log: LogConfig{Level: "info"},
	}
}
