package session

import "github.com/rbright/murmur/internal/pipeline"

// Selection cycles through the configured providers and voices.
type Selection struct {
	providers []pipeline.Provider
	voices    []string
	provider  int
	voice     int
}

func NewSelection(providers []pipeline.Provider, voices []string) Selection {
	return Selection{providers: providers, voices: voices}
}

// Provider returns the active provider, or the zero Provider when none exist.
func (s *Selection) Provider() pipeline.Provider {
	if len(s.providers) == 0 {
		return pipeline.Provider{}
	}
	return s.providers[s.provider]
}

func (s *Selection) Voice() string {
	if len(s.voices) == 0 {
		return ""
	}
	return s.voices[s.voice]
}

// NextProvider advances to the next provider, wrapping at the end.
func (s *Selection) NextProvider() pipeline.Provider {
	if len(s.providers) > 0 {
		s.provider = (s.provider + 1) % len(s.providers)
	}
	return s.Provider()
}

// NextVoice advances to the next voice, wrapping at the end.
func (s *Selection) NextVoice() string {
	if len(s.voices) > 0 {
		s.voice = (s.voice + 1) % len(s.voices)
	}
	return s.Voice()
}
