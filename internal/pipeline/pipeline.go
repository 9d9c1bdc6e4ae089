// Package pipeline turns captured speech into a spoken reply:
// transcribe, then infer, then synthesize.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Role is a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// Transcriber converts WAV audio into text. An empty string is a valid result.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// ChatModel answers an ordered message list.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Synthesizer renders text as encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice string, language string) ([]byte, error)
}

// Provider is one selectable inference backend.
type Provider struct {
	Name  string
	Model ChatModel
}

// Outcome classifies a completed run.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeNoSpeech Outcome = "no_speech"
)

// Request is the input for one run.
type Request struct {
	Audio    []byte
	Language string
	History  []Message
	Provider Provider
	Voice    string
}

// Result is the output of a run that did not fail.
type Result struct {
	Outcome    Outcome
	Transcript string
	Reply      string
	Speech     []byte
	Timings    Timings
}

// Timings records per-stage latency.
type Timings struct {
	Transcription time.Duration
	Inference     time.Duration
	Synthesis     time.Duration
}

// Pipeline holds the fixed collaborators. The active provider is chosen per call.
type Pipeline struct {
	transcriber  Transcriber
	synthesizer  Synthesizer
	systemPrompt string
	logger       *slog.Logger
}

// New builds a pipeline.
func New(transcriber Transcriber, synthesizer Synthesizer, systemPrompt string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		transcriber:  transcriber,
		synthesizer:  synthesizer,
		systemPrompt: strings.TrimSpace(systemPrompt),
		logger:       logger,
	}
}

// Transcribe runs speech-to-text.
func (p *Pipeline) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	text, err := p.transcriber.Transcribe(ctx, audio, language)
	if err != nil {
		return "", &StageError{Stage: StageTranscription, Err: err}
	}
	return strings.TrimSpace(text), nil
}

// Infer asks provider for a reply. A failure is never retried on another provider.
func (p *Pipeline) Infer(ctx context.Context, text string, history []Message, provider Provider) (string, error) {
	if provider.Model == nil {
		return "", &StageError{Stage: StageInference, Provider: provider.Name, Err: errors.New("provider not configured")}
	}

	reply, err := provider.Model.Complete(ctx, p.Messages(text, history))
	if err != nil {
		return "", &StageError{Stage: StageInference, Provider: provider.Name, Err: err}
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &StageError{Stage: StageInference, Provider: provider.Name, Err: errors.New("empty reply")}
	}
	return reply, nil
}

// Synthesize renders text with voice.
func (p *Pipeline) Synthesize(ctx context.Context, text string, voice string, language string) ([]byte, error) {
	audio, err := p.synthesizer.Synthesize(ctx, text, voice, language)
	if err != nil {
		return nil, &StageError{Stage: StageSynthesis, Err: err}
	}
	if len(audio) == 0 {
		return nil, &StageError{Stage: StageSynthesis, Err: errors.New("empty audio")}
	}
	return audio, nil
}

// Messages builds the prompt: system prompt, then history, then the new user turn.
func (p *Pipeline) Messages(text string, history []Message) []Message {
	out := make([]Message, 0, len(history)+2)
	if p.systemPrompt != "" {
		out = append(out, Message{Role: RoleSystem, Content: p.systemPrompt})
	}
	out = append(out, history...)
	return append(out, Message{Role: RoleUser, Content: text})
}

// Run executes every stage in order. An empty transcript ends the run with
// OutcomeNoSpeech and no error.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	var result Result
	if len(req.Audio) == 0 {
		result.Outcome = OutcomeNoSpeech
		return result, nil
	}

	started := time.Now()
	transcript, err := p.Transcribe(ctx, req.Audio, req.Language)
	result.Timings.Transcription = time.Since(started)
	if err != nil {
		return result, err
	}
	if transcript == "" {
		result.Outcome = OutcomeNoSpeech
		return result, nil
	}
	result.Transcript = transcript

	started = time.Now()
	reply, err := p.Infer(ctx, transcript, req.History, req.Provider)
	result.Timings.Inference = time.Since(started)
	if err != nil {
		return result, err
	}
	result.Reply = reply

	started = time.Now()
	speech, err := p.Synthesize(ctx, reply, req.Voice, req.Language)
	result.Timings.Synthesis = time.Since(started)
	if err != nil {
		return result, err
	}
	result.Speech = speech
	result.Outcome = OutcomeAnswered

	p.logger.Debug("pipeline run complete",
		"provider", req.Provider.Name,
		"voice", req.Voice,
		"transcript_chars", len(transcript),
		"reply_chars", len(reply),
		"speech_bytes", len(speech),
	)
	return result, nil
}
