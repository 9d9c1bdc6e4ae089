// Package backend talks to OpenAI-compatible speech-to-text, chat, and
// text-to-speech endpoints.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/rbright/murmur/internal/pipeline"
)

const defaultTimeout = 30 * time.Second

// Endpoint locates one OpenAI-compatible API and model.
type Endpoint struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// newClient builds a client with SDK retries disabled; a failed call surfaces
// to the caller as-is.
func newClient(ep Endpoint) openai.Client {
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts := []option.RequestOption{
		option.WithAPIKey(ep.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if base := strings.TrimSpace(ep.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	return openai.NewClient(opts...)
}

// Transcriber uploads WAV clips to audio/transcriptions.
type Transcriber struct {
	client openai.Client
	model  string
}

func NewTranscriber(ep Endpoint) *Transcriber {
	return &Transcriber{client: newClient(ep), model: ep.Model}
}

func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "speech.wav", "audio/wav"),
		Model: openai.AudioModel(t.model),
	}
	if language != "" {
		params.Language = openai.String(language)
	}

	res, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Chat is one inference provider behind chat/completions.
type Chat struct {
	client    openai.Client
	model     string
	maxTokens int
}

func NewChat(ep Endpoint, maxTokens int) *Chat {
	return &Chat{client: newClient(ep), model: ep.Model, maxTokens: maxTokens}
}

func (c *Chat) Complete(ctx context.Context, messages []pipeline.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: toChatMessages(messages),
		Model:    openai.ChatModel(c.model),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("no choices in completion")
	}
	return completion.Choices[0].Message.Content, nil
}

func toChatMessages(messages []pipeline.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case pipeline.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case pipeline.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// Speech renders MP3 through audio/speech.
type Speech struct {
	client openai.Client
	model  string
}

func NewSpeech(ep Endpoint) *Speech {
	return &Speech{client: newClient(ep), model: ep.Model}
}

// Synthesize returns MP3 bytes. The endpoint infers language from the text and
// receives the voice name unchecked.
func (s *Speech) Synthesize(ctx context.Context, text string, voice string, _ string) ([]byte, error) {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}, option.WithJSONSet("voice", voice))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech body: %w", err)
	}
	return data, nil
}
