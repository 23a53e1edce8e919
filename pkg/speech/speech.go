// Package speech wraps speech-to-text and text-to-speech behind an
// OpenAI-compatible audio API.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"ncert-tutor-go/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrEmptyAudio = errors.New("audio is empty")
	ErrEmptyText  = errors.New("text is empty")
)

// Client transcribes and synthesizes speech.
type Client interface {
	// Transcribe returns the spoken text; filename only hints the format.
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
	// Speak returns MP3 bytes for text, truncated to the configured limit.
	Speak(ctx context.Context, text string) ([]byte, error)
}

type openAIClient struct {
	client   *openai.Client
	cfg      config.SpeechConfig
	maxChars int
}

// NewClient builds a speech client.
func NewClient(cfg config.SpeechConfig) Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 500
	}
	return &openAIClient{client: openai.NewClientWithConfig(oc), cfg: cfg, maxChars: maxChars}
}

func (c *openAIClient) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if audio == nil {
		return "", ErrEmptyAudio
	}
	if filename == "" {
		filename = "audio.wav"
	}
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.TranscriptionModel,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (c *openAIClient) Speak(ctx context.Context, text string) ([]byte, error) {
	text = Truncate(text, c.maxChars)
	if text == "" {
		return nil, ErrEmptyText
	}
	rc, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.cfg.TTSModel),
		Input:          text,
		Voice:          openai.SpeechVoice(c.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer rc.Close()

	audio, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	return audio, nil
}

// Truncate trims text to at most limit runes, cutting at the last word
// boundary when one exists.
func Truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	cut := string(r[:limit])
	if i := strings.LastIndexAny(cut, " \n\t"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
