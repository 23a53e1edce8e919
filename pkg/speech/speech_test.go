package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ncert-tutor-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "question.webm", hdr.Filename)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "  What is a fraction?  "})
	}))
	defer srv.Close()

	c := NewClient(config.SpeechConfig{APIKey: "k", BaseURL: srv.URL + "/v1", TranscriptionModel: "whisper-1"})
	text, err := c.Transcribe(context.Background(), "question.webm", strings.NewReader("RIFF...."))
	require.NoError(t, err)
	assert.Equal(t, "What is a fraction?", text)
}

func TestSpeak(t *testing.T) {
	var input string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		input, _ = body["input"].(string)
		assert.Equal(t, "alloy", body["voice"])
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "ID3-mp3-bytes")
	}))
	defer srv.Close()

	c := NewClient(config.SpeechConfig{APIKey: "k", BaseURL: srv.URL + "/v1", TTSModel: "tts-1", Voice: "alloy", MaxChars: 12})
	audio, err := c.Speak(context.Background(), "plants make food from sunlight")
	require.NoError(t, err)
	assert.Equal(t, "ID3-mp3-bytes", string(audio))
	assert.Equal(t, "plants make", input)

	_, err = c.Speak(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate(" short ", 10))
	assert.Equal(t, "one two", Truncate("one two three", 9))
	assert.Equal(t, "abcd", Truncate("abcdefgh", 4))
}
