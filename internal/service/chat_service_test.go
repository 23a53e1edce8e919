package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ncert-tutor-go/internal/adaptive"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/pkg/llm"
	"ncert-tutor-go/pkg/scraper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWeb struct {
	mu       sync.Mutex
	passages []scraper.Passage
	err      error
	calls    int
}

func (w *stubWeb) Search(_ context.Context, _ string, _ int) ([]scraper.Passage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	return w.passages, w.err
}

func TestSynthesizeWebFallback(t *testing.T) {
	webPage := []scraper.Passage{{Text: "Evaporation turns water into vapour.", Source: "byjus.com", URL: "https://byjus.com/water-cycle"}}

	tests := []struct {
		name          string
		passages      []model.Passage
		retrieveErr   error
		web           []scraper.Passage
		webErr        error
		wantWebCalls  int
		wantUsedWeb   bool
		wantRelevance float64
		wantSources   []string
	}{
		{
			name:         "no passages",
			web:          webPage,
			wantWebCalls: 1,
			wantUsedWeb:  true,
			wantSources:  []string{"byjus.com"},
		},
		{
			name:         "retrieval error",
			retrieveErr:  errors.New("es down"),
			web:          webPage,
			wantWebCalls: 1,
			wantUsedWeb:  true,
			wantSources:  []string{"byjus.com"},
		},
		{
			name: "low mean relevance",
			passages: []model.Passage{
				{Text: "Clouds form when vapour cools.", Source: "a.pdf", Relevance: 0.35},
				{Text: "Soil types.", Source: "b.pdf", Relevance: 0.2},
				{Text: "Rocks.", Source: "b.pdf", Relevance: 0.2},
			},
			web:           webPage,
			wantWebCalls:  1,
			wantUsedWeb:   true,
			wantRelevance: 0.25,
			wantSources:   []string{"a.pdf", "b.pdf", "byjus.com"},
		},
		{
			name: "high mean relevance",
			passages: []model.Passage{
				{Text: "The water cycle has four stages.", Source: "a.pdf", Relevance: 0.9},
				{Text: "Rocks.", Source: "b.pdf", Relevance: 0.2},
			},
			web:           webPage,
			wantRelevance: 0.55,
			wantSources:   []string{"a.pdf", "b.pdf"},
		},
		{
			name: "web error is swallowed",
			passages: []model.Passage{
				{Text: "Clouds form when vapour cools.", Source: "a.pdf", Relevance: 0.1},
			},
			webErr:        errors.New("timeout"),
			wantWebCalls:  1,
			wantRelevance: 0.1,
			wantSources:   []string{"a.pdf"},
		},
		{
			name:         "web finds nothing",
			wantWebCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			web := &stubWeb{passages: tt.web, err: tt.webErr}
			primary := llm.NewMockProvider().WithModel("primary-model").Always(llm.MockResponse{Text: "Water evaporates and falls as rain."})
			synth := NewChatService(&stubRetriever{passages: tt.passages, err: tt.retrieveErr}, web, primary, nil,
				SynthesizerOptions{MinRelevance: 0.3, Timeout: 5 * time.Second})

			syn, err := synth.Synthesize(context.Background(), SynthesisRequest{
				Query:   "Explain the water cycle",
				Grade:   7,
				Bucket:  adaptive.BucketMiddle,
				Tier:    adaptive.TierStandard,
				Subject: adaptive.SubjectScience,
			})
			require.NoError(t, err)
			assert.Equal(t, "Water evaporates and falls as rain.", syn.Answer)
			assert.Equal(t, tt.wantWebCalls, web.calls)
			assert.Equal(t, tt.wantUsedWeb, syn.UsedWeb)
			assert.InDelta(t, tt.wantRelevance, syn.Relevance, 1e-9)
			assert.Equal(t, tt.wantSources, syn.Sources)

			require.Len(t, primary.Calls, 1)
			prompt := primary.Calls[0].Messages[0].Content
			if tt.wantUsedWeb {
				assert.Contains(t, prompt, "Evaporation turns water into vapour.")
			} else {
				assert.NotContains(t, prompt, "Evaporation turns water into vapour.")
			}
		})
	}
}

func TestSynthesizeWithoutWebFallbackKeepsWeakPassages(t *testing.T) {
	primary := llm.NewMockProvider().WithModel("primary-model").Always(llm.MockResponse{Text: "An answer."})
	retriever := &stubRetriever{passages: []model.Passage{{Text: "weak match", Source: "x.pdf", Relevance: 0.1}}}
	synth := NewChatService(retriever, nil, primary, nil, SynthesizerOptions{MinRelevance: 0.3, Timeout: 5 * time.Second})

	syn, err := synth.Synthesize(context.Background(), SynthesisRequest{Query: "What is a delta?", Grade: 6, Bucket: adaptive.BucketPrimary})
	require.NoError(t, err)
	assert.False(t, syn.UsedWeb)
	assert.Equal(t, []string{"x.pdf"}, syn.Sources)
	assert.InDelta(t, 0.1, syn.Relevance, 1e-9)
}
