package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ncert-tutor-go/internal/adaptive"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/pkg/llm"
	"ncert-tutor-go/pkg/log"
	"ncert-tutor-go/pkg/scraper"
)

// SynthesisRequest 是生成一个答案所需的全部输入。
type SynthesisRequest struct {
	Query         string
	Grade         int
	Bucket        adaptive.GradeBucket
	Tier          adaptive.Tier
	Subject       adaptive.Subject
	LearningStyle adaptive.LearningStyle
}

// Synthesis 是合成结果。
type Synthesis struct {
	Answer      string
	Sources     []string
	Suggestions []string
	Resources   []scraper.Link
	ModelUsed   string
	Relevance   float64
	UsedWeb     bool
	Elapsed     time.Duration
}

// Synthesizer 根据检索上下文与大模型生成答案。
// 失败时返回 ErrSynthesisTimeout 或 ErrSynthesisUnavailable，从不返回空答案。
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*Synthesis, error)
}

// WebFallback 在教材检索无结果或相关度不足时提供网页段落。
type WebFallback interface {
	Search(ctx context.Context, query string, grade int) ([]scraper.Passage, error)
}

// SynthesizerOptions 控制检索与生成参数。
type SynthesizerOptions struct {
	TopK         int
	MinRelevance float64
	Timeout      time.Duration
	MaxTokens    int
	Temperature  float64
}

type chatService struct {
	retriever Retriever
	web       WebFallback
	primary   llm.Provider
	fallback  llm.Provider
	opts      SynthesizerOptions
}

// NewChatService 创建 Synthesizer。web 与 fallback 可以为 nil。
func NewChatService(retriever Retriever, web WebFallback, primary, fallback llm.Provider, opts SynthesizerOptions) Synthesizer {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &chatService{retriever: retriever, web: web, primary: primary, fallback: fallback, opts: opts}
}

func (s *chatService) Synthesize(ctx context.Context, req SynthesisRequest) (*Synthesis, error) {
	start := time.Now()

	// 1. 检索教材上下文，相关度不足时补充网页段落
	passages, relevance, usedWeb := s.gatherContext(ctx, req)
	contextText := buildContextText(passages)

	// 2. 构建提示词
	llmReq := llm.Request{
		System: adaptive.BuildSystemPrompt(adaptive.PromptInput{
			Grade:         req.Grade,
			Tier:          req.Tier,
			Subject:       req.Subject,
			LearningStyle: req.LearningStyle,
		}),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: adaptive.BuildUserPrompt(req.Query, contextText, req.Grade)}},
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	}

	// 3. 主模型，失败后备用模型
	resp, err := s.generate(ctx, s.primary, llmReq)
	if err != nil && s.fallback != nil && ctx.Err() == nil {
		log.Warnf("[ChatService] 主模型 %s 失败，切换备用模型 %s: %v", s.primary.ModelID(), s.fallback.ModelID(), err)
		resp, err = s.generate(ctx, s.fallback, llmReq)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrSynthesisTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSynthesisUnavailable, err)
	}

	return &Synthesis{
		Answer:      resp.Text,
		Sources:     sourcesOf(passages),
		Suggestions: adaptive.SuggestNextSteps(req.Subject),
		Resources:   scraper.Recommendations(adaptive.Topic(req.Query), req.Grade),
		ModelUsed:   resp.Model,
		Relevance:   relevance,
		UsedWeb:     usedWeb,
		Elapsed:     time.Since(start),
	}, nil
}

// gatherContext 返回教材段落及其平均相关度。无结果或平均相关度低于阈值时追加网页段落。
func (s *chatService) gatherContext(ctx context.Context, req SynthesisRequest) ([]model.Passage, float64, bool) {
	passages, err := s.retriever.Retrieve(ctx, req.Query, req.Bucket, s.opts.TopK)
	if err != nil {
		log.Warnf("[ChatService] 教材检索失败: %v", err)
		passages = nil
	}
	relevance := meanRelevance(passages)
	if s.web == nil || (len(passages) > 0 && relevance >= s.opts.MinRelevance) {
		return passages, relevance, false
	}

	log.Infof("[ChatService] 教材相关度不足 (%d 条, %.2f)，尝试网页检索", len(passages), relevance)
	web, err := s.web.Search(ctx, req.Query, req.Grade)
	if err != nil {
		log.Warnf("[ChatService] 网页兜底检索失败: %v", err)
		return passages, relevance, false
	}
	for _, p := range web {
		passages = append(passages, model.Passage{Text: p.Text, Source: p.Source})
	}
	return passages, relevance, len(web) > 0
}

// generate 在单次超时内调用模型，空答案视为失败。
func (s *chatService) generate(ctx context.Context, p llm.Provider, req llm.Request) (*llm.Response, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	resp, err := p.Generate(cctx, req)
	if err != nil {
		return nil, err
	}
	resp.Text = strings.TrimSpace(resp.Text)
	if resp.Text == "" {
		return nil, &llm.ErrInvalidResponse{Content: "", Err: errors.New("empty answer")}
	}
	if resp.Model == "" {
		resp.Model = p.ModelID()
	}
	return resp, nil
}

// buildContextText 把检索结果拼成带编号与来源的上下文
func buildContextText(passages []model.Passage) string {
	if len(passages) == 0 {
		return ""
	}
	// 与 Processor 的 chunkSize 对齐，尽量不截断分块内容
	const maxSnippetRunes = 1000
	var b strings.Builder
	for i, p := range passages {
		snippet := p.Text
		if r := []rune(snippet); len(r) > maxSnippetRunes {
			snippet = string(r[:maxSnippetRunes]) + "…"
		}
		label := p.Source
		if label == "" {
			label = "unknown"
		}
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, label, snippet)
	}
	return b.String()
}

func sourcesOf(passages []model.Passage) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range passages {
		if p.Source == "" || seen[p.Source] {
			continue
		}
		seen[p.Source] = true
		out = append(out, p.Source)
	}
	return out
}
