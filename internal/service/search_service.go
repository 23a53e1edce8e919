package service

import (
	"context"
	"fmt"
	"strings"

	"ncert-tutor-go/internal/adaptive"
	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/pkg/embedding"
	"ncert-tutor-go/pkg/es"
	"ncert-tutor-go/pkg/log"
)

// Retriever 按年级段检索教材段落，返回按相关度降序的结果。
type Retriever interface {
	Retrieve(ctx context.Context, query string, bucket adaptive.GradeBucket, k int) ([]model.Passage, error)
}

// PassageSearcher 是 es.PassageIndex 上检索用到的部分。
type PassageSearcher interface {
	KNN(ctx context.Context, vector []float32, k int, gradeBucket string) ([]es.Hit, error)
	Match(ctx context.Context, text string, k int, gradeBucket string) ([]es.Hit, error)
}

type searchService struct {
	embeddingClient embedding.Client
	index           PassageSearcher
}

// NewSearchService 创建基于 Elasticsearch 的 Retriever。
func NewSearchService(embeddingClient embedding.Client, index PassageSearcher) Retriever {
	return &searchService{embeddingClient: embeddingClient, index: index}
}

// Retrieve 优先走向量检索；向量化失败时退回 BM25 关键词检索。
func (s *searchService) Retrieve(ctx context.Context, query string, bucket adaptive.GradeBucket, k int) ([]model.Passage, error) {
	if k <= 0 {
		k = 3
	}
	vector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err == nil {
		hits, err := s.index.KNN(ctx, vector, k, string(bucket))
		if err != nil {
			return nil, fmt.Errorf("向量检索失败: %w", err)
		}
		return toPassages(hits, cosineRelevance), nil
	}

	log.Warnf("[SearchService] 向量化查询失败，退回关键词检索: %v", err)
	hits, err := s.index.Match(ctx, query, k, string(bucket))
	if err != nil {
		return nil, fmt.Errorf("关键词检索失败: %w", err)
	}
	return toPassages(hits, bm25Relevance), nil
}

// cosineRelevance 把 ES 的 (1+cos)/2 得分还原为 [0,1] 上的余弦相似度。
func cosineRelevance(score float64) float64 {
	return clamp01(2*score - 1)
}

// bm25Relevance 把无上界的 BM25 得分压缩到 [0,1)。
func bm25Relevance(score float64) float64 {
	if score <= 0 {
		return 0
	}
	return score / (1 + score)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func toPassages(hits []es.Hit, relevance func(float64) float64) []model.Passage {
	out := make([]model.Passage, 0, len(hits))
	for _, h := range hits {
		text := strings.TrimSpace(h.Doc.TextContent)
		if text == "" {
			continue
		}
		source := h.Doc.FileName
		if h.Doc.Chapter != "" {
			source = fmt.Sprintf("%s (%s)", h.Doc.FileName, h.Doc.Chapter)
		}
		out = append(out, model.Passage{
			Text:      text,
			Source:    source,
			Chapter:   h.Doc.Chapter,
			Relevance: relevance(h.Score),
		})
	}
	return out
}

// meanRelevance 返回平均相关度，空切片为 0。
func meanRelevance(ps []model.Passage) float64 {
	if len(ps) == 0 {
		return 0
	}
	var sum float64
	for _, p := range ps {
		sum += p.Relevance
	}
	return sum / float64(len(ps))
}
