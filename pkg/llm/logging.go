package llm

import (
	"context"
	"time"

	"ncert-tutor-go/pkg/log"
)

// LoggingProvider logs every call with latency and token usage.
type LoggingProvider struct {
	inner Provider
}

// WithLogging wraps p.
func WithLogging(p Provider) Provider {
	return &LoggingProvider{inner: p}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		log.Warnw("LLM 调用失败", "model", l.inner.ModelID(), "latency_ms", latency, "error", err)
		return nil, err
	}
	log.Infow("LLM 调用完成",
		"model", resp.Model,
		"latency_ms", latency,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason,
	)
	return resp, nil
}

func (l *LoggingProvider) ModelID() string { return l.inner.ModelID() }
