package rag

import (
	"context"
	"log/slog"

	"github.com/ragline-platform/ragline/internal/metrics"
)

// Summarizer condenses retrieved history that exceeds the length threshold.
type Summarizer struct {
	gateway ModelGateway
	session *Session
}

// NewSummarizer creates a summarizer backed by the given gateway and session.
func NewSummarizer(gateway ModelGateway, session *Session) *Summarizer {
	return &Summarizer{gateway: gateway, session: session}
}

// Summarize runs the summary prompt through the active model. When the model
// call fails the request must still proceed, so the history is truncated to
// maxRunes instead and the failure is only logged.
func (s *Summarizer) Summarize(ctx context.Context, history string, maxRunes int) string {
	prompt := BuildSummaryPrompt(history)
	summary, err := s.gateway.Generate(ctx, s.session.CurrentModel(), prompt)
	if err != nil {
		slog.Warn("history summarization failed, truncating instead", "error", err)
		metrics.SummarizationsTotal.WithLabelValues("fallback").Inc()
		return truncateRunes(history, maxRunes)
	}
	metrics.SummarizationsTotal.WithLabelValues("ok").Inc()
	return summary
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
