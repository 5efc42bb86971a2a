package generator

import (
	"context"
	"fmt"

	logx "optobot/pkg/logx"
)

// Content is the post-ready commentary for one candidate. Immutable once
// built; it lives only for the duration of one scheduling cycle.
type Content struct {
	TokenLabel string
	Body       string
	Usage      Usage
}

// Builder runs the two-stage generation for one candidate and enforces the
// posting length contract locally.
type Builder struct {
	llm         LLMClient
	log         logx.Logger
	temperature float64
}

const defaultTemperature = 0.7

func NewBuilder(llm LLMClient, temperature float64, log logx.Logger) *Builder {
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Builder{llm: llm, log: log, temperature: temperature}
}

// Compose obtains web-augmented analysis for the candidate, then compresses
// it into a single post-ready string. The generator's length contract is not
// trusted: the result is clamped to 280 characters regardless.
func (b *Builder) Compose(ctx context.Context, label, excerpt, corpus, newsContext string) (Content, error) {
	analysis, aUsage, err := b.llm.Generate(ctx, Request{
		Prompt:          BuildAnalysisPrompt(label, excerpt, corpus, newsContext),
		Temperature:     b.temperature,
		AllowWebContext: true,
	})
	if err != nil {
		return Content{}, fmt.Errorf("analysis for %s: %w", label, err)
	}

	body, cUsage, err := b.llm.Generate(ctx, Request{
		Prompt:      BuildCompressPrompt(analysis),
		Temperature: b.temperature,
	})
	if err != nil {
		return Content{}, fmt.Errorf("compress for %s: %w", label, err)
	}

	clamped := ClampPost(body)
	if clamped != body {
		b.log.Debug("generated body clamped to post limit",
			logx.String("token", label), logx.Int("orig_len", len([]rune(body))))
	}
	return Content{
		TokenLabel: label,
		Body:       clamped,
		Usage: Usage{
			InputTokens:  aUsage.InputTokens + cUsage.InputTokens,
			OutputTokens: aUsage.OutputTokens + cUsage.OutputTokens,
		},
	}, nil
}
