package generator

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions).
type OpenAILLM struct {
	Model string
	Opts  []option.RequestOption
}

// Settings is the provider configuration for OpenAILLM.
type Settings struct {
	APIKey  string
	BaseURL string
	Model   string
}

func NewOpenAILLM(cfg Settings) (*OpenAILLM, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai api key missing; provide generator.api_key")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("generator model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAILLM{Model: cfg.Model, Opts: opts}, nil
}

func (o *OpenAILLM) Generate(ctx context.Context, req Request) (string, Usage, error) {
	client := openai.NewClient(o.Opts...)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.AllowWebContext {
		// Search-capable models take this knob; others reject it server-side,
		// which surfaces as a normal generation error for the candidate.
		params.WebSearchOptions = openai.ChatCompletionNewParamsWebSearchOptions{}
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, errors.New("openai: empty choices")
	}
	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", usage, errors.New("openai: empty completion")
	}
	return text, usage, nil
}
