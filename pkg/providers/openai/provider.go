// Package openaiprovider adapts any OpenAI-compatible chat completion
// endpoint (OpenAI itself, Maritaca, vLLM gateways) to the neutral
// Completer contract.
package openaiprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type Provider struct {
	client *openai.Client
	model  string
}

func NewProvider(token, model string) *Provider {
	return NewProviderWithBaseURL(token, model, "")
}

func NewProviderWithBaseURL(token, model, apiBase string) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(token)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	client := openai.NewClient(opts...)
	return &Provider{client: &client, model: model}
}

func (p *Provider) Complete(ctx context.Context, system, user string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(user))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    messages,
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *Provider) Name() string { return "openai" }
