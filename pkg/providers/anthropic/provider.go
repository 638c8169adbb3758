// Package anthropicprovider adapts the Anthropic Messages API to the
// neutral Completer contract.
package anthropicprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultBaseURL = "https://api.anthropic.com"

const maxTokens = 1024

type Provider struct {
	client *anthropic.Client
	model  string
}

func NewProvider(token, model string) *Provider {
	return NewProviderWithBaseURL(token, model, "")
}

func NewProviderWithBaseURL(token, model, apiBase string) *Provider {
	baseURL := apiBase
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := anthropic.NewClient(
		option.WithAuthToken(token),
		option.WithBaseURL(baseURL),
	)
	return &Provider{client: &client, model: model}
}

func (p *Provider) Complete(ctx context.Context, system, user string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API call: %w", err)
	}
	return parseText(resp), nil
}

func (p *Provider) Name() string { return "anthropic" }

func parseText(resp *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
