// Package anthropic adapts the Anthropic Messages API to the llm.Provider
// interface, following the SDK's documented client-construction
// conventions (option.WithAPIKey).
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/threeway/reconcile/internal/llm"
)

// Provider calls a single Anthropic account over the Messages API.
//
// Anthropic has no public embeddings endpoint, so ReasoningVector derives
// its vector from the model's own completion via llm.HashEmbed rather than
// a second API call: the Divergence Guard still gets a reproducible,
// content-dependent vector, just not one backed by a
// dedicated embedding model.
type Provider struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	dim       int
}

// New constructs a Provider. model is the Anthropic model name (e.g.
// "claude-3-5-sonnet-latest"); dim is the dimensionality ReasoningVector
// must return, matching the Router's configured VectorDim.
func New(apiKey string, model anthropic.Model, maxTokens int64, dim int) *Provider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Provider{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
		dim:       dim,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: anthropic messages: %v", llm.ErrProviderFailed, err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("%w: anthropic returned no content blocks", llm.ErrProviderFailed)
	}
	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	if out == "" {
		return "", fmt.Errorf("%w: anthropic returned no text content", llm.ErrProviderFailed)
	}
	return out, nil
}

func (p *Provider) ReasoningVector(ctx context.Context, prompt string) ([]float64, error) {
	completion, err := p.Complete(ctx, llm.CompletionRequest{Prompt: prompt, Temperature: 0})
	if err != nil {
		return nil, err
	}
	return llm.HashEmbed(completion, p.dim), nil
}
