// Package openai adapts the OpenAI chat and embeddings APIs to the
// llm.Provider interface.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/threeway/reconcile/internal/llm"
)

// Provider calls a single OpenAI account over the chat completions and
// embeddings endpoints.
type Provider struct {
	client *openai.Client
	model  openai.ChatModel
	// embedModel is the embeddings model used for ReasoningVector.
	embedModel string
	// dim is the embedding dimensionality requested from the API. It must
	// match the Router's configured VectorDim; Router.ReasoningVector
	// rejects any vector whose length differs.
	dim int
}

// New constructs a Provider. model and embedModel are the model names sent
// to OpenAI (e.g. "gpt-4o", "text-embedding-3-small"); dim is the
// embedding dimensionality to request.
func New(apiKey, model, embedModel string, dim int) *Provider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Provider{
		client:     &client,
		model:      openai.ChatModel(model),
		embedModel: embedModel,
		dim:        dim,
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: openai chat completion: %v", llm.ErrProviderFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", llm.ErrProviderFailed)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *Provider) ReasoningVector(ctx context.Context, prompt string) ([]float64, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          p.embedModel,
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(prompt)},
		Dimensions:     openai.Int(int64(p.dim)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai embeddings: %v", llm.ErrProviderFailed, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: openai returned no embedding data", llm.ErrProviderFailed)
	}
	return resp.Data[0].Embedding, nil
}
