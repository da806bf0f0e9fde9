package llm

import "context"

// CompletionRequest is the input to a single Provider.Complete call.
type CompletionRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
	// SchemaHint is the JSON Schema of the expected response shape,
	// derived via SchemaOf from the struct the completion is decoded
	// into. The deterministic provider keys its neutral rule-based
	// response off it.
	SchemaHint string
}

// Provider is one entry in the Router's ordered failover chain.
type Provider interface {
	// Name identifies the provider for logging and trace purposes.
	Name() string
	// Complete returns a raw completion string for the given request.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// ReasoningVector returns a fixed-length embedding of the model's
	// response to prompt. All vectors returned by one Router share the
	// same dimensionality.
	ReasoningVector(ctx context.Context, prompt string) ([]float64, error)
}
