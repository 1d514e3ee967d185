package domain

import "context"

// ChatMessage is one prompt turn sent to an LLMClient.
type ChatMessage struct {
	Role    Role
	Content string
}

// StructuredOutput asks the model to answer with JSON shaped like Shape.
// Shape is a zero value of the Go type the answer decodes into; clients reflect
// their JSON schema from it.
type StructuredOutput struct {
	Name        string
	Description string
	Shape       any
}

// CompletionRequest is a single LLM call.
type CompletionRequest struct {
	System    string
	Messages  []ChatMessage
	MaxTokens int
	// Deep selects the slower, more thorough model configuration.
	Deep   bool
	Output *StructuredOutput
}

// Completion is the model answer.
type Completion struct {
	Text         string
	OutputTokens int
}

// LLMClient is the opaque language-model collaborator: prompt in, text out.
//
// Implementations wrap retryable failures (timeouts, rate limits, 5xx) with
// ErrCollaboratorTransient and oversized prompts with ErrContextTooLong.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}
