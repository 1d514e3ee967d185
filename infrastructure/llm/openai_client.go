package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"data-sculptor/config"
	"data-sculptor/domain"
)

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint, such as the
// Qwen compatible-mode API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	deepModel   string
	temperature float32
}

// NewOpenAIClient creates a client for cfg.BaseURL, or the OpenAI API when it is empty.
func NewOpenAIClient(cfg config.LLMConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is not set")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	deep := cfg.DeepModel
	if deep == "" {
		deep = cfg.Model
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		deepModel:   deep,
		temperature: cfg.Temperature,
	}, nil
}

// Complete sends one chat completion request. Structured output is requested as a
// strict JSON schema response format.
func (c *OpenAIClient) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: openAIRole(m.Role), Content: m.Content})
	}

	model := c.model
	if req.Deep {
		model = c.deepModel
	}
	r := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: c.temperature,
	}
	if req.Output != nil {
		schema, err := GenerateSchema(req.Output.Shape)
		if err != nil {
			return domain.Completion{}, err
		}
		raw, err := json.Marshal(schema)
		if err != nil {
			return domain.Completion{}, fmt.Errorf("failed to marshal schema: %w", err)
		}
		r.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        req.Output.Name,
				Description: req.Output.Description,
				Schema:      json.RawMessage(raw),
				Strict:      true,
			},
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, r)
	if err != nil {
		return domain.Completion{}, classify("openai", openAIStatus(err), err)
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, fmt.Errorf("openai: %w: response has no choices", domain.ErrCollaboratorTransient)
	}
	return domain.Completion{
		Text:         resp.Choices[0].Message.Content,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func openAIRole(r domain.Role) string {
	switch r {
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
