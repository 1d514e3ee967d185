package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"data-sculptor/config"
	"data-sculptor/domain"
)

// AnthropicClient is a wrapper around the Anthropic API client.
// Structured output is obtained by forcing a single tool whose input schema is the
// requested shape; the tool input is returned as the completion text.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	deepModel string
}

// NewAnthropicClient creates a new Anthropic client.
//
// Returns:
//
//	*AnthropicClient: A pointer to the new Anthropic client.
//	error: An error if the API key is not configured.
func NewAnthropicClient(cfg config.LLMConfig, opts ...option.RequestOption) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is not set")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	deep := cfg.DeepModel
	if deep == "" {
		deep = model
	}
	return &AnthropicClient{client: &client, model: model, deepModel: deep}, nil
}

// Complete sends the conversation to the Messages API.
func (a *AnthropicClient) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	conversation := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == domain.RoleAssistant {
			conversation = append(conversation, anthropic.NewAssistantMessage(block))
		} else {
			conversation = append(conversation, anthropic.NewUserMessage(block))
		}
	}

	model := a.model
	if req.Deep {
		model = a.deepModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Output != nil {
		schema, err := GenerateSchema(req.Output.Shape)
		if err != nil {
			return domain.Completion{}, err
		}
		params.Tools = []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        req.Output.Name,
				Description: anthropic.String(req.Output.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: schema[propertiesKey]},
			},
		}}
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfToolChoiceTool: &anthropic.ToolChoiceToolParam{Name: req.Output.Name},
		}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return domain.Completion{}, classify("anthropic", anthropicStatus(err), err)
	}

	var text strings.Builder
	for _, content := range message.Content {
		switch content.Type {
		case "tool_use":
			if req.Output != nil && content.Name == req.Output.Name {
				return domain.Completion{Text: string(content.Input), OutputTokens: int(message.Usage.OutputTokens)}, nil
			}
		case "text":
			text.WriteString(content.Text)
		}
	}
	return domain.Completion{Text: text.String(), OutputTokens: int(message.Usage.OutputTokens)}, nil
}

func anthropicStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
