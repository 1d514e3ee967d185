package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"data-sculptor/config"
	"data-sculptor/domain"
)

type answerShape struct {
	Conceptual []string `json:"conceptual"`
	Warnings   []struct {
		StartLine int    `json:"start_line"`
		Message   string `json:"message"`
	} `json:"warnings"`
}

func TestGenerateSchema_ClosesObjects(t *testing.T) {
	t.Parallel()

	schema, err := GenerateSchema(answerShape{})
	require.NoError(t, err)

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.Equal(t, []string{"conceptual", "warnings"}, schema["required"])
	assert.NotContains(t, schema, "$schema")

	props := schema["properties"].(map[string]any)
	items := props["warnings"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, false, items["additionalProperties"])
	assert.Equal(t, []string{"message", "start_line"}, items["required"])
}

func newOpenAITestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewOpenAIClient(config.LLMConfig{
		APIKey:    "test",
		BaseURL:   srv.URL + "/v1",
		Model:     "qwen-plus",
		DeepModel: "qwen-max",
	})
	require.NoError(t, err)
	return c
}

func TestOpenAIClient_StructuredOutput(t *testing.T) {
	t.Parallel()

	var got map[string]any
	c := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"conceptual\":[],\"warnings\":[]}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":7,"total_tokens":17}}`)
	})

	out, err := c.Complete(context.Background(), domain.CompletionRequest{
		System:    "system",
		Messages:  []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
		MaxTokens: 100,
		Deep:      true,
		Output:    &domain.StructuredOutput{Name: "code_feedback", Shape: answerShape{}},
	})
	require.NoError(t, err)

	assert.Equal(t, `{"conceptual":[],"warnings":[]}`, out.Text)
	assert.Equal(t, 7, out.OutputTokens)
	assert.Equal(t, "qwen-max", got["model"])
	format := got["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "code_feedback", format["json_schema"].(map[string]any)["name"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOpenAIClient_ClassifiesErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down","type":"rate_limit"}}`, want: domain.ErrCollaboratorTransient},
		{name: "server error", status: http.StatusBadGateway, body: `{"error":{"message":"upstream","type":"server_error"}}`, want: domain.ErrCollaboratorTransient},
		{name: "context too long", status: http.StatusBadRequest, body: `{"error":{"message":"This model's maximum context length is 32768 tokens","type":"invalid_request_error","code":"context_length_exceeded"}}`, want: domain.ErrContextTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.Complete(context.Background(), domain.CompletionRequest{
				Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenAIClient_PermanentError(t *testing.T) {
	t.Parallel()

	c := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"auth"}}`)
	})
	_, err := c.Complete(context.Background(), domain.CompletionRequest{
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCollaboratorTransient)
	assert.NotErrorIs(t, err, domain.ErrContextTooLong)
}
