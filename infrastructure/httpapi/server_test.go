package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"data-sculptor/application"
	"data-sculptor/config"
	"data-sculptor/domain"
	"data-sculptor/infrastructure/store"
)

type scriptedLLM struct {
	mu      sync.Mutex
	answer  string
	systems []string
}

func (l *scriptedLLM) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.systems = append(l.systems, req.System)
	return domain.Completion{Text: l.answer}, nil
}

func (l *scriptedLLM) lastSystem() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.systems[len(l.systems)-1]
}

type emptySections struct{}

func (emptySections) GetSection(ctx context.Context, profileID string, index int) (domain.ProfileSection, error) {
	return domain.ProfileSection{}, fmt.Errorf("profile %s: %w", profileID, domain.ErrNotFound)
}

func (emptySections) UpsertSections(ctx context.Context, sections []domain.ProfileSection) error {
	return nil
}

type unavailableStore struct {
	*store.MemoryStore
}

func (unavailableStore) Put(ctx context.Context, state *domain.ConversationState) error {
	return fmt.Errorf("%w: connection reset", domain.ErrStoreUnavailable)
}

func newTestServer(t *testing.T, llm domain.LLMClient, sessions domain.SessionStore) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.Backoff = time.Millisecond
	feedback := application.NewFeedbackService(cfg, llm, nil, emptySections{}, nil)
	chat := application.NewChatService(cfg, sessions, llm, nil, nil)
	srv := httptest.NewServer(NewServer(cfg.Server, feedback, chat))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &scriptedLLM{}, store.NewMemoryStore())
	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFeedback_NoIssuesFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &scriptedLLM{answer: `{"conceptual":[],"warnings":[]}`}, store.NewMemoryStore())
	resp, body := post(t, srv, "/api/v1/feedback", map[string]any{"current_code": "x=1\ny=2\n"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no issues found", body["non_localized_feedback"])
	assert.Equal(t, []any{}, body["localized_feedback"])
}

func TestFeedback_Errors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &scriptedLLM{answer: `{}`}, store.NewMemoryStore())
	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{name: "empty code", body: map[string]any{"current_code": ""}, status: http.StatusBadRequest},
		{name: "missing section", body: map[string]any{"current_code": "x", "profile_index": uuid.NewString()}, status: http.StatusBadRequest},
		{name: "unknown profile", body: map[string]any{"current_code": "x", "profile_index": uuid.NewString(), "section_index": 0}, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, body := post(t, srv, "/api/v1/feedback", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["detail"])
			assert.Equal(t, false, body["retryable"])
		})
	}
}

func TestFeedback_MalformedBody(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &scriptedLLM{}, store.NewMemoryStore())
	resp, err := http.Post(srv.URL+"/api/v1/feedback", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLocalize_IdentifierLine(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &scriptedLLM{}, store.NewMemoryStore())
	resp, body := post(t, srv, "/api/v1/localize", map[string]any{
		"current_code": "import numpy as np\nx = np.arange(3)\nfoo = compute()\nprint(x)\n",
		"warnings": []map[string]any{{
			"description": "Result foo is computed but never used",
			"framework":   "python",
			"fix":         "Remove it",
			"benefit":     "Less noise",
			"unknown":     "ignored",
		}},
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	ws := body["localized_feedback"].([]any)
	require.Len(t, ws, 1)
	w := ws[0].(map[string]any)
	start := w["range"].(map[string]any)["start"].(map[string]any)
	assert.Equal(t, float64(2), start["line"])
	assert.Equal(t, float64(2), w["severity"])
	assert.Equal(t, domain.SemanticWarningCode, w["code"])
}

func TestChat_StaleSnapshotOmitsLineFeedback(t *testing.T) {
	t.Parallel()

	llm := &scriptedLLM{answer: "Here is why."}
	srv := newTestServer(t, llm, store.NewMemoryStore())

	warning := map[string]any{
		"range":    map[string]any{"start": map[string]any{"line": 1, "character": 0}, "end": map[string]any{"line": 1, "character": 9}},
		"severity": 2,
		"code":     domain.SemanticWarningCode,
		"source":   domain.SemanticWarningSource,
		"message":  "Magic number in split ratio",
	}
	req := map[string]any{
		"conversation_id":                uuid.NewString(),
		"user_id":                        uuid.NewString(),
		"message":                        "Why is this flagged?",
		"current_code":                   "import sklearn\nratio = 0.37\n",
		"current_non_localized_feedback": "- Document your split choices",
		"current_localized_feedback":     []any{warning},
	}
	resp, body := post(t, srv, "/api/v1/chat", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Here is why.", body["message"])
	assert.Contains(t, llm.lastSystem(), "Magic number in split ratio")

	req["current_code"] = "import sklearn\nratio = 0.37\ntrain = split(ratio)\n"
	req["message"] = "What about now?"
	resp, _ = post(t, srv, "/api/v1/chat", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	system := llm.lastSystem()
	assert.NotContains(t, system, "Magic number in split ratio")
	assert.Contains(t, system, "Document your split choices")
}

func TestChat_ExplicitEmptyFeedbackClearsStaleSnapshot(t *testing.T) {
	t.Parallel()

	llm := &scriptedLLM{answer: "ok"}
	srv := newTestServer(t, llm, store.NewMemoryStore())

	req := map[string]any{
		"conversation_id":                uuid.NewString(),
		"user_id":                        uuid.NewString(),
		"message":                        "first",
		"current_code":                   "x = 1\n",
		"current_non_localized_feedback": "- Name your constants",
	}
	resp, _ := post(t, srv, "/api/v1/chat", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req["current_code"] = "x = 1\ny = 2\n"
	req["message"] = "second"
	resp, _ = post(t, srv, "/api/v1/chat", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, llm.lastSystem(), "Name your constants")

	req["message"] = "third"
	req["current_non_localized_feedback"] = ""
	req["current_localized_feedback"] = []any{}
	resp, _ = post(t, srv, "/api/v1/chat", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, llm.lastSystem(), "Name your constants")
}

func TestChat_StoreUnavailableIsRetryable(t *testing.T) {
	t.Parallel()

	llm := &scriptedLLM{answer: "never delivered"}
	srv := newTestServer(t, llm, unavailableStore{store.NewMemoryStore()})

	resp, body := post(t, srv, "/api/v1/chat", map[string]any{
		"conversation_id": uuid.NewString(),
		"user_id":         uuid.NewString(),
		"message":         "hello",
		"current_code":    "x = 1",
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, true, body["retryable"])
	assert.NotContains(t, body, "message")
}

func TestChat_EmptyMessage(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &scriptedLLM{}, store.NewMemoryStore())
	resp, _ := post(t, srv, "/api/v1/chat", map[string]any{
		"conversation_id": uuid.NewString(),
		"user_id":         uuid.NewString(),
		"message":         "",
		"current_code":    "x = 1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
