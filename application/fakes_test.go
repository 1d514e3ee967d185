package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"data-sculptor/config"
	"data-sculptor/domain"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.LLM.Backoff = time.Millisecond
	cfg.LLM.Timeout = time.Second
	cfg.Store.Timeout = time.Second
	return cfg
}

// fakeLLM answers with respond and records every request it receives.
type fakeLLM struct {
	mu       sync.Mutex
	requests []domain.CompletionRequest
	respond  func(call int, req domain.CompletionRequest) (domain.Completion, error)
}

func (f *fakeLLM) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	f.mu.Lock()
	call := len(f.requests)
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.respond == nil {
		return domain.Completion{Text: "ok"}, nil
	}
	return f.respond(call, req)
}

func (f *fakeLLM) calls() []domain.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CompletionRequest(nil), f.requests...)
}

func replyWith(text string) func(int, domain.CompletionRequest) (domain.Completion, error) {
	return func(int, domain.CompletionRequest) (domain.Completion, error) {
		return domain.Completion{Text: text}, nil
	}
}

type fakeAnalyzer struct {
	diags []domain.ToolDiagnostic
	err   error
}

func (f fakeAnalyzer) Analyze(ctx context.Context, code string) ([]domain.ToolDiagnostic, error) {
	return f.diags, f.err
}

type fakeSections struct {
	mu       sync.Mutex
	sections map[string]domain.ProfileSection
	err      error
}

func sectionKey(profileID string, index int) string {
	return fmt.Sprintf("%s/%d", profileID, index)
}

func (f *fakeSections) GetSection(ctx context.Context, profileID string, index int) (domain.ProfileSection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.ProfileSection{}, f.err
	}
	s, ok := f.sections[sectionKey(profileID, index)]
	if !ok {
		return domain.ProfileSection{}, fmt.Errorf("section %d of profile %s: %w", index, profileID, domain.ErrNotFound)
	}
	return s, nil
}

func (f *fakeSections) UpsertSections(ctx context.Context, sections []domain.ProfileSection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.sections == nil {
		f.sections = make(map[string]domain.ProfileSection)
	}
	for _, s := range sections {
		f.sections[sectionKey(s.ProfileID, s.Index)] = s
	}
	return nil
}

type fakeEmbedder struct {
	batches [][]string
}

func (f *fakeEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	f.batches = append(f.batches, texts)
	out := make([]domain.Embedding, len(texts))
	for i := range texts {
		out[i] = domain.Embedding{float32(len(texts[i])), 1}
	}
	return out, nil
}

// fakeStore is an in-memory SessionStore whose writes can be made to fail.
type fakeStore struct {
	mu     sync.Mutex
	convs  map[string]*domain.ConversationState
	putErr error
	getErr error
	puts   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{convs: make(map[string]*domain.ConversationState)}
}

func (s *fakeStore) Get(ctx context.Context, id string) (*domain.ConversationState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	c, ok := s.convs[id]
	if !ok {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

func (s *fakeStore) Put(ctx context.Context, state *domain.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.puts++
	s.convs[state.ID] = state.Clone()
	return nil
}

func (s *fakeStore) AppendMessage(ctx context.Context, id string, m domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return domain.Message{}, s.putErr
	}
	c, ok := s.convs[id]
	if !ok {
		c = domain.NewConversationState(id, "")
		s.convs[id] = c
	}
	return c.AppendMessage(m), nil
}

func (s *fakeStore) stored(id string) *domain.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs[id].Clone()
}
