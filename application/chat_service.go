package application

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"data-sculptor/config"
	"data-sculptor/domain"
	"data-sculptor/keylock"
)

// ChatRequest is one learner question about their current code.
type ChatRequest struct {
	ConversationID string
	UserID         string
	Message        string
	Code           string
	LineOffset     int
	// Summary and Warnings are the feedback the caller currently displays.
	Summary  string
	Warnings []domain.LocalizedWarning
	// FeedbackCleared reports that the caller explicitly shows no feedback at all,
	// as opposed to not sending any.
	FeedbackCleared bool
	Deep            bool
}

// ChatService answers learner questions inside a persisted conversation.
//
// Each reply runs a load-mutate-persist cycle under a per-conversation lock, so
// concurrent requests for one conversation never interleave their updates.
type ChatService struct {
	store   domain.SessionStore
	llm     domain.LLMClient
	drift   domain.DriftPolicy
	counter domain.TokenCounter
	policy  CallPolicy
	locks   *keylock.KeyedMutex

	storeTimeout  time.Duration
	tokenLimit    int
	reserved      int
	maxTokens     int
	deepMaxTokens int
}

// NewChatService creates a ChatService. A nil drift policy means LineCountDrift and a
// nil counter means ApproxTokenCounter.
func NewChatService(
	cfg *config.Config,
	store domain.SessionStore,
	llm domain.LLMClient,
	drift domain.DriftPolicy,
	counter domain.TokenCounter,
) *ChatService {
	if drift == nil {
		drift = domain.LineCountDrift{}
	}
	if counter == nil {
		counter = domain.ApproxTokenCounter{}
	}
	return &ChatService{
		store:         store,
		llm:           llm,
		drift:         drift,
		counter:       counter,
		policy:        NewCallPolicy(cfg.LLM),
		locks:         keylock.NewKeyedMutex(),
		storeTimeout:  cfg.Store.Timeout,
		tokenLimit:    cfg.LLM.TokenLimit,
		reserved:      cfg.LLM.ReservedAnswerTokens,
		maxTokens:     cfg.LLM.MaxTokens,
		deepMaxTokens: cfg.LLM.DeepMaxTokens,
	}
}

// Reply returns the assistant answer to req.
//
// The user and assistant messages are persisted together once the model has
// answered. When the model fails permanently the reply is FallbackReply and nothing
// is persisted; a store failure is returned as an error wrapping ErrStoreUnavailable.
func (s *ChatService) Reply(ctx context.Context, req ChatRequest) (string, error) {
	if err := validateChat(req); err != nil {
		return "", err
	}

	unlock, err := s.locks.Lock(ctx, req.ConversationID)
	if err != nil {
		return "", err
	}
	defer unlock()

	state, err := s.load(ctx, req.ConversationID, req.UserID)
	if err != nil {
		return "", err
	}

	state.SubmitCode(req.Code, s.drift)
	if err := s.attachCallerFeedback(state, req); err != nil {
		return "", err
	}

	summary, warnings := state.VisibleFeedback()
	system := chatSystem(numberLines(state.Document, req.LineOffset), summary, warnings)
	userTokens := s.counter.CountTokens(req.Message)
	budget := s.tokenLimit - s.reserved - userTokens - s.counter.CountTokens(system)
	messages := append(s.history(state.Messages, budget), domain.ChatMessage{Role: domain.RoleUser, Content: req.Message})

	maxTokens := s.maxTokens
	if req.Deep && s.deepMaxTokens > 0 {
		maxTokens = s.deepMaxTokens
	}
	out, err := s.policy.Complete(ctx, s.llm, domain.CompletionRequest{
		System:    system,
		Messages:  messages,
		MaxTokens: maxTokens,
		Deep:      req.Deep,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("chat: conversation %s: model unavailable: %v", req.ConversationID, err)
		return FallbackReply, nil
	}

	answer := strings.TrimSpace(out.Text)
	answerTokens := out.OutputTokens
	if answerTokens <= 0 {
		answerTokens = s.counter.CountTokens(answer)
	}
	state.AppendMessage(domain.Message{Role: domain.RoleUser, Text: req.Message, TokenCount: userTokens})
	state.AppendMessage(domain.Message{Role: domain.RoleAssistant, Text: answer, TokenCount: answerTokens})

	if err := s.persist(ctx, state); err != nil {
		return "", err
	}
	return answer, nil
}

func validateChat(req ChatRequest) error {
	if strings.TrimSpace(req.Code) == "" {
		return fmt.Errorf("%w: current_code must not be empty", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("%w: message must not be empty", domain.ErrInvalidInput)
	}
	if _, err := uuid.Parse(req.ConversationID); err != nil {
		return fmt.Errorf("%w: conversation_id: %v", domain.ErrInvalidInput, err)
	}
	if _, err := uuid.Parse(req.UserID); err != nil {
		return fmt.Errorf("%w: user_id: %v", domain.ErrInvalidInput, err)
	}
	if req.LineOffset < 0 {
		return fmt.Errorf("%w: cell_code_offset must not be negative", domain.ErrInvalidInput)
	}
	return nil
}

func (s *ChatService) load(ctx context.Context, conversationID, userID string) (*domain.ConversationState, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	state, ok, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if !ok {
		return domain.NewConversationState(conversationID, userID), nil
	}
	if state.UserID != userID {
		log.Printf("chat: conversation %s belongs to user %s, request from %s", conversationID, state.UserID, userID)
	}
	return state, nil
}

func (s *ChatService) persist(ctx context.Context, state *domain.ConversationState) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.store.Put(ctx, state); err != nil {
		return fmt.Errorf("failed to persist conversation %s: %w", state.ID, err)
	}
	return nil
}

func (s *ChatService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// attachCallerFeedback binds the feedback shown by the caller to the submitted code.
// Feedback identical to the stored snapshot is not re-attached, so a stale snapshot
// cannot be revived by a caller that still displays it.
func (s *ChatService) attachCallerFeedback(state *domain.ConversationState, req ChatRequest) error {
	if strings.TrimSpace(req.Summary) == "" && len(req.Warnings) == 0 {
		if req.FeedbackCleared && state.Status() == domain.StatusStale {
			state.ClearSnapshot()
		}
		return nil
	}
	if state.Snapshot != nil && state.Snapshot.Fingerprint() == domain.FeedbackFingerprint(req.Summary, req.Warnings) {
		return nil
	}
	return state.AttachSnapshot(domain.NewFeedbackSnapshot(state.Document, req.Warnings, strings.TrimSpace(req.Summary)))
}

// history returns the newest user and assistant messages that fit in budget tokens,
// oldest first.
func (s *ChatService) history(msgs []domain.Message, budget int) []domain.ChatMessage {
	if budget <= 0 {
		return nil
	}
	var (
		used  int
		start = len(msgs)
	)
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		n := m.TokenCount
		if n <= 0 {
			n = s.counter.CountTokens(m.Text)
		}
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	out := make([]domain.ChatMessage, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		if m.Role == domain.RoleUser || m.Role == domain.RoleAssistant {
			out = append(out, domain.ChatMessage{Role: m.Role, Content: m.Text})
		}
	}
	return out
}
