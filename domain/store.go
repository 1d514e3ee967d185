package domain

import "context"

// SessionStore persists conversations.
//
// Implementations must make every call atomic for a single conversation id and
// serialise concurrent writers to the same id. Failures wrap ErrStoreUnavailable.
type SessionStore interface {
	// Get returns the stored conversation, or ok=false when none exists.
	Get(ctx context.Context, conversationID string) (state *ConversationState, ok bool, err error)
	// Put stores the conversation. Messages are an append log: messages at or below
	// state.PersistedSeq are never rewritten, and the unsaved ones are appended after
	// the stored tail, renumbered when another writer got there first. On success the
	// caller's state is marked saved with the assigned numbers.
	Put(ctx context.Context, state *ConversationState) error
	// AppendMessage adds one message after the last stored one and returns it with
	// its assigned sequence number. An unknown conversation is created.
	AppendMessage(ctx context.Context, conversationID string, m Message) (Message, error)
}
