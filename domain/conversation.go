package domain

import (
	"fmt"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one turn of a conversation. Seq is assigned on append and is
// monotonic within a conversation.
type Message struct {
	Seq        int       `json:"seq" msgpack:"seq"`
	Role       Role      `json:"role" msgpack:"role"`
	Text       string    `json:"text" msgpack:"text"`
	TokenCount int       `json:"token_count" msgpack:"token_count"`
	CreatedAt  time.Time `json:"created_at" msgpack:"created_at"`
}

// Status is the feedback classification of a conversation.
type Status int

const (
	// StatusEmpty means no snapshot is attached.
	StatusEmpty Status = iota
	// StatusAnalyzed means the snapshot still matches the code.
	StatusAnalyzed
	// StatusStale means the code has drifted past the snapshot.
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "EMPTY"
	case StatusAnalyzed:
		return "ANALYZED"
	case StatusStale:
		return "STALE"
	}
	return "UNKNOWN"
}

// ConversationState is a dialogue grounded in an evolving code document and the
// feedback computed against it.
//
// A state is owned by a single request between load and persist; it is not safe
// for concurrent use.
type ConversationState struct {
	ID       string
	UserID   string
	Document CodeDocument
	Snapshot *FeedbackSnapshot
	Stale    bool
	Messages []Message
	// PersistedSeq is the last sequence number the store held when the state was
	// loaded or last saved. Messages above it have not been persisted yet.
	PersistedSeq int
}

// NewConversationState returns an EMPTY conversation with no code yet.
func NewConversationState(id, userID string) *ConversationState {
	return &ConversationState{ID: id, UserID: userID}
}

// Status derives the state-machine classification.
func (c *ConversationState) Status() Status {
	switch {
	case c.Snapshot == nil:
		return StatusEmpty
	case c.Stale:
		return StatusStale
	default:
		return StatusAnalyzed
	}
}

// SubmitCode replaces the document with text at the next version. An ANALYZED
// conversation becomes STALE when policy reports drift against the snapshot's document.
func (c *ConversationState) SubmitCode(text string, policy DriftPolicy) {
	c.Document = NewCodeDocument(text, c.Document.Version()+1)
	if c.Snapshot == nil || c.Stale {
		return
	}
	if policy == nil {
		policy = LineCountDrift{}
	}
	if policy.Drifted(c.Snapshot.Document, c.Document) {
		c.Stale = true
	}
}

// AttachSnapshot binds s to the conversation. The snapshot must have been computed
// against the current document version.
func (c *ConversationState) AttachSnapshot(s FeedbackSnapshot) error {
	if s.Version() != c.Document.Version() {
		return fmt.Errorf("%w: snapshot version %d, document version %d",
			ErrInvalidSnapshot, s.Version(), c.Document.Version())
	}
	c.Snapshot = &s
	c.Stale = false
	return nil
}

// ClearSnapshot drops the snapshot; the conversation becomes EMPTY.
func (c *ConversationState) ClearSnapshot() {
	c.Snapshot = nil
	c.Stale = false
}

// AppendMessage adds m after the last message and returns it with its sequence number.
func (c *ConversationState) AppendMessage(m Message) Message {
	m.Seq = c.NextSeq()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	c.Messages = append(c.Messages, m)
	return m
}

// Unsaved returns a copy of the messages appended since the state was loaded or
// last saved.
func (c *ConversationState) Unsaved() []Message {
	var out []Message
	for _, m := range c.Messages {
		if m.Seq > c.PersistedSeq {
			out = append(out, m)
		}
	}
	return out
}

// MarkSaved replaces the unsaved messages with saved, the same messages as numbered
// by the store, and moves PersistedSeq past them.
func (c *ConversationState) MarkSaved(saved []Message) {
	kept := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Seq <= c.PersistedSeq {
			kept = append(kept, m)
		}
	}
	c.Messages = append(kept, saved...)
	if len(saved) > 0 {
		c.PersistedSeq = saved[len(saved)-1].Seq
	}
}

// NextSeq returns the sequence number the next appended message will get.
func (c *ConversationState) NextSeq() int {
	if len(c.Messages) == 0 {
		return 1
	}
	return c.Messages[len(c.Messages)-1].Seq + 1
}

// VisibleFeedback returns what may be shown for the current code: a STALE snapshot
// keeps its summary but hides its localized warnings.
func (c *ConversationState) VisibleFeedback() (string, []LocalizedWarning) {
	switch c.Status() {
	case StatusAnalyzed:
		ws := make([]LocalizedWarning, len(c.Snapshot.Warnings))
		copy(ws, c.Snapshot.Warnings)
		return c.Snapshot.Summary, ws
	case StatusStale:
		return c.Snapshot.Summary, nil
	default:
		return "", nil
	}
}

// Clone returns a deep copy, so stores can hand out states without sharing slices.
func (c *ConversationState) Clone() *ConversationState {
	if c == nil {
		return nil
	}
	out := *c
	if c.Snapshot != nil {
		snap := NewFeedbackSnapshot(c.Snapshot.Document, c.Snapshot.Warnings, c.Snapshot.Summary)
		out.Snapshot = &snap
	}
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}
