package store

import (
	"data-sculptor/domain"
)

// recordSchema is bumped whenever the persisted layout changes.
const recordSchema uint16 = 1

// conversationRecord is the persisted form of a domain.ConversationState.
// CodeDocument keeps its lines private, so documents are flattened here.
type conversationRecord struct {
	Schema   uint16           `msgpack:"schema" json:"-"`
	ID       string           `msgpack:"id" json:"-"`
	UserID   string           `msgpack:"user_id" json:"-"`
	Lines    []string         `msgpack:"lines" json:"-"`
	Version  uint64           `msgpack:"version" json:"-"`
	Snapshot *snapshotRecord  `msgpack:"snapshot" json:"-"`
	Stale    bool             `msgpack:"stale" json:"-"`
	Messages []domain.Message `msgpack:"messages" json:"-"`
}

type snapshotRecord struct {
	Lines    []string                  `msgpack:"lines" json:"lines"`
	Version  uint64                    `msgpack:"version" json:"version"`
	Warnings []domain.LocalizedWarning `msgpack:"warnings" json:"warnings"`
	Summary  string                    `msgpack:"summary" json:"summary"`
}

func toSnapshotRecord(s *domain.FeedbackSnapshot) *snapshotRecord {
	if s == nil {
		return nil
	}
	return &snapshotRecord{
		Lines:    s.Document.Lines(),
		Version:  s.Document.Version(),
		Warnings: s.Warnings,
		Summary:  s.Summary,
	}
}

func (r *snapshotRecord) snapshot() *domain.FeedbackSnapshot {
	if r == nil {
		return nil
	}
	snap := domain.NewFeedbackSnapshot(domain.RestoreCodeDocument(r.Lines, r.Version), r.Warnings, r.Summary)
	return &snap
}

func toRecord(state *domain.ConversationState) conversationRecord {
	return conversationRecord{
		Schema:   recordSchema,
		ID:       state.ID,
		UserID:   state.UserID,
		Lines:    state.Document.Lines(),
		Version:  state.Document.Version(),
		Snapshot: toSnapshotRecord(state.Snapshot),
		Stale:    state.Stale,
		Messages: state.Messages,
	}
}

func (r conversationRecord) state() *domain.ConversationState {
	msgs := make([]domain.Message, len(r.Messages))
	copy(msgs, r.Messages)
	return &domain.ConversationState{
		ID:           r.ID,
		UserID:       r.UserID,
		Document:     domain.RestoreCodeDocument(r.Lines, r.Version),
		Snapshot:     r.Snapshot.snapshot(),
		Stale:        r.Stale,
		Messages:     msgs,
		PersistedSeq: lastSeq(msgs),
	}
}

// mergeMessages appends pending after the stored tail, numbering each one after
// the last stored message. It returns the merged log and the pending messages as
// numbered.
func mergeMessages(stored, pending []domain.Message) (merged, saved []domain.Message) {
	merged = make([]domain.Message, len(stored), len(stored)+len(pending))
	copy(merged, stored)
	saved = make([]domain.Message, 0, len(pending))
	for _, m := range pending {
		m = appendAfter(merged, m)
		merged = append(merged, m)
		saved = append(saved, m)
	}
	return merged, saved
}

func lastSeq(msgs []domain.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	return msgs[len(msgs)-1].Seq
}

// appendAfter assigns m the sequence number following stored.
func appendAfter(stored []domain.Message, m domain.Message) domain.Message {
	m.Seq = lastSeq(stored) + 1
	return m
}
