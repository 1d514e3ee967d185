package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"data-sculptor/domain"
)

// runStoreSuite exercises the domain.SessionStore contract.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) domain.SessionStore) {
	t.Run("missing conversation", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		state, ok, err := s.Get(context.Background(), uuid.NewString())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, state)
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()

		state := domain.NewConversationState(uuid.NewString(), uuid.NewString())
		state.SubmitCode("import pandas as pd\ndf = pd.read_csv('x.csv')\n", nil)
		warning := domain.LocalizedWarning{
			Range:    domain.Range{Start: domain.Position{Line: 1, Character: 0}, End: domain.Position{Line: 1, Character: 2}},
			Severity: domain.SeverityWarning,
			Code:     "W1",
			Source:   "pylint",
			Message:  "unused",
		}
		require.NoError(t, state.AttachSnapshot(domain.NewFeedbackSnapshot(state.Document, []domain.LocalizedWarning{warning}, "summary")))
		state.AppendMessage(domain.Message{Role: domain.RoleUser, Text: "why?", TokenCount: 2})
		state.AppendMessage(domain.Message{Role: domain.RoleAssistant, Text: "because", TokenCount: 1})
		require.NoError(t, s.Put(ctx, state))

		got, ok, err := s.Get(ctx, state.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, state.UserID, got.UserID)
		assert.Equal(t, state.Document.Lines(), got.Document.Lines())
		assert.Equal(t, uint64(1), got.Document.Version())
		assert.Equal(t, domain.StatusAnalyzed, got.Status())
		require.NotNil(t, got.Snapshot)
		assert.Equal(t, state.Snapshot.Fingerprint(), got.Snapshot.Fingerprint())
		require.Len(t, got.Messages, 2)
		assert.Equal(t, []int{1, 2}, []int{got.Messages[0].Seq, got.Messages[1].Seq})
		assert.Equal(t, domain.RoleAssistant, got.Messages[1].Role)
		assert.Equal(t, "because", got.Messages[1].Text)
	})

	t.Run("put keeps stored messages", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()

		state := domain.NewConversationState(uuid.NewString(), uuid.NewString())
		state.AppendMessage(domain.Message{Role: domain.RoleUser, Text: "first"})
		require.NoError(t, s.Put(ctx, state))

		state.Messages[0].Text = "rewritten"
		state.AppendMessage(domain.Message{Role: domain.RoleAssistant, Text: "second"})
		require.NoError(t, s.Put(ctx, state))

		got, _, err := s.Get(ctx, state.ID)
		require.NoError(t, err)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, "first", got.Messages[0].Text)
		assert.Equal(t, "second", got.Messages[1].Text)
	})

	t.Run("put after an interleaved append keeps both writers", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()

		seed := domain.NewConversationState(uuid.NewString(), uuid.NewString())
		seed.AppendMessage(domain.Message{Role: domain.RoleUser, Text: "hello"})
		require.NoError(t, s.Put(ctx, seed))

		state, ok, err := s.Get(ctx, seed.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 1, state.PersistedSeq)

		other, err := s.AppendMessage(ctx, seed.ID, domain.Message{Role: domain.RoleUser, Text: "from another tab"})
		require.NoError(t, err)
		assert.Equal(t, 2, other.Seq)

		state.AppendMessage(domain.Message{Role: domain.RoleUser, Text: "question"})
		state.AppendMessage(domain.Message{Role: domain.RoleAssistant, Text: "answer"})
		require.NoError(t, s.Put(ctx, state))

		got, _, err := s.Get(ctx, seed.ID)
		require.NoError(t, err)
		require.Len(t, got.Messages, 4)
		texts := make([]string, len(got.Messages))
		for i, m := range got.Messages {
			texts[i] = m.Text
			assert.Equal(t, i+1, m.Seq)
		}
		assert.Equal(t, []string{"hello", "from another tab", "question", "answer"}, texts)

		assert.Equal(t, 4, state.PersistedSeq)
		assert.Empty(t, state.Unsaved())
		assert.Equal(t, 3, state.Messages[len(state.Messages)-2].Seq)
	})

	t.Run("put of a new state after an append to the same id", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		id := uuid.NewString()

		state := domain.NewConversationState(id, uuid.NewString())
		_, err := s.AppendMessage(ctx, id, domain.Message{Role: domain.RoleUser, Text: "first"})
		require.NoError(t, err)

		state.AppendMessage(domain.Message{Role: domain.RoleUser, Text: "question"})
		require.NoError(t, s.Put(ctx, state))

		got, _, err := s.Get(ctx, id)
		require.NoError(t, err)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, "first", got.Messages[0].Text)
		assert.Equal(t, "question", got.Messages[1].Text)
		assert.Equal(t, 2, got.Messages[1].Seq)
	})

	t.Run("returned state is a copy", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()

		state := domain.NewConversationState(uuid.NewString(), "")
		state.AppendMessage(domain.Message{Role: domain.RoleUser, Text: "hello"})
		require.NoError(t, s.Put(ctx, state))

		got, _, err := s.Get(ctx, state.ID)
		require.NoError(t, err)
		got.Messages[0].Text = "changed"

		again, _, err := s.Get(ctx, state.ID)
		require.NoError(t, err)
		assert.Equal(t, "hello", again.Messages[0].Text)
	})

	t.Run("concurrent appends get distinct seqs", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		id := uuid.NewString()

		const writers = 16
		seqs := make([]int, writers)
		var wg sync.WaitGroup
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m, err := s.AppendMessage(ctx, id, domain.Message{Role: domain.RoleUser, Text: fmt.Sprintf("m%d", i)})
				assert.NoError(t, err)
				seqs[i] = m.Seq
			}()
		}
		wg.Wait()

		assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, seqs)
		got, ok, err := s.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, got.Messages, writers)
		for i, m := range got.Messages {
			assert.Equal(t, i+1, m.Seq)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := s.Put(ctx, domain.NewConversationState(uuid.NewString(), ""))
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreSuite(t, func(t *testing.T) domain.SessionStore { return NewMemoryStore() })
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	runStoreSuite(t, func(t *testing.T) domain.SessionStore {
		s, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	state := domain.NewConversationState(uuid.NewString(), "")
	state.SubmitCode("x = 1", nil)
	require.NoError(t, s.Put(context.Background(), state))
	require.NoError(t, s.Put(context.Background(), state))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, s.pathFor(state.ID), dir+string(os.PathSeparator)+entries[0].Name())
}

func TestFileStore_ReleasesConversationLocks(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.NewString()
			_, err := s.AppendMessage(ctx, id, domain.Message{Role: domain.RoleUser, Text: "hi"})
			assert.NoError(t, err)
			_, _, err = s.Get(ctx, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, s.locks.Len())
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	t.Parallel()

	s, err := NewPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	runStoreSuite(t, func(t *testing.T) domain.SessionStore { return s })
}

func TestMergeMessages(t *testing.T) {
	t.Parallel()

	stored := []domain.Message{{Seq: 1, Text: "a"}, {Seq: 2, Text: "b"}}
	pending := []domain.Message{{Seq: 2, Text: "c"}, {Seq: 3, Text: "d"}}

	merged, saved := mergeMessages(stored, pending)
	require.Len(t, merged, 4)
	assert.Equal(t, "c", merged[2].Text)
	assert.Equal(t, 3, merged[2].Seq)
	assert.Equal(t, 4, merged[3].Seq)
	assert.Equal(t, []int{3, 4}, []int{saved[0].Seq, saved[1].Seq})
	assert.Len(t, stored, 2)
	assert.Equal(t, 2, pending[0].Seq)
}
