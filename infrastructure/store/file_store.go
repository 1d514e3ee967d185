package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"data-sculptor/domain"
	"data-sculptor/keylock"
)

// FileStore keeps one msgpack file per conversation under dir. Writes go to a temp
// file that is renamed over the target, so readers never see a partial record.
type FileStore struct {
	dir   string
	locks *keylock.KeyedMutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return &FileStore{dir: dir, locks: keylock.NewKeyedMutex()}, nil
}

func (s *FileStore) pathFor(conversationID string) string {
	sum := sha256.Sum256([]byte(conversationID))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".mp")
}

// lock serialises readers and writers of one conversation.
func (s *FileStore) lock(ctx context.Context, conversationID string) (func(), error) {
	unlock, err := s.locks.Lock(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return unlock, nil
}

// Get implements domain.SessionStore.
func (s *FileStore) Get(ctx context.Context, conversationID string) (*domain.ConversationState, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	unlock, err := s.lock(ctx, conversationID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	rec, ok, err := s.read(conversationID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec.state(), true, nil
}

// Put implements domain.SessionStore.
func (s *FileStore) Put(ctx context.Context, state *domain.ConversationState) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	unlock, err := s.lock(ctx, state.ID)
	if err != nil {
		return err
	}
	defer unlock()

	next := toRecord(state)
	prev, _, err := s.read(state.ID)
	if err != nil {
		return err
	}
	var saved []domain.Message
	next.Messages, saved = mergeMessages(prev.Messages, state.Unsaved())
	if err := s.write(next); err != nil {
		return err
	}
	state.MarkSaved(saved)
	return nil
}

// AppendMessage implements domain.SessionStore.
func (s *FileStore) AppendMessage(ctx context.Context, conversationID string, m domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	unlock, err := s.lock(ctx, conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	defer unlock()

	rec, ok, err := s.read(conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	if !ok {
		rec = toRecord(domain.NewConversationState(conversationID, ""))
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m = appendAfter(rec.Messages, m)
	rec.Messages = append(rec.Messages, m)
	if err := s.write(rec); err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

func (s *FileStore) read(conversationID string) (conversationRecord, bool, error) {
	f, err := os.Open(s.pathFor(conversationID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return conversationRecord{}, false, nil
		}
		return conversationRecord{}, false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer f.Close()

	var rec conversationRecord
	if err := msgpack.NewDecoder(f).Decode(&rec); err != nil {
		return conversationRecord{}, false, fmt.Errorf("%w: decode %s: %v", domain.ErrStoreUnavailable, conversationID, err)
	}
	if rec.Schema != recordSchema {
		return conversationRecord{}, false, fmt.Errorf("%w: conversation %s has schema %d, want %d",
			domain.ErrStoreUnavailable, conversationID, rec.Schema, recordSchema)
	}
	return rec, true, nil
}

func (s *FileStore) write(rec conversationRecord) error {
	p := s.pathFor(rec.ID)
	f, err := os.CreateTemp(s.dir, "tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	tmp := f.Name()
	renamed := false
	defer func() {
		if renamed {
			return
		}
		if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("Failed to remove temp file %s: %v\n", tmp, err)
		}
	}()

	if err := msgpack.NewEncoder(f).Encode(&rec); err != nil {
		f.Close()
		return fmt.Errorf("%w: encode %s: %v", domain.ErrStoreUnavailable, rec.ID, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	renamed = true
	return nil
}
