package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"assistant-backend/internal/core/utils"

	"github.com/google/uuid"
)

// Reserved memory keys. All other keys are free-form.
const (
	KeyFiles   = "files"
	KeyAPIs    = "apis"
	KeyLessons = "lessons"
	KeyName    = "name"
)

const defaultCacheSize = 256

// Store is the per-chat memory map: a durable tier merged with a transient
// cache on read, cache entries winning on conflict. Memory belongs to exactly
// one chat and is never shared across chats.
type Store struct {
	durable Durable
	cache   *sessionCache
	locks   utils.MutexMap
}

func NewStore(durable Durable) *Store {
	return &Store{
		durable: durable,
		cache:   newSessionCache(defaultCacheSize),
		locks:   utils.NewMutexMap(8192),
	}
}

// Update upserts one entry, last-write-wins. The write is acknowledged only
// after the durable tier accepts it; the cache write is best-effort on top.
func (s *Store) Update(ctx context.Context, chatId uuid.UUID, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding memory value for %q: %w", key, err)
	}
	return s.updateRaw(ctx, chatId, key, raw)
}

func (s *Store) updateRaw(ctx context.Context, chatId uuid.UUID, key string, raw json.RawMessage) error {
	if err := s.durable.Store(ctx, chatId, key, raw); err != nil {
		return err
	}
	s.cache.put(chatId, key, raw)
	return nil
}

// GetAll returns the merged memory map; empty map if nothing is stored. A
// durable-tier read failure degrades to whatever the cache holds.
func (s *Store) GetAll(ctx context.Context, chatId uuid.UUID) (map[string]json.RawMessage, error) {
	values, err := s.durable.Load(ctx, chatId)
	if err != nil {
		slog.Error("durable memory read failed, serving cache only", "chat_id", chatId, "error", err)
		values = make(map[string]json.RawMessage)
	}

	for key, value := range s.cache.get(chatId) {
		values[key] = value
	}
	return values, nil
}

// Get returns a single entry and whether it exists.
func (s *Store) Get(ctx context.Context, chatId uuid.UUID, key string) (json.RawMessage, bool, error) {
	values, err := s.GetAll(ctx, chatId)
	if err != nil {
		return nil, false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

// AppendToList appends one item to a list-valued entry. The read-modify-write
// runs under a lock scoped to (chat, key), so concurrent appends to the same
// list never lose writes. A missing or non-list current value starts a fresh
// list.
func (s *Store) AppendToList(ctx context.Context, chatId uuid.UUID, key string, item any) error {
	encoded, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding list item for %q: %w", key, err)
	}

	lockKey := chatId.String() + "/" + key
	if err := s.locks.Lock(lockKey); err != nil {
		return fmt.Errorf("locking memory key %q: %w", key, err)
	}
	defer s.locks.Unlock(lockKey) //nolint:errcheck

	current, _, err := s.Get(ctx, chatId, key)
	if err != nil {
		return err
	}

	var list []json.RawMessage
	if len(current) > 0 {
		if err := json.Unmarshal(current, &list); err != nil {
			slog.Warn("memory entry is not a list, starting over", "chat_id", chatId, "key", key)
			list = nil
		}
	}
	list = append(list, json.RawMessage(encoded))

	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encoding list for %q: %w", key, err)
	}
	return s.updateRaw(ctx, chatId, key, raw)
}

// UpdateMapEntry sets one field of a map-valued entry (used for the reserved
// "files" and "apis" keys), under the same per-(chat, key) serialization as
// AppendToList.
func (s *Store) UpdateMapEntry(ctx context.Context, chatId uuid.UUID, key, field string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding map field for %q: %w", key, err)
	}

	lockKey := chatId.String() + "/" + key
	if err := s.locks.Lock(lockKey); err != nil {
		return fmt.Errorf("locking memory key %q: %w", key, err)
	}
	defer s.locks.Unlock(lockKey) //nolint:errcheck

	current, _, err := s.Get(ctx, chatId, key)
	if err != nil {
		return err
	}

	entries := make(map[string]json.RawMessage)
	if len(current) > 0 {
		if err := json.Unmarshal(current, &entries); err != nil {
			slog.Warn("memory entry is not a map, starting over", "chat_id", chatId, "key", key)
			entries = make(map[string]json.RawMessage)
		}
	}
	entries[field] = json.RawMessage(encoded)

	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding map for %q: %w", key, err)
	}
	return s.updateRaw(ctx, chatId, key, raw)
}

// AddAPIRecord stores a fetched payload under the next free "api_N" field of
// the "apis" map. Key selection happens inside the per-(chat, key) lock, so
// concurrent fetches into the same chat never pick the same key.
func (s *Store) AddAPIRecord(ctx context.Context, chatId uuid.UUID, record APIRecord) (string, error) {
	encoded, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encoding api record: %w", err)
	}

	lockKey := chatId.String() + "/" + KeyAPIs
	if err := s.locks.Lock(lockKey); err != nil {
		return "", fmt.Errorf("locking memory key %q: %w", KeyAPIs, err)
	}
	defer s.locks.Unlock(lockKey) //nolint:errcheck

	current, _, err := s.Get(ctx, chatId, KeyAPIs)
	if err != nil {
		return "", err
	}

	entries := make(map[string]json.RawMessage)
	if len(current) > 0 {
		if err := json.Unmarshal(current, &entries); err != nil {
			slog.Warn("memory entry is not a map, starting over", "chat_id", chatId, "key", KeyAPIs)
			entries = make(map[string]json.RawMessage)
		}
	}

	key := ""
	for n := len(entries) + 1; ; n++ {
		key = fmt.Sprintf("api_%d", n)
		if _, taken := entries[key]; !taken {
			break
		}
	}
	entries[key] = json.RawMessage(encoded)

	raw, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encoding map for %q: %w", KeyAPIs, err)
	}
	if err := s.updateRaw(ctx, chatId, KeyAPIs, raw); err != nil {
		return "", err
	}
	return key, nil
}

// FileRecord is the stored shape of one uploaded file under the "files" key.
type FileRecord struct {
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// AddFile records extracted file content under the "files" key.
func (s *Store) AddFile(ctx context.Context, chatId uuid.UUID, name string, record FileRecord) error {
	return s.UpdateMapEntry(ctx, chatId, KeyFiles, name, record)
}

// Clear wipes a chat's memory. This is always an explicit operation, distinct
// from clearing chat history.
func (s *Store) Clear(ctx context.Context, chatId uuid.UUID) error {
	if err := s.durable.Clear(ctx, chatId); err != nil {
		return err
	}
	s.cache.drop(chatId)
	return nil
}
