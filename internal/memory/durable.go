package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"assistant-backend/internal/database"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Durable is the narrow contract for the durable tier of the memory store.
// Values are JSON documents; implementations must round-trip nested types
// exactly.
type Durable interface {
	// Load returns all entries for a chat; an empty map if nothing stored.
	Load(ctx context.Context, chatId uuid.UUID) (map[string]json.RawMessage, error)
	// Store upserts one entry, last-write-wins.
	Store(ctx context.Context, chatId uuid.UUID, key string, value json.RawMessage) error
	// Clear removes all entries for a chat.
	Clear(ctx context.Context, chatId uuid.UUID) error
}

// DatabaseTier keeps memory entries in the relational store alongside chats,
// one row per (chat, key) with a JSON-typed value column.
type DatabaseTier struct {
	db *gorm.DB
}

func NewDatabaseTier(db *gorm.DB) *DatabaseTier {
	return &DatabaseTier{db: db}
}

func (t *DatabaseTier) Load(ctx context.Context, chatId uuid.UUID) (map[string]json.RawMessage, error) {
	var entries []database.MemoryEntry
	if err := t.db.WithContext(ctx).Where("chat_id = ?", chatId).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("loading memory entries: %w", err)
	}

	values := make(map[string]json.RawMessage, len(entries))
	for _, entry := range entries {
		values[entry.Key] = json.RawMessage(entry.Value)
	}
	return values, nil
}

func (t *DatabaseTier) Store(ctx context.Context, chatId uuid.UUID, key string, value json.RawMessage) error {
	entry := database.MemoryEntry{
		ChatId:    chatId,
		Key:       key,
		Value:     datatypes.JSON(value),
		UpdatedAt: time.Now().UTC(),
	}
	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("storing memory entry %q: %w", key, err)
	}
	return nil
}

func (t *DatabaseTier) Clear(ctx context.Context, chatId uuid.UUID) error {
	if err := t.db.WithContext(ctx).Delete(&database.MemoryEntry{}, "chat_id = ?", chatId).Error; err != nil {
		return fmt.Errorf("clearing memory entries: %w", err)
	}
	return nil
}
