package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"assistant-backend/internal/core/utils"
	"assistant-backend/internal/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chats that were never renamed keep their creation-time placeholder name
// ("Chat 12/14 11:59") and are hidden from listings.
var autoNamePattern = regexp.MustCompile(`^Chat \d{1,2}/\d{1,2} \d{1,2}:\d{2}$`)

func AutoName(now time.Time) string {
	return fmt.Sprintf("Chat %d/%d %d:%02d", int(now.Month()), now.Day(), now.Hour(), now.Minute())
}

func IsAutoName(name string) bool {
	return autoNamePattern.MatchString(name)
}

// Store is the durable record of chats and messages. All mutation of chat
// state goes through its methods; appends to the same chat are serialized by
// a per-chat mutex.
type Store struct {
	db          *gorm.DB
	appendLocks utils.MutexMap
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, appendLocks: utils.NewMutexMap(4096)}
}

func (s *Store) CreateChat(ctx context.Context, userId uuid.UUID, name string) (database.Chat, error) {
	now := time.Now().UTC()
	if name == "" {
		name = AutoName(now)
	}

	chat := database.Chat{
		Id:      uuid.New(),
		UserId:  userId,
		Name:    name,
		Created: now,
		Updated: now,
	}

	err := s.db.WithContext(ctx).Create(&chat).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Fresh id on collision, one retry.
		chat.Id = uuid.New()
		err = s.db.WithContext(ctx).Create(&chat).Error
	}
	if err != nil {
		return database.Chat{}, fmt.Errorf("%w: creating chat: %v", ErrStorage, err)
	}
	return chat, nil
}

// ValidateOwnership is the single authorization predicate: the chat exists
// and is owned by the given user.
func (s *Store) ValidateOwnership(ctx context.Context, chatId, userId uuid.UUID) error {
	var chat database.Chat
	if err := s.db.WithContext(ctx).Select("id", "user_id").First(&chat, "id = ?", chatId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: looking up chat: %v", ErrStorage, err)
	}
	if chat.UserId != userId {
		return ErrPermissionDenied
	}
	return nil
}

func (s *Store) GetChat(ctx context.Context, chatId uuid.UUID) (database.Chat, error) {
	var chat database.Chat
	if err := s.db.WithContext(ctx).First(&chat, "id = ?", chatId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Chat{}, ErrNotFound
		}
		return database.Chat{}, fmt.Errorf("%w: looking up chat: %v", ErrStorage, err)
	}
	return chat, nil
}

// AppendMessage appends one message to a chat and bumps the chat's updated
// timestamp. The per-chat lock makes the append atomic with respect to
// concurrent appends to the same chat.
func (s *Store) AppendMessage(ctx context.Context, chatId uuid.UUID, role, content, imageURL string) (uint, error) {
	if role != database.RoleUser && role != database.RoleAssistant {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	if err := s.appendLocks.Lock(chatId.String()); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer s.appendLocks.Unlock(chatId.String()) //nolint:errcheck

	msg := database.Message{
		ChatId:    chatId,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	if imageURL != "" {
		msg.ImageURL = sql.NullString{String: imageURL, Valid: true}
	}

	err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var exists int64
		if err := txn.Model(&database.Chat{}).Where("id = ?", chatId).Count(&exists).Error; err != nil {
			return fmt.Errorf("%w: checking chat: %v", ErrStorage, err)
		}
		if exists == 0 {
			return ErrNotFound
		}

		if err := txn.Create(&msg).Error; err != nil {
			return fmt.Errorf("%w: saving message: %v", ErrStorage, err)
		}

		if err := txn.Model(&database.Chat{Id: chatId}).Update("updated", msg.Timestamp).Error; err != nil {
			return fmt.Errorf("%w: bumping chat timestamp: %v", ErrStorage, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return msg.Id, nil
}

// GetHistory returns all messages of a chat in timestamp order, insertion
// order on ties. An existing chat with no messages yields an empty slice.
func (s *Store) GetHistory(ctx context.Context, chatId uuid.UUID) ([]database.Message, error) {
	var exists int64
	if err := s.db.WithContext(ctx).Model(&database.Chat{}).Where("id = ?", chatId).Count(&exists).Error; err != nil {
		return nil, fmt.Errorf("%w: checking chat: %v", ErrStorage, err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	var history []database.Message
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatId).
		Order("timestamp ASC, id ASC").
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("%w: reading history: %v", ErrStorage, err)
	}
	return history, nil
}

// ListChats returns the user's chats ordered by last activity, hiding chats
// that still carry an auto-generated placeholder name.
func (s *Store) ListChats(ctx context.Context, userId uuid.UUID) ([]database.Chat, error) {
	var chats []database.Chat
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("updated DESC").
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("%w: listing chats: %v", ErrStorage, err)
	}

	visible := make([]database.Chat, 0, len(chats))
	for _, chat := range chats {
		if !IsAutoName(chat.Name) {
			visible = append(visible, chat)
		}
	}
	return visible, nil
}

func (s *Store) RenameChat(ctx context.Context, chatId, userId uuid.UUID, newName string) error {
	if err := s.ValidateOwnership(ctx, chatId, userId); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Model(&database.Chat{Id: chatId}).
		Updates(map[string]any{"name": newName, "updated": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("%w: renaming chat: %v", ErrStorage, err)
	}
	return nil
}

// DeleteChat removes the chat with its messages and memory entries.
func (s *Store) DeleteChat(ctx context.Context, chatId, userId uuid.UUID) error {
	if err := s.ValidateOwnership(ctx, chatId, userId); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Delete(&database.Message{}, "chat_id = ?", chatId).Error; err != nil {
			return fmt.Errorf("%w: deleting messages: %v", ErrStorage, err)
		}
		if err := txn.Delete(&database.MemoryEntry{}, "chat_id = ?", chatId).Error; err != nil {
			return fmt.Errorf("%w: deleting memory: %v", ErrStorage, err)
		}
		if err := txn.Delete(&database.ActiveChat{}, "chat_id = ?", chatId).Error; err != nil {
			return fmt.Errorf("%w: detaching active pointer: %v", ErrStorage, err)
		}
		if err := txn.Delete(&database.Chat{}, "id = ?", chatId).Error; err != nil {
			return fmt.Errorf("%w: deleting chat: %v", ErrStorage, err)
		}
		return nil
	})
}

// ClearMessages deletes all messages but leaves the chat and its memory
// intact. Wiping memory is a separate, explicit operation.
func (s *Store) ClearMessages(ctx context.Context, chatId, userId uuid.UUID) error {
	if err := s.ValidateOwnership(ctx, chatId, userId); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Delete(&database.Message{}, "chat_id = ?", chatId).Error; err != nil {
			return fmt.Errorf("%w: clearing messages: %v", ErrStorage, err)
		}
		if err := txn.Model(&database.Chat{Id: chatId}).Update("updated", time.Now().UTC()).Error; err != nil {
			return fmt.Errorf("%w: bumping chat timestamp: %v", ErrStorage, err)
		}
		return nil
	})
}
