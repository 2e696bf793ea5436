package chat

import (
	"context"
	"errors"
	"fmt"

	"assistant-backend/internal/core/utils"
	"assistant-backend/internal/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRouter maps a caller identity to the chat currently receiving new
// messages. A user with no pointer gets a fresh chat on the first inbound
// message; "new chat" clears the pointer; deleting the active chat does too.
type SessionRouter struct {
	db    *gorm.DB
	store *Store
	locks utils.MutexMap
}

func NewSessionRouter(db *gorm.DB, store *Store) *SessionRouter {
	return &SessionRouter{db: db, store: store, locks: utils.NewMutexMap(4096)}
}

// Active returns the active chat id for the user, or false when no pointer
// is set.
func (r *SessionRouter) Active(ctx context.Context, userId uuid.UUID) (uuid.UUID, bool, error) {
	var pointer database.ActiveChat
	err := r.db.WithContext(ctx).First(&pointer, "user_id = ?", userId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%w: reading active pointer: %v", ErrStorage, err)
	}
	return pointer.ChatId, true, nil
}

// Resolve returns the user's active chat, creating a chat and pointing at it
// when none is active. The per-user lock makes duplicate creates triggered by
// racing requests collapse onto one chat.
func (r *SessionRouter) Resolve(ctx context.Context, userId uuid.UUID) (uuid.UUID, error) {
	if err := r.locks.Lock(userId.String()); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer r.locks.Unlock(userId.String()) //nolint:errcheck

	chatId, ok, err := r.Active(ctx, userId)
	if err != nil {
		return uuid.Nil, err
	}
	if ok {
		// The pointer may reference a chat deleted out from under it; only a
		// definitive miss is repaired. A failed read is not evidence the chat
		// is gone, so it surfaces instead of repointing the user.
		switch err := r.store.ValidateOwnership(ctx, chatId, userId); {
		case err == nil:
			return chatId, nil
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrPermissionDenied):
		default:
			return uuid.Nil, err
		}
	}

	chat, err := r.store.CreateChat(ctx, userId, "")
	if err != nil {
		return uuid.Nil, err
	}
	if err := r.point(ctx, userId, chat.Id); err != nil {
		return uuid.Nil, err
	}
	return chat.Id, nil
}

// Activate points the user at an existing chat after an ownership check.
func (r *SessionRouter) Activate(ctx context.Context, userId, chatId uuid.UUID) error {
	if err := r.store.ValidateOwnership(ctx, chatId, userId); err != nil {
		return err
	}
	return r.point(ctx, userId, chatId)
}

// Reset clears the pointer so the next message starts a fresh chat.
func (r *SessionRouter) Reset(ctx context.Context, userId uuid.UUID) error {
	err := r.db.WithContext(ctx).Delete(&database.ActiveChat{}, "user_id = ?", userId).Error
	if err != nil {
		return fmt.Errorf("%w: clearing active pointer: %v", ErrStorage, err)
	}
	return nil
}

func (r *SessionRouter) point(ctx context.Context, userId, chatId uuid.UUID) error {
	pointer := database.ActiveChat{UserId: userId, ChatId: chatId}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"chat_id"}),
	}).Create(&pointer).Error
	if err != nil {
		return fmt.Errorf("%w: setting active pointer: %v", ErrStorage, err)
	}
	return nil
}
