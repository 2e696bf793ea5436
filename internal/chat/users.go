package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assistant-backend/internal/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateGuest provisions a formal guest user for an anonymous visitor.
func (s *Store) CreateGuest(ctx context.Context) (database.User, error) {
	now := time.Now().UTC()
	user := database.User{
		Id:        uuid.New(),
		Username:  "Guest",
		IsGuest:   true,
		CreatedAt: now,
		LastSeen:  now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return database.User{}, fmt.Errorf("%w: creating guest user: %v", ErrStorage, err)
	}
	return user, nil
}

// TouchUser bumps the user's last-seen timestamp, reporting whether the user
// exists at all. Users are never otherwise mutated here.
func (s *Store) TouchUser(ctx context.Context, userId uuid.UUID) (bool, error) {
	result := s.db.WithContext(ctx).Model(&database.User{Id: userId}).Update("last_seen", time.Now().UTC())
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: touching user: %v", ErrStorage, result.Error)
	}
	return result.RowsAffected > 0, nil
}
