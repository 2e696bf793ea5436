package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoleUser      string = "user"
	RoleAssistant string = "assistant"
)

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"size:100;not null"`
	Email    sql.NullString
	IsGuest  bool `gorm:"default:false"`

	CreatedAt time.Time
	LastSeen  time.Time
}

type Chat struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserId uuid.UUID `gorm:"type:uuid;index;not null"`
	User   *User     `gorm:"foreignKey:UserId"`

	Name    string `gorm:"size:200;not null"`
	Created time.Time
	Updated time.Time

	Messages []Message     `gorm:"foreignKey:ChatId;constraint:OnDelete:CASCADE"`
	Memory   []MemoryEntry `gorm:"foreignKey:ChatId;constraint:OnDelete:CASCADE"`
}

type Message struct {
	// Auto-incrementing id doubles as the insertion-order tiebreaker when
	// two messages land on the same timestamp.
	Id uint `gorm:"primaryKey"`

	ChatId uuid.UUID `gorm:"type:uuid;index;not null"`

	Role      string         `gorm:"size:20;not null"`
	Content   string         `gorm:"not null"`
	ImageURL  sql.NullString `gorm:"size:500"`
	Timestamp time.Time      `gorm:"index"`
}

type MemoryEntry struct {
	ChatId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Key    string    `gorm:"size:100;primaryKey"`

	Value     datatypes.JSON
	UpdatedAt time.Time
}

type ActiveChat struct {
	UserId uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChatId uuid.UUID `gorm:"type:uuid;not null"`
}
