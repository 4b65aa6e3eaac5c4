package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SenderUser      = "User"
	SenderAssistant = "Assistant"
)

// Chat is a tutoring session owned by one user. DefaultFor is set to the
// owner ID on the owner's default session and is NULL elsewhere.
type Chat struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"ownerId"`
	Name        string     `gorm:"not null" json:"name"`
	Description string     `json:"description"`
	DefaultFor  *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
	Messages    []Message  `gorm:"foreignKey:ChatID" json:"-"`
}

func (c *Chat) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Message is one append-only history entry of a chat.
type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChatID    uuid.UUID `gorm:"type:uuid;index;not null" json:"chatId"`
	OwnerID   uuid.UUID `gorm:"type:uuid;index;not null" json:"owner"`
	Sender    string    `gorm:"not null" json:"sender"`
	Text      string    `json:"text"`
	ImageURL  string    `json:"imageUrl"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
