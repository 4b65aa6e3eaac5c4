package services

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"

	"mathtutor_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatServiceDB persists tutoring sessions and their message history.
type ChatServiceDB interface {
	EnsureSession(ctx context.Context, ownerID uuid.UUID) (*models.Chat, error)
	CreateChat(ctx context.Context, ownerID uuid.UUID, name, description string) (*models.Chat, error)
	ListChats(ctx context.Context, ownerID uuid.UUID) ([]models.Chat, error)
	GetChat(ctx context.Context, ownerID, chatID uuid.UUID) (*models.Chat, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
	CountMessages(ctx context.Context, chatID uuid.UUID, sender string) (int64, error)
	ListMessages(ctx context.Context, ownerID, chatID uuid.UUID) ([]models.Message, error)
}

// DefaultChatService implements ChatServiceDB
type DefaultChatService struct {
	db *gorm.DB
}

// NewChatServiceDB creates a new DefaultChatService
func NewChatServiceDB(db *gorm.DB) *DefaultChatService {
	return &DefaultChatService{db: db}
}

// EnsureSession returns the owner's default session. The oldest existing chat
// is promoted on first use; an owner without chats gets one with a random
// name. The unique default_for marker keeps concurrent callers on one chat.
func (s *DefaultChatService) EnsureSession(ctx context.Context, ownerID uuid.UUID) (*models.Chat, error) {
	db := s.db.WithContext(ctx)
	if chat, err := s.defaultSession(db, ownerID); err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
		return chat, err
	}

	var oldest models.Chat
	err := db.Where("owner_id = ?", ownerID).Order("created_at asc").First(&oldest).Error
	switch {
	case err == nil:
		// A concurrent caller may have promoted another chat; the reload below settles it.
		if err := db.Model(&models.Chat{}).
			Where("id = ? AND default_for IS NULL", oldest.ID).
			Update("default_for", ownerID).Error; err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Str("userID", ownerID.String()).Msg("Default session promotion lost")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		zerolog.Ctx(ctx).Debug().Str("userID", ownerID.String()).Msg("Creating first chat session")
		marker := ownerID
		chat := &models.Chat{OwnerID: ownerID, Name: randomChatName(10), DefaultFor: &marker}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "default_for"}},
			DoNothing: true,
		}).Create(chat).Error; err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return s.defaultSession(db, ownerID)
}

func (s *DefaultChatService) defaultSession(db *gorm.DB, ownerID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	if err := db.Where("default_for = ?", ownerID).First(&chat).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *DefaultChatService) CreateChat(ctx context.Context, ownerID uuid.UUID, name, description string) (*models.Chat, error) {
	chat := &models.Chat{
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
	}
	if chat.Name == "" {
		chat.Name = randomChatName(10)
	}
	if err := s.db.WithContext(ctx).Create(chat).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *DefaultChatService) ListChats(ctx context.Context, ownerID uuid.UUID) ([]models.Chat, error) {
	chats := []models.Chat{}
	result := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at asc").Find(&chats)
	if result.Error != nil {
		return nil, result.Error
	}
	return chats, nil
}

func (s *DefaultChatService) GetChat(ctx context.Context, ownerID, chatID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", chatID, ownerID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// SaveMessage appends a message to an existing chat
func (s *DefaultChatService) SaveMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

// CountMessages counts messages of one sender in a chat. An empty sender counts all.
func (s *DefaultChatService) CountMessages(ctx context.Context, chatID uuid.UUID, sender string) (int64, error) {
	var count int64
	query := s.db.WithContext(ctx).Model(&models.Message{}).Where("chat_id = ?", chatID)
	if sender != "" {
		query = query.Where("sender = ?", sender)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListMessages returns a chat's messages ordered by creation time. The chat
// must belong to ownerID.
func (s *DefaultChatService) ListMessages(ctx context.Context, ownerID, chatID uuid.UUID) ([]models.Message, error) {
	if _, err := s.GetChat(ctx, ownerID, chatID); err != nil {
		return nil, err
	}

	messages := []models.Message{}
	result := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("created_at asc").Find(&messages)
	if result.Error != nil {
		return nil, result.Error
	}
	return messages, nil
}

const chatNameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomChatName(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()[:n]
	}
	for i := range buf {
		buf[i] = chatNameAlphabet[int(buf[i])%len(chatNameAlphabet)]
	}
	return string(buf)
}
