package services

import (
	"context"

	"mathtutor_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type OperationKind string

const (
	KindTutorText  OperationKind = "tutor_text"
	KindTutorImage OperationKind = "tutor_image"
	KindQuiz       OperationKind = "quiz"
	KindRoadmap    OperationKind = "roadmap"
)

// HistoryTarget asks the gateway to record the prompt and the reply in the
// owner's tutoring session. ChatID picks a session explicitly; when it is
// zero the owner's default session is used.
type HistoryTarget struct {
	OwnerID  uuid.UUID
	ChatID   uuid.UUID
	Text     string
	ImageURL string
}

// MeteredOperation describes one credit-charged generation. Build validates
// the payload and renders the prompt; it must not have side effects.
type MeteredOperation struct {
	Kind    OperationKind
	Cost    Charge
	Build   func() (GenerationRequest, error)
	History *HistoryTarget
}

type MeteredResult struct {
	Generation *Generation
	Balance    int64
	ChatID     uuid.UUID
}

type MeteredServiceConfig struct {
	// RequirePositiveBalance rejects an operation when the balance is already
	// zero or below. The debit itself is never floored.
	RequirePositiveBalance bool
}

type MeteredService struct {
	ledger    CreditLedger
	chats     ChatServiceDB
	users     UserService
	generator Generator
	cfg       MeteredServiceConfig
}

func NewMeteredService(ledger CreditLedger, chats ChatServiceDB, users UserService, generator Generator, cfg MeteredServiceConfig) *MeteredService {
	return &MeteredService{
		ledger:    ledger,
		chats:     chats,
		users:     users,
		generator: generator,
		cfg:       cfg,
	}
}

// Run validates, records the prompt, generates, records the reply, then
// debits, in that order. A failed generation charges nothing.
func (s *MeteredService) Run(ctx context.Context, userID uuid.UUID, op MeteredOperation) (*MeteredResult, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("userID", userID.String()).
		Str("operation", string(op.Kind)).
		Logger()

	req, err := op.Build()
	if err != nil {
		return nil, err
	}

	if s.cfg.RequirePositiveBalance {
		balance, err := s.ledger.Read(ctx, userID)
		if err != nil {
			return nil, err
		}
		if balance <= 0 {
			logger.Info().Int64("balance", balance).Msg("Rejected metered operation on empty balance")
			return nil, ErrInsufficientCredits
		}
	}

	result := &MeteredResult{}
	if op.History != nil {
		chatID, err := s.resolveChat(ctx, op.History)
		if err != nil {
			return nil, err
		}
		result.ChatID = chatID
		if err := s.chats.SaveMessage(ctx, &models.Message{
			ChatID:   chatID,
			OwnerID:  op.History.OwnerID,
			Sender:   models.SenderUser,
			Text:     op.History.Text,
			ImageURL: op.History.ImageURL,
		}); err != nil {
			return nil, err
		}
	}

	gen, err := s.generator.Generate(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("Generation failed")
		return nil, err
	}
	result.Generation = gen

	if op.History != nil {
		if err := s.chats.SaveMessage(ctx, &models.Message{
			ChatID:  result.ChatID,
			OwnerID: op.History.OwnerID,
			Sender:  models.SenderAssistant,
			Text:    gen.Content,
		}); err != nil {
			return nil, err
		}
	}

	balance, err := s.ledger.Debit(ctx, userID, op.Cost)
	if err != nil {
		logger.Error().Err(err).Int64("cost", op.Cost.Amount).Msg("Debit failed after generation")
		return nil, err
	}
	result.Balance = balance

	logger.Info().Int64("cost", op.Cost.Amount).Int64("balance", balance).Msg("Metered operation completed")
	return result, nil
}

func (s *MeteredService) resolveChat(ctx context.Context, h *HistoryTarget) (uuid.UUID, error) {
	if h.ChatID == uuid.Nil {
		chat, err := s.chats.EnsureSession(ctx, h.OwnerID)
		if err != nil {
			return uuid.Nil, err
		}
		return chat.ID, nil
	}
	if _, err := s.chats.GetChat(ctx, h.OwnerID, h.ChatID); err != nil {
		return uuid.Nil, err
	}
	return h.ChatID, nil
}

type DashboardStats struct {
	ChatTurns int64
	Roadmaps  int64
}

// DashboardStats counts the messages of the default session, creating it on
// first use, and the roadmaps generated so far.
func (s *MeteredService) DashboardStats(ctx context.Context, userID uuid.UUID) (*DashboardStats, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.EnsureSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	turns, err := s.chats.CountMessages(ctx, chat.ID, "")
	if err != nil {
		return nil, err
	}
	return &DashboardStats{ChatTurns: turns, Roadmaps: user.RoadmapCreated}, nil
}
