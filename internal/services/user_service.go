package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"mathtutor_go_backend/internal/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const passwordCost = 12

type RegisterInput struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// UserDetails is the billing view of a user shown on the dashboard.
type UserDetails struct {
	Plan    string `json:"plan"`
	Credits int64  `json:"credits"`
}

type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*models.User, error)
	EmailAvailable(ctx context.Context, email string) (bool, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	MarkVerified(ctx context.Context, userID uuid.UUID) error
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error)
	Details(ctx context.Context, userID uuid.UUID) (*UserDetails, error)
}

type DefaultUserService struct {
	db     *gorm.DB
	ledger CreditLedger
}

func NewUserService(db *gorm.DB, ledger CreditLedger) *DefaultUserService {
	return &DefaultUserService{db: db, ledger: ledger}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *DefaultUserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, NewValidationError("invalid email address")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return nil, NewValidationError("first name is required")
	}
	if len(in.Password) < 8 {
		return nil, NewValidationError("password must be at least 8 characters")
	}

	available, err := s.EmailAvailable(ctx, email)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), passwordCost)
	if err != nil {
		return nil, err
	}

	credits := DefaultCredits
	user := &models.User{
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: string(hash),
		Credits:      &credits,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (s *DefaultUserService) EmailAvailable(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", normalizeEmail(email)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Authenticate checks the password. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *DefaultUserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *DefaultUserService) MarkVerified(ctx context.Context, userID uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("is_verified", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *DefaultUserService) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	result := s.db.WithContext(ctx).Where("id = ?", userID).First(&user)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &user, nil
}

func (s *DefaultUserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	result := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &user, nil
}

func (s *DefaultUserService) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error) {
	var user models.User
	result := s.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).First(&user)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &user, nil
}

func (s *DefaultUserService) Details(ctx context.Context, userID uuid.UUID) (*UserDetails, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	credits, err := s.ledger.Read(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserDetails{Plan: user.Plan, Credits: credits}, nil
}
