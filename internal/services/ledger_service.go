package services

import (
	"context"
	"errors"
	"time"

	"mathtutor_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultCredits int64 = 50

// Fixed per-operation costs.
const (
	CostTextTurn  int64 = 1
	CostImageTurn int64 = 2
	CostQuiz      int64 = 2
	CostRoadmap   int64 = 2
)

// Charge is one debit against the ledger. Roadmaps is added to the
// roadmap-created counter in the same update as the balance change.
type Charge struct {
	Amount   int64
	Roadmaps int64
}

// BillingState is assigned to the user together with a credit top-up.
type BillingState struct {
	Plan           string
	CustomerID     string
	SubscriptionID string
}

// CreditLedger owns the per-user credit balance. Every balance change is a
// single UPDATE with an arithmetic expression; there is no read-then-write.
type CreditLedger interface {
	Read(ctx context.Context, userID uuid.UUID) (int64, error)
	Debit(ctx context.Context, userID uuid.UUID, charge Charge) (int64, error)
	Credit(ctx context.Context, userID uuid.UUID, amount int64, state BillingState, eventID string) (int64, bool, error)
	ClearSubscription(ctx context.Context, userID uuid.UUID) error
}

type DefaultCreditLedger struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCreditLedger(db *gorm.DB) *DefaultCreditLedger {
	return &DefaultCreditLedger{db: db, now: time.Now}
}

// Read returns the balance, initializing it to DefaultCredits if it was never set.
func (l *DefaultCreditLedger) Read(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("id = ? AND credits IS NULL", userID).
			Update("credits", DefaultCredits).Error; err != nil {
			return err
		}
		var err error
		balance, err = selectBalance(tx, userID)
		return err
	})
	return balance, err
}

// Debit decrements the balance unconditionally and returns the new value.
func (l *DefaultCreditLedger) Debit(ctx context.Context, userID uuid.UUID, charge Charge) (int64, error) {
	var balance int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"credits": gorm.Expr("COALESCE(credits, ?) - ?", DefaultCredits, charge.Amount),
		}
		if charge.Roadmaps != 0 {
			updates["roadmap_created"] = gorm.Expr("roadmap_created + ?", charge.Roadmaps)
		}
		result := tx.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		var err error
		balance, err = selectBalance(tx, userID)
		return err
	})
	return balance, err
}

// Credit adds amount to the balance and assigns the billing state. When
// eventID is set it is recorded in the same transaction; a second call with the
// same eventID changes nothing and reports applied=false.
func (l *DefaultCreditLedger) Credit(ctx context.Context, userID uuid.UUID, amount int64, state BillingState, eventID string) (int64, bool, error) {
	var balance int64
	applied := true
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if eventID != "" {
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ProcessedEvent{
				EventID:     eventID,
				Type:        "credit",
				ProcessedAt: l.now(),
			})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				applied = false
				var err error
				balance, err = selectBalance(tx, userID)
				return err
			}
		}

		result := tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"credits":         gorm.Expr("COALESCE(credits, ?) + ?", DefaultCredits, amount),
			"plan":            state.Plan,
			"customer_id":     state.CustomerID,
			"subscription_id": state.SubscriptionID,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		var err error
		balance, err = selectBalance(tx, userID)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return balance, applied, nil
}

// ClearSubscription drops the plan and subscription reference; the balance is kept.
func (l *DefaultCreditLedger) ClearSubscription(ctx context.Context, userID uuid.UUID) error {
	result := l.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"plan":            models.PlanNone,
		"subscription_id": "",
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func selectBalance(tx *gorm.DB, userID uuid.UUID) (int64, error) {
	var user models.User
	err := tx.Select("id", "credits").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return user.Balance(), nil
}
