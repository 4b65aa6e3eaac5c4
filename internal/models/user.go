package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PlanNone    = ""
	PlanBasic   = "basic"
	PlanGold    = "gold"
	PlanPremium = "premium"
)

type User struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email          string    `gorm:"uniqueIndex;not null"`
	FirstName      string
	LastName       string
	PasswordHash   string `json:"-"`
	IsVerified     bool   `gorm:"default:false"`
	Credits        *int64 `gorm:"default:50"` // nil means the balance was never initialized
	Plan           string `gorm:"default:''"`
	CustomerID     string `gorm:"index"`
	SubscriptionID string `gorm:"index"`
	RoadmapCreated int64  `gorm:"default:0;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Balance returns the credit balance, treating an unset value as zero.
func (u User) Balance() int64 {
	if u.Credits == nil {
		return 0
	}
	return *u.Credits
}
