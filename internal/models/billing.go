package models

import "time"

// ProcessedEvent records a payment provider event that has already been applied.
type ProcessedEvent struct {
	EventID     string `gorm:"primaryKey"`
	Type        string
	ProcessedAt time.Time
}
