package models

import (
	"time"

	"gorm.io/datatypes"
)

// RedactionRecord is one completed pipeline run, kept for the history
// view. Only metadata is stored; redacted content never persists.
type RedactionRecord struct {
	ID           uint   `gorm:"primaryKey"`
	RequestID    string `gorm:"uniqueIndex;not null"`
	ClientID     string `gorm:"index"`
	State        string
	TokensUsed   int
	ImageCount   int
	FailedImages int
	Events       datatypes.JSON // progress feed as shown to the user
	CreatedAt    time.Time
}

// EmailRecord is one dispatch attempt outcome.
type EmailRecord struct {
	ID        uint   `gorm:"primaryKey"`
	RequestID string `gorm:"index"`
	Recipient string
	Transport string // which transport delivered it
	Success   bool
	CreatedAt time.Time
}
