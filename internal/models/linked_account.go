package models

import (
	"time"

	"github.com/google/uuid"
)

// LinkedAccountType tells which kind of identifier a linked account holds.
type LinkedAccountType string

const (
	LinkedEmail LinkedAccountType = "EMAIL"
	LinkedPhone LinkedAccountType = "PHONE"
)

// LinkedAccountStatus tracks verification of a linked identifier.
type LinkedAccountStatus string

const (
	LinkedPending  LinkedAccountStatus = "PENDING"
	LinkedVerified LinkedAccountStatus = "VERIFIED"
)

// LinkedAccount is a secondary identifier attached to a user. Once
// verified it can be promoted to primary, which swaps its fields with
// the user's email/phone rather than moving them.
type LinkedAccount struct {
	BaseModel
	UserID     uuid.UUID           `gorm:"type:uuid;index" json:"user_id"`
	Email      *string             `json:"email,omitempty"`
	Phone      *string             `json:"phone,omitempty"`
	Type       LinkedAccountType   `json:"type"`
	Status     LinkedAccountStatus `gorm:"default:PENDING" json:"status"`
	VerifiedAt *time.Time          `json:"verified_at,omitempty"`
}

// Identifier returns the linked identifier, preferring email.
func (l *LinkedAccount) Identifier() string {
	if l.Email != nil && *l.Email != "" {
		return *l.Email
	}
	if l.Phone != nil {
		return *l.Phone
	}
	return ""
}
