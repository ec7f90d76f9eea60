package models

import (
	"time"

	"github.com/google/uuid"
)

// OtpType classifies what an OTP authorizes.
type OtpType string

const (
	OtpVerification    OtpType = "VERIFICATION"
	OtpPasswordReset   OtpType = "PASSWORD_RESET"
	OtpPasswordChange  OtpType = "PASSWORD_CHANGE"
	OtpAccountDeletion OtpType = "ACCOUNT_DELETION"
	OtpAccountLinking  OtpType = "ACCOUNT_LINKING"
)

// OperationOtpTypes are the types a logged-in user may request through
// the send-otp-for-operation endpoint.
var OperationOtpTypes = map[OtpType]bool{
	OtpPasswordChange:  true,
	OtpAccountDeletion: true,
	OtpAccountLinking:  true,
}

// Otp is a single-use numeric code bound to an identifier and a
// purpose. Stale rows for an identifier are swept on each new issuance;
// a consumed row is deleted immediately.
type Otp struct {
	BaseModel
	UserID     uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Identifier string    `gorm:"index" json:"identifier"`
	Code       string    `json:"-"`
	Type       OtpType   `json:"type"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// PasswordResetToken is minted when a PASSWORD_RESET OTP is consumed
// and authorizes exactly one reset-password call. It replaces the
// sticky verified-flag handshake the workflow originally relied on.
type PasswordResetToken struct {
	BaseModel
	UserID    uuid.UUID  `gorm:"type:uuid;index" json:"user_id"`
	Token     string     `gorm:"uniqueIndex" json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}
