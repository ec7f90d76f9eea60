package models

import (
	"time"
)

// Role is the closed set of account roles. Route segments map onto it
// through RoleFromSegment; unknown segments fall back to RoleUser.
type Role string

const (
	RoleUser  Role = "USER"
	RoleOther Role = "OTHER_USER"
	RoleAdmin Role = "ADMIN"
)

var segmentRoles = map[string]Role{
	"user":  RoleUser,
	"other": RoleOther,
	"admin": RoleAdmin,
}

// RoleFromSegment resolves a route segment ("user", "other", "admin")
// to its Role.
func RoleFromSegment(segment string) Role {
	if role, ok := segmentRoles[segment]; ok {
		return role
	}
	return RoleUser
}

// User represents an account identified by email and/or phone. The
// password stays empty until the owner sets one after OTP verification.
// Users are never hard-deleted; IsDeleted marks them inactive while
// their identifiers stay reserved.
type User struct {
	BaseModel
	Email            *string    `gorm:"uniqueIndex" json:"email,omitempty"`
	Phone            *string    `gorm:"uniqueIndex" json:"phone,omitempty"`
	Password         string     `json:"-"`
	Role             Role       `gorm:"default:USER" json:"role"`
	IsVerified       bool       `json:"is_verified"`
	IsOtpVerified    bool       `json:"is_otp_verified"`
	IsDeleteVerified bool       `json:"is_delete_verified"`
	FirstLogin       bool       `gorm:"default:true" json:"first_login"`
	ProfileCompleted bool       `json:"profile_completed"`
	IsDeleted        bool       `json:"is_deleted"`
	Name             string     `json:"name,omitempty"`
	Age              *int       `json:"age,omitempty"`
	Gender           string     `json:"gender,omitempty"`
	Dob              *time.Time `json:"dob,omitempty"`
	Bio              string     `json:"bio,omitempty"`
	ProfileImage     string     `json:"profile_image,omitempty"`

	Addresses      []Address       `json:"addresses,omitempty"`
	LinkedAccounts []LinkedAccount `json:"linked_accounts,omitempty"`
}

// Identifier returns the user's primary contact point, preferring email.
func (u *User) Identifier() string {
	if u.Email != nil && *u.Email != "" {
		return *u.Email
	}
	if u.Phone != nil {
		return *u.Phone
	}
	return ""
}

// HasPassword reports whether the user has finished setting a password.
func (u *User) HasPassword() bool {
	return u.Password != ""
}
