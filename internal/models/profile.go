package models

import (
	"database/sql"
	"time"
)

// Profile represents a row in the user_profiles table. The id matches the
// auth backend's user id.
type Profile struct {
	ID           string         `json:"id" db:"id"`
	Email        string         `json:"email" db:"email"`
	Name         sql.NullString `json:"name" db:"name"`
	Gender       sql.NullString `json:"gender" db:"gender"`
	ReferralCode string         `json:"referral_code" db:"referral_code"`
	Credits      int            `json:"credits" db:"credits"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// UpdateGenderRequest is the body of POST /api/profile/gender.
type UpdateGenderRequest struct {
	UserID string `json:"userId"`
	Gender string `json:"gender"`
}

// CheckEmailRequest is the body of POST /api/auth/check-email.
type CheckEmailRequest struct {
	Email string `json:"email"`
}

// ReferralRequest is the body of POST /api/referral.
type ReferralRequest struct {
	ReferralCode string `json:"referralCode"`
	NewUserID    string `json:"newUserId"`
}
