// Package ledger is the access layer for user_profiles: profile reads and
// the credit balance overwrite, plus the referral and profile bookkeeping
// the signup flows share the credits field with.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/keshin-shop/api/internal/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrAlreadyReferred = errors.New("user has already been referred")
)

const profileColumns = "id, email, name, gender, referral_code, credits, created_at, updated_at"

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// GetProfile reads the profile row for a user.
func (s *Store) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	query := "SELECT " + profileColumns + " FROM user_profiles WHERE id = $1"
	if err := s.db.GetContext(ctx, &profile, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// UpdateCredits overwrites a user's credit balance. This is an unconditional
// last-writer-wins write, not a compare-and-swap.
func (s *Store) UpdateCredits(ctx context.Context, userID string, credits int) (*models.Profile, error) {
	var profile models.Profile
	query := "UPDATE user_profiles SET credits = $1, updated_at = NOW() WHERE id = $2 RETURNING id, credits"
	row := s.db.QueryRowxContext(ctx, query, credits, userID)
	if err := row.Scan(&profile.ID, &profile.Credits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to update credits: %w", err)
	}
	return &profile, nil
}

// EmailExists reports whether a profile with the given email exists.
func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var id string
	query := "SELECT id FROM user_profiles WHERE email = $1"
	err := s.db.GetContext(ctx, &id, query, strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up email: %w", err)
	}
	return true, nil
}

// UpdateGender sets the profile's gender field.
func (s *Store) UpdateGender(ctx context.Context, userID, gender string) (*models.Profile, error) {
	var profile models.Profile
	query := "UPDATE user_profiles SET gender = $1, updated_at = NOW() WHERE id = $2 RETURNING " + profileColumns
	if err := s.db.GetContext(ctx, &profile, query, gender, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to update gender: %w", err)
	}
	return &profile, nil
}

// FindByReferralCode resolves a referral code to its owner's profile.
func (s *Store) FindByReferralCode(ctx context.Context, code string) (*models.Profile, error) {
	var profile models.Profile
	query := "SELECT " + profileColumns + " FROM user_profiles WHERE referral_code = $1"
	if err := s.db.GetContext(ctx, &profile, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to find referrer: %w", err)
	}
	return &profile, nil
}

// InsertReferral logs a referral. The unique constraint on referee_id makes
// a second referral of the same user fail with ErrAlreadyReferred.
func (s *Store) InsertReferral(ctx context.Context, referrerID, refereeID string) error {
	query := "INSERT INTO referrals (referrer_id, referee_id) VALUES ($1, $2)"
	if _, err := s.db.ExecContext(ctx, query, referrerID, refereeID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyReferred
		}
		return fmt.Errorf("failed to insert referral: %w", err)
	}
	return nil
}
