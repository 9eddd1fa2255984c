package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/keshin-shop/api/internal/ledger"
	"github.com/keshin-shop/api/internal/models"
)

// handleReferral awards the referrer a bonus credit when a referred user
// signs up. Shares the credits field with the transformation decrement; see
// the reconciliation worker for the other side of that coin.
func (s *Server) handleReferral(c *fiber.Ctx) error {
	var req models.ReferralRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if req.ReferralCode == "" || req.NewUserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Missing referral code or new user ID.",
		})
	}

	ctx := c.Context()

	referrer, err := s.ledger.FindByReferralCode(ctx, req.ReferralCode)
	if err != nil {
		if errors.Is(err, ledger.ErrProfileNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "Referral code not found.",
			})
		}
		s.logger.Error("referrer lookup failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to process referral",
		})
	}

	if referrer.ID == req.NewUserID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Self-referrals are not allowed.",
		})
	}

	// The unique constraint on referee_id makes a repeat referral fail here.
	if err := s.ledger.InsertReferral(ctx, referrer.ID, req.NewUserID); err != nil {
		if errors.Is(err, ledger.ErrAlreadyReferred) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"error":   "This user has already been referred.",
			})
		}
		s.logger.Error("referral insert failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to process referral",
		})
	}

	if _, err := s.ledger.UpdateCredits(ctx, referrer.ID, referrer.Credits+1); err != nil {
		s.logger.Error("referrer bonus credit failed", "error", err, "referrer_id", referrer.ID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to process referral",
		})
	}

	s.logger.Info("referral processed", "referrer_id", referrer.ID, "new_user_id", req.NewUserID)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Referrer credited successfully.",
	})
}
