package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/keshin-shop/api/internal/ledger"
	"github.com/keshin-shop/api/internal/models"
)

// handleCheckEmail reports whether a profile already exists for an email
// address (the signup form probes this before creating an account).
func (s *Server) handleCheckEmail(c *fiber.Ctx) error {
	var req models.CheckEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Missing email",
		})
	}

	exists, err := s.ledger.EmailExists(c.Context(), req.Email)
	if err != nil {
		s.logger.Error("email lookup failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to check email",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"exists":  exists,
	})
}

// handleUpdateGender records the gender chosen in the post-signup popup.
func (s *Server) handleUpdateGender(c *fiber.Ctx) error {
	var req models.UpdateGenderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if req.UserID == "" || req.Gender == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Missing userId or gender",
		})
	}

	profile, err := s.ledger.UpdateGender(c.Context(), req.UserID, req.Gender)
	if err != nil {
		if errors.Is(err, ledger.ErrProfileNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "Profile not found",
			})
		}
		s.logger.Error("gender update failed", "error", err, "user_id", req.UserID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to update profile",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    profile,
	})
}
