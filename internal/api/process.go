package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/gofiber/fiber/v2"

	"github.com/keshin-shop/api/internal/gemini"
	"github.com/keshin-shop/api/internal/ledger"
	"github.com/keshin-shop/api/internal/models"
)

const (
	maxImageSize     = 10 * 1024 * 1024 // 10MB per image
	defaultImageMime = "image/png"

	insufficientCreditsMsg = "You need at least 1 credit to generate a hairstyle."
)

// handleProcess is the transformation orchestrator: authenticate, validate,
// gate on credits, run the two-stage generation, then settle the balance.
func (s *Server) handleProcess(c *fiber.Ctx) error {
	ctx := c.Context()

	// Step 1: authenticate. The bearer token must resolve to the same user
	// the payload claims.
	authHeader := c.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication token required",
		})
	}

	tokenUserID, err := s.auth.VerifyToken(token)
	if err != nil {
		s.logger.Warn("token verification failed", "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid authentication token",
		})
	}

	userID := c.FormValue("userId")
	if userID == "" || tokenUserID != userID {
		s.logger.Warn("user mismatch", "token_user", tokenUserID, "claimed_user", userID)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "User mismatch detected",
		})
	}

	// Step 2: validate inputs.
	sourceHeader, srcErr := c.FormFile("sourceImage")
	targetHeader, tgtErr := c.FormFile("targetImage")
	if srcErr != nil || tgtErr != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Both source and target images are required",
		})
	}
	if sourceHeader.Size > maxImageSize || targetHeader.Size > maxImageSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Image size must be less than 10MB",
		})
	}

	// Step 3: check credit sufficiency before any generation work.
	profile, err := s.ledger.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ledger.ErrProfileNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "User profile not found",
			})
		}
		s.logger.Error("failed to get user profile", "error", err, "user_id", userID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve user profile. Please try again.",
		})
	}

	currentCredits := profile.Credits
	s.logger.Info("credit check", "user_id", userID, "credits", currentCredits)
	if currentCredits <= 0 {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":          "Insufficient credits",
			"userSubMessage": insufficientCreditsMsg,
			"currentCredits": 0,
		})
	}

	sourceImage, err := readUpload(sourceHeader)
	if err != nil {
		s.logger.Error("failed to read source image", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Both source and target images are required",
		})
	}
	targetImage, err := readUpload(targetHeader)
	if err != nil {
		s.logger.Error("failed to read target image", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Both source and target images are required",
		})
	}

	transformID := fmt.Sprintf("transform-%s", time.Now().Format("20060102-150405.000000"))
	s.setTransformStatus(ctx, transformID, models.StatusProcessing)

	// Step 4: the two-stage generation. Credits are untouched on failure.
	out, err := s.gemini.Transform(ctx,
		sourceImage, uploadMime(sourceHeader),
		targetImage, uploadMime(targetHeader),
	)
	if err != nil {
		s.logger.Error("hairstyle transformation failed", "error", err, "user_id", userID)
		s.setTransformStatus(ctx, transformID, models.StatusFailed)
		s.publishEvent(models.TransformEvent{
			TransformID:   transformID,
			UserID:        userID,
			Success:       false,
			CreditsBefore: currentCredits,
			Error:         err.Error(),
			OccurredAt:    time.Now(),
		})

		response := fiber.Map{
			"error":          err.Error(),
			"currentCredits": currentCredits,
		}
		var te *gemini.TransformError
		if errors.As(err, &te) && te.UserSubMessage != "" {
			response["userSubMessage"] = te.UserSubMessage
		}
		return c.Status(fiber.StatusInternalServerError).JSON(response)
	}

	// Step 5: post-hoc decrement, clamped at zero. The read in step 3 and
	// this write bracket the external call; concurrent requests race on the
	// absolute value.
	newCredits := currentCredits - s.cfg.Credits.CostPerTransform
	if newCredits < 0 {
		newCredits = 0
	}
	updated, updateErr := s.ledger.UpdateCredits(ctx, userID, newCredits)
	creditsDeducted := updateErr == nil

	displayCredits := currentCredits
	if creditsDeducted {
		displayCredits = updated.Credits
		s.logger.Info("credit deducted", "user_id", userID, "new_credits", updated.Credits)
	} else {
		// The image is still delivered; the missed decrement is settled by
		// the reconciliation worker.
		s.logger.Warn("credit deduction failed after successful generation", "error", updateErr, "user_id", userID)
	}

	s.setTransformStatus(ctx, transformID, models.StatusCompleted)
	s.publishEvent(models.TransformEvent{
		TransformID:     transformID,
		UserID:          userID,
		Success:         true,
		CreditsDeducted: creditsDeducted,
		CreditsBefore:   currentCredits,
		OccurredAt:      time.Now(),
	})

	// Step 6: respond with the image inline as a data URL.
	return c.JSON(models.TransformResponse{
		Success:         true,
		ProcessedImage:  fmt.Sprintf("data:%s;base64,%s", out.MimeType, out.ImageBase64),
		Message:         "Hair style transformation completed successfully",
		CreditsDeducted: creditsDeducted,
		CurrentCredits:  displayCredits,
		NewCredits:      displayCredits,
	})
}

// handleProcessInfo describes the processing capability.
func (s *Server) handleProcessInfo(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Keshin Shop Processing API",
		"endpoints": fiber.Map{
			"POST /api/process": "Process hair style transformation",
		},
		"usage": fiber.Map{
			"sourceImage": "Image file containing the hairstyle to copy",
			"targetImage": "Image file of the person to apply the hairstyle to",
		},
	})
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func uploadMime(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return defaultImageMime
}

// setTransformStatus mirrors the request's lifecycle into Redis. Best
// effort: a status write never fails the request.
func (s *Server) setTransformStatus(ctx context.Context, transformID, status string) {
	key := fmt.Sprintf("transform:%s", transformID)
	if err := s.db.Redis.Set(ctx, key, status, s.cfg.Redis.StatusTTL).Err(); err != nil {
		s.logger.Warn("failed to set transform status", "key", key, "error", err)
	}
}

// publishEvent emits a transformation outcome to Kafka. Best effort: the
// response to the caller never depends on event delivery.
func (s *Server) publishEvent(event models.TransformEvent) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to marshal transform event", "error", err)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: s.cfg.Kafka.Topic,
		Key:   sarama.StringEncoder(event.UserID),
		Value: sarama.StringEncoder(eventBytes),
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		s.logger.Error("failed to publish transform event", "error", err)
	}
}
