package api

import (
	"context"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/keshin-shop/api/internal/config"
	"github.com/keshin-shop/api/internal/gemini"
	"github.com/keshin-shop/api/internal/ledger"
	"github.com/keshin-shop/api/pkg/database"
)

// TokenVerifier resolves an access token to the authenticated user's ID.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// Transformer performs the two-stage hairstyle transfer.
type Transformer interface {
	Transform(ctx context.Context, sourceImage []byte, sourceMime string, targetImage []byte, targetMime string) (*gemini.Output, error)
}

type Server struct {
	app      *fiber.App
	cfg      *config.Config
	db       *database.Clients
	ledger   *ledger.Store
	producer sarama.SyncProducer
	auth     TokenVerifier
	gemini   Transformer
	logger   *slog.Logger
}

func NewServer(cfg *config.Config, db *database.Clients, producer sarama.SyncProducer, auth TokenVerifier, transformer Transformer) *Server {
	app := fiber.New(fiber.Config{
		// Two images at up to 10MiB each plus multipart overhead.
		BodyLimit: 32 * 1024 * 1024,
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status}\n",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Server.MaxRequests,
		Expiration: cfg.Server.RequestTimeout,
	}))

	server := &Server{
		app:      app,
		cfg:      cfg,
		db:       db,
		ledger:   ledger.NewStore(db.DB),
		producer: producer,
		auth:     auth,
		gemini:   transformer,
		logger:   slog.Default(),
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	api := s.app.Group("/api")

	api.Post("/process", s.handleProcess)
	api.Get("/process", s.handleProcessInfo)

	api.Post("/auth/check-email", s.handleCheckEmail)
	api.Post("/profile/gender", s.handleUpdateGender)
	api.Post("/referral", s.handleReferral)
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Port)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
