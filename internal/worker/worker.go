// Package worker consumes transformation events and settles credit
// decrements that failed after a successful generation. Reconciliation is
// deliberately outside the request lifecycle: the request path delivers the
// image and only logs the miss.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/keshin-shop/api/internal/config"
	"github.com/keshin-shop/api/internal/ledger"
	"github.com/keshin-shop/api/internal/models"
	"github.com/keshin-shop/api/pkg/database"
)

type Worker struct {
	cfg      *config.Config
	db       *database.Clients
	ledger   *ledger.Store
	consumer sarama.ConsumerGroup
	ready    chan bool
}

func NewWorker(cfg *config.Config, db *database.Clients, consumer sarama.ConsumerGroup) *Worker {
	return &Worker{
		cfg:      cfg,
		db:       db,
		ledger:   ledger.NewStore(db.DB),
		consumer: consumer,
		ready:    make(chan bool),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	topics := []string{w.cfg.Kafka.Topic}
	slog.Info("Starting reconciliation worker", "topics", topics)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for err := range w.consumer.Errors() {
			slog.Error("Kafka consumer error", "error", err)
		}
	}()

	go func() {
		for {
			if err := w.consumer.Consume(ctx, topics, w); err != nil {
				slog.Error("Error from consumer.Consume", "error", err)
			}
			if ctx.Err() != nil {
				return
			}
			// Reset the ready channel after a new session is created.
			w.ready = make(chan bool)
		}
	}()

	<-w.ready
	slog.Info("Reconciliation worker ready")

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("Context cancelled; shutting down worker")
	}
	return nil
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (w *Worker) Setup(sarama.ConsumerGroupSession) error {
	close(w.ready)
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines
// have exited.
func (w *Worker) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
func (w *Worker) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := w.ProcessEvent(message); err != nil {
			slog.Error("Failed to process transform event", "error", err, "offset", message.Offset)
		}
		session.MarkMessage(message, "")
	}
	return nil
}

// ProcessEvent applies the missed credit decrement for events where a
// generation succeeded without its charge landing. All other events are
// acknowledged unchanged.
func (w *Worker) ProcessEvent(msg *sarama.ConsumerMessage) error {
	var event models.TransformEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to parse transform event: %w", err)
	}

	if !event.NeedsReconciliation() {
		return nil
	}

	ctx := context.Background()

	// Events are consumed at-least-once; a Redis marker keeps a redelivered
	// event from charging twice.
	markerKey := fmt.Sprintf("reconcile:%s", event.TransformID)
	fresh, err := w.db.Redis.SetNX(ctx, markerKey, "done", w.cfg.Redis.StatusTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to set reconciliation marker: %w", err)
	}
	if !fresh {
		slog.Info("Transform already reconciled", "transform_id", event.TransformID)
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= w.cfg.Kafka.RetryMax; attempt++ {
		lastErr = w.reconcile(ctx, event)
		if lastErr == nil {
			slog.Info("Missed credit decrement settled", "transform_id", event.TransformID, "user_id", event.UserID)
			return nil
		}
		slog.Error("Reconciliation attempt failed", "transform_id", event.TransformID, "attempt", attempt, "error", lastErr)
		time.Sleep(w.cfg.Kafka.RetryBackoff)
	}

	// Drop the marker so a redelivery can try again.
	if err := w.db.Redis.Del(ctx, markerKey).Err(); err != nil {
		slog.Error("Failed to clear reconciliation marker", "key", markerKey, "error", err)
	}
	return lastErr
}

func (w *Worker) reconcile(ctx context.Context, event models.TransformEvent) error {
	// Fresh read: the stale balance in the event may have been overwritten
	// by other flows since the request completed.
	profile, err := w.ledger.GetProfile(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("failed to read profile: %w", err)
	}

	newCredits := profile.Credits - w.cfg.Credits.CostPerTransform
	if newCredits < 0 {
		newCredits = 0
	}
	if _, err := w.ledger.UpdateCredits(ctx, event.UserID, newCredits); err != nil {
		return fmt.Errorf("failed to apply decrement: %w", err)
	}
	return nil
}
