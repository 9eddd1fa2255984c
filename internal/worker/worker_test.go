package worker

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/IBM/sarama"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshin-shop/api/internal/config"
	"github.com/keshin-shop/api/internal/models"
	"github.com/keshin-shop/api/pkg/database"
)

func setupWorker(t *testing.T) (*Worker, sqlmock.Sqlmock, *miniredis.Miniredis) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	miniRedis, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(miniRedis.Close)

	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Topic:        "transform-events",
			RetryMax:     2,
			RetryBackoff: time.Millisecond,
		},
		Redis: config.RedisConfig{
			StatusTTL: time.Hour,
		},
		Credits: config.CreditsConfig{CostPerTransform: 1},
	}

	clients := &database.Clients{
		DB:    sqlx.NewDb(mockDB, "sqlmock"),
		Redis: redis.NewClient(&redis.Options{Addr: miniRedis.Addr()}),
	}

	return NewWorker(cfg, clients, nil), mock, miniRedis
}

func eventMessage(t *testing.T, event models.TransformEvent) *sarama.ConsumerMessage {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Value: b}
}

func profileRow(credits int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "name", "gender", "referral_code", "credits", "created_at", "updated_at"}).
		AddRow("user-1", "a@b.com", nil, nil, "REF", credits, time.Now(), time.Now())
}

func TestProcessEventAppliesMissedDecrement(t *testing.T) {
	worker, mock, _ := setupWorker(t)

	mock.ExpectQuery("SELECT .+ FROM user_profiles WHERE id").
		WithArgs("user-1").
		WillReturnRows(profileRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE user_profiles SET credits = $1, updated_at = NOW() WHERE id = $2 RETURNING id, credits")).
		WithArgs(2, "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "credits"}).AddRow("user-1", 2))

	err := worker.ProcessEvent(eventMessage(t, models.TransformEvent{
		TransformID:     "transform-1",
		UserID:          "user-1",
		Success:         true,
		CreditsDeducted: false,
		CreditsBefore:   3,
	}))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessEventClampsAtZero(t *testing.T) {
	worker, mock, _ := setupWorker(t)

	mock.ExpectQuery("SELECT .+ FROM user_profiles WHERE id").
		WithArgs("user-1").
		WillReturnRows(profileRow(0))
	mock.ExpectQuery("UPDATE user_profiles SET credits").
		WithArgs(0, "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "credits"}).AddRow("user-1", 0))

	err := worker.ProcessEvent(eventMessage(t, models.TransformEvent{
		TransformID:     "transform-2",
		UserID:          "user-1",
		Success:         true,
		CreditsDeducted: false,
	}))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessEventSkipsSettledOutcomes(t *testing.T) {
	worker, mock, _ := setupWorker(t)

	// Both an already-charged success and a failure need no work; the DB is
	// never touched.
	for _, event := range []models.TransformEvent{
		{TransformID: "t-1", UserID: "user-1", Success: true, CreditsDeducted: true},
		{TransformID: "t-2", UserID: "user-1", Success: false},
	} {
		require.NoError(t, worker.ProcessEvent(eventMessage(t, event)))
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessEventDeduplicatesRedeliveries(t *testing.T) {
	worker, mock, _ := setupWorker(t)

	mock.ExpectQuery("SELECT .+ FROM user_profiles WHERE id").
		WithArgs("user-1").
		WillReturnRows(profileRow(3))
	mock.ExpectQuery("UPDATE user_profiles SET credits").
		WithArgs(2, "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "credits"}).AddRow("user-1", 2))

	event := models.TransformEvent{
		TransformID:     "transform-3",
		UserID:          "user-1",
		Success:         true,
		CreditsDeducted: false,
	}
	require.NoError(t, worker.ProcessEvent(eventMessage(t, event)))
	// Redelivery of the same transform must not charge again.
	require.NoError(t, worker.ProcessEvent(eventMessage(t, event)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessEventRetriesThenClearsMarker(t *testing.T) {
	worker, mock, miniRedis := setupWorker(t)

	for i := 0; i < worker.cfg.Kafka.RetryMax; i++ {
		mock.ExpectQuery("SELECT .+ FROM user_profiles WHERE id").
			WithArgs("user-1").
			WillReturnError(assert.AnError)
	}

	err := worker.ProcessEvent(eventMessage(t, models.TransformEvent{
		TransformID:     "transform-4",
		UserID:          "user-1",
		Success:         true,
		CreditsDeducted: false,
	}))
	require.Error(t, err)
	// The marker is released so a redelivery can retry.
	assert.False(t, miniRedis.Exists("reconcile:transform-4"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessEventBadPayload(t *testing.T) {
	worker, _, _ := setupWorker(t)
	err := worker.ProcessEvent(&sarama.ConsumerMessage{Value: []byte("{not json")})
	assert.Error(t, err)
}
