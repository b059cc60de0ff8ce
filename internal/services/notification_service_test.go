package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/tasks"
	"github.com/K3mp3/FixMatch/internal/utils"
)

func emailTaskTo(to, templateID string) interface{} {
	return mock.MatchedBy(func(task *asynq.Task) bool {
		if task.Type() != tasks.TypeEmailDelivery {
			return false
		}
		var p tasks.EmailTaskPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return false
		}
		return p.To == to && p.TemplateID == templateID && p.Locale == "sv-SE"
	})
}

func TestNotificationService_DispatchEnqueues(t *testing.T) {
	client := new(mockAsynqClient)
	client.On("EnqueueContext", mock.Anything, emailTaskTo("anna@example.com", TemplateVerifyEmail), mock.Anything).
		Return(&asynq.TaskInfo{ID: "task-1"}, nil).Once()

	svc := NewNotificationService(nil, client, "sv-SE")
	err := svc.Dispatch(context.Background(), " anna@example.com ", TemplateVerifyEmail, map[string]string{"code": "123456"})

	assert.NoError(t, err)
	client.AssertExpectations(t)
}

func TestNotificationService_DispatchRequiresRecipient(t *testing.T) {
	client := new(mockAsynqClient)
	svc := NewNotificationService(nil, client, "sv-SE")

	err := svc.Dispatch(context.Background(), "  ", TemplateVerifyEmail, nil)

	assert.ErrorIs(t, err, ErrValidation)
	client.AssertNotCalled(t, "EnqueueContext", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotificationService_OutboxFallbackAndRelay(t *testing.T) {
	database := utils.SetupTestDB(t, "testdb_notification_outbox", outboxCollection)
	ctx := context.Background()

	client := new(mockAsynqClient)
	client.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("redis: connection refused")).Once()
	svc := NewNotificationService(database, client, "sv-SE")

	require.NoError(t, svc.Dispatch(ctx, "shop@example.com", TemplateNewBooking, map[string]string{"type": "Bromsar"}))

	var parked models.OutboxMessage
	require.NoError(t, database.Collection(outboxCollection).FindOne(ctx, bson.M{}).Decode(&parked))
	assert.Equal(t, models.OutboxPending, parked.Status)
	assert.Equal(t, "shop@example.com", parked.To)
	assert.Equal(t, TemplateNewBooking, parked.TemplateID)
	assert.Equal(t, "Bromsar", parked.Data["type"])
	assert.Contains(t, parked.LastError, "connection refused")

	// The relay retries with a task id derived from the outbox row.
	client.On("EnqueueContext", mock.Anything, emailTaskTo("shop@example.com", TemplateNewBooking), mock.MatchedBy(func(opts []asynq.Option) bool {
		for _, o := range opts {
			if o.Type() == asynq.TaskIDOpt && o.Value() == "outbox:"+parked.ID {
				return true
			}
		}
		return false
	})).Return(&asynq.TaskInfo{ID: "outbox:" + parked.ID}, nil).Once()

	relayed, err := svc.RelayOutbox(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, relayed)

	var sent models.OutboxMessage
	require.NoError(t, database.Collection(outboxCollection).FindOne(ctx, bson.M{"_id": parked.ID}).Decode(&sent))
	assert.Equal(t, models.OutboxSent, sent.Status)
	assert.Equal(t, 1, sent.Attempts)
	assert.NotNil(t, sent.SentAt)

	relayed, err = svc.RelayOutbox(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, relayed)
	client.AssertExpectations(t)
}

func TestNotificationService_RelayTreatsTaskIDConflictAsSent(t *testing.T) {
	database := utils.SetupTestDB(t, "testdb_notification_conflict", outboxCollection)
	ctx := context.Background()
	msg := &models.OutboxMessage{
		Base:       models.NewBase(),
		To:         "anna@example.com",
		TemplateID: TemplateContactForm,
		Status:     models.OutboxPending,
	}
	_, err := database.Collection(outboxCollection).InsertOne(ctx, msg)
	require.NoError(t, err)

	client := new(mockAsynqClient)
	client.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, asynq.ErrTaskIDConflict).Once()
	svc := NewNotificationService(database, client, "sv-SE")

	relayed, err := svc.RelayOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, relayed)
}

func TestNotificationService_RelayKeepsFailedMessagesPending(t *testing.T) {
	database := utils.SetupTestDB(t, "testdb_notification_relay_fail", outboxCollection)
	ctx := context.Background()
	msg := &models.OutboxMessage{
		Base:       models.NewBase(),
		To:         "anna@example.com",
		TemplateID: TemplateContactForm,
		Status:     models.OutboxPending,
	}
	_, err := database.Collection(outboxCollection).InsertOne(ctx, msg)
	require.NoError(t, err)

	client := new(mockAsynqClient)
	client.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("still down"))
	svc := NewNotificationService(database, client, "sv-SE")

	relayed, err := svc.RelayOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, relayed)

	var stored models.OutboxMessage
	require.NoError(t, database.Collection(outboxCollection).FindOne(ctx, bson.M{"_id": msg.ID}).Decode(&stored))
	assert.Equal(t, models.OutboxPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "still down", stored.LastError)
}
