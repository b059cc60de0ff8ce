package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/K3mp3/FixMatch/internal/db"
	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/tasks"
)

// INotificationService queues transactional email.
type INotificationService interface {
	// Dispatch enqueues an email, parking it in the outbox when the queue is unavailable.
	// It only fails when neither worked.
	Dispatch(ctx context.Context, to, templateID string, data map[string]string) error
	// RelayOutbox re-enqueues pending outbox messages and returns how many were queued.
	RelayOutbox(ctx context.Context, limit int64) (int, error)
}

const (
	outboxCollection   = "notification_outbox"
	outboxRelayBatch   = 100
	outboxTaskIDPrefix = "outbox:"
)

type notificationService struct {
	db            *mongo.Database
	taskClient    tasks.IAsynqClient
	defaultLocale string
}

// NewNotificationService creates a new INotificationService.
func NewNotificationService(db *mongo.Database, taskClient tasks.IAsynqClient, defaultLocale string) INotificationService {
	return &notificationService{db: db, taskClient: taskClient, defaultLocale: defaultLocale}
}

func (s *notificationService) Dispatch(ctx context.Context, to, templateID string, data map[string]string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("%w: missing recipient for %s", ErrValidation, templateID)
	}
	payload := tasks.EmailTaskPayload{
		To:         to,
		TemplateID: templateID,
		Locale:     s.defaultLocale,
		Data:       data,
	}

	enqueueErr := s.enqueue(ctx, payload)
	if enqueueErr == nil {
		return nil
	}
	log.Printf("Failed to enqueue %s email to %s, writing to outbox: %v", templateID, to, enqueueErr)

	msg := &models.OutboxMessage{
		To:         to,
		TemplateID: templateID,
		Locale:     s.defaultLocale,
		Data:       data,
		Status:     models.OutboxPending,
		LastError:  enqueueErr.Error(),
		CreatedAt:  time.Now().UTC(),
	}
	err := db.Try(func() error {
		msg.GenID()
		_, insertErr := s.db.Collection(outboxCollection).InsertOne(ctx, msg)
		return insertErr
	})
	if err != nil {
		return fmt.Errorf("failed to queue %s email to %s: %w", templateID, to, errors.Join(enqueueErr, err))
	}
	return nil
}

func (s *notificationService) enqueue(ctx context.Context, payload tasks.EmailTaskPayload, opts ...asynq.Option) error {
	if s.taskClient == nil {
		return errors.New("task client not configured")
	}
	task, err := tasks.NewEmailTask(payload)
	if err != nil {
		return err
	}
	_, err = s.taskClient.EnqueueContext(ctx, task, opts...)
	return err
}

func (s *notificationService) RelayOutbox(ctx context.Context, limit int64) (int, error) {
	if limit <= 0 {
		limit = outboxRelayBatch
	}
	collection := s.db.Collection(outboxCollection)
	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(limit)
	cursor, err := collection.Find(ctx, bson.M{"status": models.OutboxPending}, findOpts)
	if err != nil {
		return 0, fmt.Errorf("error querying outbox: %w", err)
	}
	var pending []models.OutboxMessage
	if err := cursor.All(ctx, &pending); err != nil {
		return 0, fmt.Errorf("error decoding outbox: %w", err)
	}

	relayed := 0
	for _, msg := range pending {
		payload := tasks.EmailTaskPayload{
			To:         msg.To,
			TemplateID: msg.TemplateID,
			Locale:     msg.Locale,
			Data:       msg.Data,
			OutboxID:   msg.ID,
		}
		// The task id makes a relay that crashed before marking the row harmless.
		err := s.enqueue(ctx, payload, asynq.TaskID(outboxTaskIDPrefix+msg.ID))
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			log.Printf("Outbox relay: failed to enqueue %s: %v", msg.ID, err)
			_, updErr := collection.UpdateOne(ctx, bson.M{"_id": msg.ID}, bson.M{
				"$inc": bson.M{"attempts": 1},
				"$set": bson.M{"lastError": err.Error()},
			})
			if updErr != nil {
				log.Printf("Outbox relay: failed to record attempt on %s: %v", msg.ID, updErr)
			}
			continue
		}

		now := time.Now().UTC()
		_, err = collection.UpdateOne(ctx, bson.M{"_id": msg.ID, "status": models.OutboxPending}, bson.M{
			"$inc": bson.M{"attempts": 1},
			"$set": bson.M{"status": models.OutboxSent, "sentAt": now},
		})
		if err != nil {
			log.Printf("Outbox relay: enqueued %s but failed to mark it sent: %v", msg.ID, err)
			continue
		}
		relayed++
	}
	return relayed, nil
}
