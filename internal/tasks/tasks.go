// Package tasks defines the background task types, their payloads and the
// client used to enqueue them.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TaskType defines the type of a background task.
const (
	TypeEmailDelivery = "email:deliver"
	TypeImageProcess  = "image:process"

	TypeInactivitySweep   = "lifecycle:inactivity_sweep"
	TypeScheduledDeletion = "lifecycle:scheduled_deletion"
	TypeUnverifiedSweep   = "lifecycle:unverified_sweep"
	TypeTrialReminder     = "lifecycle:trial_reminder"
	TypeOfferNotifier     = "lifecycle:offer_notifier"
	TypeRetentionPurge    = "lifecycle:retention_purge"
	TypeOutboxRelay       = "notification:outbox_relay"
)

// Queue names and their priorities.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
	QueueImages   = "images"
)

// Queues maps each queue to its weight on the worker.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
	QueueImages:   5,
}

// IAsynqClient is the subset of *asynq.Client used to enqueue work.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RedisOpt builds the asynq connection options from an existing client.
func RedisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

// NewClient returns an asynq client sharing the connection settings of rdb.
func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(RedisOpt(rdb))
}

// EmailTaskPayload is a template email addressed to one recipient.
type EmailTaskPayload struct {
	To         string            `json:"to"`
	TemplateID string            `json:"template_id"`
	Locale     string            `json:"locale,omitempty"`
	Data       map[string]string `json:"data"`
	OutboxID   string            `json:"outbox_id,omitempty"` // set when relayed from the outbox
}

// NewEmailTask builds an email delivery task on the critical queue.
func NewEmailTask(p EmailTaskPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal email payload: %w", err)
	}
	return asynq.NewTask(TypeEmailDelivery, payload, asynq.Queue(QueueCritical), asynq.MaxRetry(10)), nil
}

// ImageTaskPayload points at an uploaded article image awaiting normalization.
type ImageTaskPayload struct {
	S3Key     string `json:"s3_key"`
	ArticleID string `json:"article_id"`
}

// NewImageTask builds an image normalization task on the images queue.
func NewImageTask(p ImageTaskPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image payload: %w", err)
	}
	return asynq.NewTask(TypeImageProcess, payload, asynq.Queue(QueueImages)), nil
}

// JobTaskPayload identifies one scheduler tick.
type JobTaskPayload struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

// NewJobTask builds a lifecycle job task. A job is never retried: the next
// tick runs it again. With a window, scheduledAt is truncated to the window
// and the task id is derived from it, so every enqueue for the same tick
// collapses into one task.
func NewJobTask(taskType string, scheduledAt time.Time, window, timeout time.Duration) (*asynq.Task, error) {
	tick := scheduledAt.UTC()
	if window > 0 {
		tick = tick.Truncate(window)
	}
	payload, err := json.Marshal(JobTaskPayload{ScheduledAt: tick})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	opts := []asynq.Option{
		asynq.Queue(QueueLow),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
	}
	if window > 0 {
		opts = append(opts, asynq.Unique(window), asynq.TaskID(JobTaskID(taskType, tick)))
	}
	return asynq.NewTask(taskType, payload, opts...), nil
}

// JobTaskID names the task for one tick of a job.
func JobTaskID(taskType string, tick time.Time) string {
	return taskType + ":" + tick.UTC().Format(time.RFC3339)
}

// JobTypes lists every lifecycle task type.
func JobTypes() []string {
	return []string{
		TypeInactivitySweep,
		TypeScheduledDeletion,
		TypeUnverifiedSweep,
		TypeTrialReminder,
		TypeOfferNotifier,
		TypeRetentionPurge,
		TypeOutboxRelay,
	}
}
