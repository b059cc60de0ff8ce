package models

import "time"

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
)

// OutboxMessage is an email that could not be queued when it was produced.
type OutboxMessage struct {
	Base       `bson:",inline"`
	To         string            `bson:"to" json:"to"`
	TemplateID string            `bson:"templateId" json:"templateId"`
	Locale     string            `bson:"locale" json:"locale"`
	Data       map[string]string `bson:"data" json:"data"`
	Status     OutboxStatus      `bson:"status" json:"status"`
	Attempts   int               `bson:"attempts" json:"attempts"`
	LastError  string            `bson:"lastError,omitempty" json:"lastError,omitempty"`
	CreatedAt  time.Time         `bson:"createdAt" json:"createdAt"`
	SentAt     *time.Time        `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
}
