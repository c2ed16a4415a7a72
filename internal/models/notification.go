package models

import "time"

// NotificationChannel enumerates supported delivery channels.
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "EMAIL"
	ChannelSMS   NotificationChannel = "SMS"
)

// NotificationStatus captures the dispatch outcome for a log entry.
type NotificationStatus string

const (
	NotificationStatusSent   NotificationStatus = "SENT"
	NotificationStatusFailed NotificationStatus = "FAILED"
)

// NotificationTemplate holds a reusable message with {{placeholder}} slots.
type NotificationTemplate struct {
	ID        string              `db:"id" json:"id"`
	Key       string              `db:"key" json:"key"`
	Subject   string              `db:"subject" json:"subject"`
	Body      string              `db:"body" json:"body"`
	Channel   NotificationChannel `db:"channel" json:"channel"`
	Active    bool                `db:"active" json:"active"`
	CreatedAt time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt time.Time           `db:"updated_at" json:"updated_at"`
}

// Notification is a dispatch log row recorded for every sent message.
type Notification struct {
	ID            string              `db:"id" json:"id"`
	ApplicationID string              `db:"application_id" json:"application_id"`
	TemplateKey   string              `db:"template_key" json:"template_key"`
	Recipient     string              `db:"recipient" json:"recipient"`
	Channel       NotificationChannel `db:"channel" json:"channel"`
	Subject       string              `db:"subject" json:"subject"`
	Body          string              `db:"body" json:"body"`
	Status        NotificationStatus  `db:"status" json:"status"`
	Error         *string             `db:"error" json:"error,omitempty"`
	SentAt        time.Time           `db:"sent_at" json:"sent_at"`
}

// NotificationFilter constrains dispatch log listings.
type NotificationFilter struct {
	ApplicationID string
	Status        NotificationStatus
	Page          int
	PageSize      int
}
