// Package notify delivers side effects of business operations: email
// to customers and staff, and MQTT events for downstream automation.
// Deliveries are best effort; callers log failures and move on.
package notify

import (
	"context"
	"time"
)

// Attachment is a file carried by an email.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is an outbound email. Body is markdown; it is sent as both
// text/plain and text/html.
type Message struct {
	To          []string
	Cc          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer sends email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Event is a business event published for automation.
type Event struct {
	Type     string         `json:"type"` // e.g. "order.completed"
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Number   string         `json:"number,omitempty"`
	ActorID  string         `json:"actor_id"`
	At       time.Time      `json:"at"`
	Data     map[string]any `json:"data,omitempty"`
}

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Discard drops every message and event. It stands in when email or
// MQTT is not configured.
type Discard struct{}

// Send implements Mailer.
func (Discard) Send(context.Context, Message) error { return nil }

// Publish implements Publisher.
func (Discard) Publish(context.Context, Event) error { return nil }
