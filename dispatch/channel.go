// Package dispatch performs the outbound side effects shared by escalation
// stages and automation rules: tasks, channel messages and in-app
// notifications.
package dispatch

import "context"

// Channel is an outbound message transport such as SMTP or a WhatsApp API.
type Channel interface {
	// Name is the channel identifier stored on message logs ("email", "whatsapp").
	Name() string
	// Configured reports whether credentials are present. An unconfigured
	// channel is skipped, never called.
	Configured() bool
	Send(ctx context.Context, recipient, subject, body string) error
}

// Dispatchers bundles the three dispatchers so callers can share one set.
type Dispatchers struct {
	Tasks         *TaskDispatcher
	Messages      *MessageDispatcher
	Notifications *NotificationDispatcher
}
