// Package queue defines message payloads exchanged over the message broker.
package queue

// MailQueueName is the durable queue outgoing account mail is published to.
const MailQueueName = "auth.mail"

// MailKind distinguishes the templates a mail consumer renders.
type MailKind string

const (
	MailSignupConfirmation MailKind = "signup_confirmation"
	MailPasswordRecovery   MailKind = "password_recovery"
)

// MailEvent is published whenever the auth service needs to send a link by
// email. ActionURL is the complete link the recipient should follow.
type MailEvent struct {
	Kind      MailKind `json:"kind"`
	To        string   `json:"to"`
	ActionURL string   `json:"action_url"`
	ExpiresAt string   `json:"expires_at"`
	CreatedAt string   `json:"created_at"`
}
