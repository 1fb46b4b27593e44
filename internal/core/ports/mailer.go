package ports

import "context"

// EmailMessage is a fully rendered transactional email.
type EmailMessage struct {
	ToEmail string
	ToName  string
	Subject string
	HTML    string
}

// Mailer delivers one email through the transactional provider.
// A nil error with an empty message id is still a successful send.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) (messageID string, err error)
	Configured() bool
}
