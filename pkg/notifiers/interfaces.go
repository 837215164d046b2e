package notifiers

import "context"

// Notifier delivers new-listing events to a downstream channel (Telegram,
// HTTP webhook, SQS, etc).
type Notifier interface {
	ID() string
	Type() string
	Notify(ctx context.Context, evt Event) error
}
