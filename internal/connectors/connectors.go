package connectors

import (
	"context"

	"mailtriage/internal"
)

// MailConnector pulls unread messages from one mailbox provider.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}
