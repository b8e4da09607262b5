package interfaces

import (
	"context"

	"github.com/mailbridge/mailbridge/internal/enum"
	"github.com/mailbridge/mailbridge/internal/models"
)

// IMAPService owns the mail-server session and everything issued over
// it: the unread/sender search and the fetch-and-decode of single
// messages.
type IMAPService interface {
	// Connect establishes and authenticates the session. Errors carry
	// a transport kind for dial failures and an auth kind for rejected
	// credentials.
	Connect(ctx context.Context) error

	// EnsureReady verifies the session is alive, reconnecting when the
	// server dropped it.
	EnsureReady(ctx context.Context) error

	// OpenMailbox selects the named folder read-write.
	OpenMailbox(ctx context.Context, name string) error

	// Disconnect logs out. Idempotent; a no-op when no session is up.
	Disconnect() error

	State() enum.SessionState

	// FindUnreadFromSenders returns UIDs of unseen messages from any
	// of the given senders, in server-reported order. An empty sender
	// list short-circuits to an empty result without a query.
	FindUnreadFromSenders(ctx context.Context, senders []string) ([]uint32, error)

	// FetchMessage retrieves and decodes one message. Retrieval marks
	// the message seen on the server as a side effect.
	FetchMessage(ctx context.Context, uid uint32) (*models.InboundMessage, error)
}
