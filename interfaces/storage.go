package interfaces

import (
	"context"

	"github.com/mailbridge/mailbridge/internal/models"
)

// StorageService persists accepted attachment payloads on the local
// filesystem and owns their retention.
type StorageService interface {
	// EnsureRoot creates the attachments directory if needed.
	EnsureRoot() error

	// Persist writes a payload under a collision-free name and returns
	// its reference.
	Persist(ctx context.Context, payload models.AttachmentPayload) (*models.AttachmentRef, error)

	// Remove deletes one stored attachment file.
	Remove(ctx context.Context, ref models.AttachmentRef) error

	// Sweep deletes stored files strictly older than maxAgeDays.
	// Best-effort: per-file failures are logged and skipped. Returns
	// the number of files removed.
	Sweep(ctx context.Context, maxAgeDays int) (int, error)
}
