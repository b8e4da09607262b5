package interfaces

import (
	"context"

	"github.com/mailbridge/mailbridge/internal/models"
)

// GatewayService delivers forwarded messages to the chat destination
// over the messaging gateway's HTTP endpoint family.
type GatewayService interface {
	// ProbeState checks the gateway instance is authorized.
	ProbeState(ctx context.Context) error

	// SendText delivers one text message to the configured destination.
	SendText(ctx context.Context, body string) error

	// SendFile uploads one stored attachment with a caption.
	SendFile(ctx context.Context, ref models.AttachmentRef, caption string) error

	// Forward renders msg and delivers it: text body first, then each
	// attachment in order with per-attachment failure isolation, then
	// a skip summary when anything was size-gated away. A text-body
	// failure aborts the whole forward.
	Forward(ctx context.Context, msg *models.InboundMessage) (*models.ForwardOutcome, error)
}
