package whatsapp

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mailbridge/mailbridge/internal/models"
	"github.com/mailbridge/mailbridge/internal/utils"
)

// renderMessage builds the forwarded text body: a fixed header block,
// the message fields, the body (plain text preferred, HTML stripped
// as a fallback), and an attachment summary line only when anything
// was sent or skipped.
func renderMessage(msg *models.InboundMessage) string {
	var b strings.Builder

	b.WriteString("📨 New email received\n")
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "Date: %s\n", msg.SentAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)

	body := msg.BodyText
	if body == "" && msg.BodyHTML != "" {
		body = utils.HTMLToText(msg.BodyHTML)
	}
	if body != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(body))
		b.WriteString("\n")
	}

	if len(msg.Attachments) > 0 || len(msg.Skipped) > 0 {
		fmt.Fprintf(&b, "\n📎 Attachments: %d forwarded, %d skipped\n", len(msg.Attachments), len(msg.Skipped))
	}

	return b.String()
}

// renderSkipSummary lists the attachments dropped by the size gate.
func renderSkipSummary(skipped []models.SkippedAttachment) string {
	var b strings.Builder

	b.WriteString("🚫 Skipped attachments:\n")
	for _, skip := range skipped {
		fmt.Fprintf(&b, "- %s (%s): %s\n", skip.Filename, humanize.Bytes(uint64(skip.Size)), skip.Reason)
	}

	return b.String()
}
