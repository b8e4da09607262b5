package imap

import (
	"bytes"
	"context"
	"io"
	"net/mail"
	"time"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	er "github.com/mailbridge/mailbridge/internal/errors"
	"github.com/mailbridge/mailbridge/internal/models"
	"github.com/mailbridge/mailbridge/internal/tracing"
)

// FetchMessage retrieves one message by UID and decodes it into an
// InboundMessage. The body section is fetched without PEEK, so the
// server flags the message \Seen as part of retrieval; a parse
// failure after that point means the message will not be seen again
// on later cycles.
func (s *IMAPService) FetchMessage(ctx context.Context, uid uint32) (*models.InboundMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPService.FetchMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("uid", uid)

	if s.client == nil {
		err := er.New(er.KindTransport, "no active session")
		tracing.TraceErr(span, err)
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		err = er.Wrapf(er.KindFetch, err, "failed to fetch message %d", uid)
		tracing.TraceErr(span, err)
		return nil, err
	}
	if msg == nil {
		err := er.Newf(er.KindFetch, "message %d not returned by server", uid)
		tracing.TraceErr(span, err)
		return nil, err
	}

	literal := msg.GetBody(section)
	if literal == nil {
		err := er.Newf(er.KindFetch, "message %d has no body section", uid)
		tracing.TraceErr(span, err)
		return nil, err
	}

	raw, err := io.ReadAll(literal)
	if err != nil {
		err = er.Wrapf(er.KindFetch, err, "failed to read body of message %d", uid)
		tracing.TraceErr(span, err)
		return nil, err
	}

	inbound, payloads, err := parseInboundMessage(uid, msg.Envelope, raw, time.Now())
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.gateAndPersist(ctx, inbound, payloads)

	span.LogFields(
		tracingLog.Int("attachments", len(inbound.Attachments)),
		tracingLog.Int("skipped", len(inbound.Skipped)),
	)
	return inbound, nil
}

// parseInboundMessage decodes the raw RFC822 content into the
// immutable message value. Envelope fields win over parsed headers;
// absent fields get the documented defaults.
func parseInboundMessage(uid uint32, envelope *imap.Envelope, raw []byte, fetchedAt time.Time) (*models.InboundMessage, []models.AttachmentPayload, error) {
	parsed, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, er.Wrapf(er.KindParse, err, "failed to parse message %d", uid)
	}

	inbound := &models.InboundMessage{
		UID:     uid,
		Subject: models.SubjectPlaceholder,
		SentAt:  fetchedAt,
	}

	if envelope != nil {
		if len(envelope.From) > 0 {
			inbound.From = envelope.From[0].Address()
		}
		if len(envelope.To) > 0 {
			inbound.To = envelope.To[0].Address()
		}
		if envelope.Subject != "" {
			inbound.Subject = envelope.Subject
		}
		if !envelope.Date.IsZero() {
			inbound.SentAt = envelope.Date
		}
	} else {
		inbound.From = parsed.GetHeader("From")
		inbound.To = parsed.GetHeader("To")
		if subject := parsed.GetHeader("Subject"); subject != "" {
			inbound.Subject = subject
		}
		if dateHeader := parsed.GetHeader("Date"); dateHeader != "" {
			if date, derr := mail.ParseDate(dateHeader); derr == nil {
				inbound.SentAt = date
			}
		}
	}

	inbound.BodyText = parsed.Text
	inbound.BodyHTML = parsed.HTML

	payloads := make([]models.AttachmentPayload, 0, len(parsed.Attachments)+len(parsed.Inlines))
	for _, part := range parsed.Attachments {
		payloads = append(payloads, models.AttachmentPayload{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Content:     part.Content,
		})
	}
	// Inline parts without a filename are embedded images referenced
	// by the HTML body, not standalone attachments.
	for _, part := range parsed.Inlines {
		if part.FileName == "" {
			continue
		}
		payloads = append(payloads, models.AttachmentPayload{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Content:     part.Content,
		})
	}

	return inbound, payloads, nil
}

// gateAndPersist applies the size gate to each payload in order.
// Accepted payloads are written to storage and referenced on the
// message; oversized ones are recorded as skipped and never written.
// A persist failure only costs that one attachment.
func (s *IMAPService) gateAndPersist(ctx context.Context, inbound *models.InboundMessage, payloads []models.AttachmentPayload) {
	for _, payload := range payloads {
		sizeMB := float64(len(payload.Content)) / (1 << 20)
		if sizeMB > s.maxAttachmentMB {
			s.log.Infof("Skipping attachment %s: %.1f MB exceeds %.0f MB limit", payload.Filename, sizeMB, s.maxAttachmentMB)
			inbound.Skipped = append(inbound.Skipped, models.SkippedAttachment{
				Filename: payload.Filename,
				Size:     int64(len(payload.Content)),
				Reason:   models.SkipReasonSizeLimit,
			})
			continue
		}

		ref, err := s.storage.Persist(ctx, payload)
		if err != nil {
			s.log.Errorf("Failed to persist attachment %s: %v", payload.Filename, err)
			continue
		}
		inbound.Attachments = append(inbound.Attachments, *ref)
	}
}
