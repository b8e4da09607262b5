package models

import "time"

// SkipReasonSizeLimit is the only skip reason currently produced by
// the attachment size gate.
const SkipReasonSizeLimit = "exceeds size limit"

// SubjectPlaceholder is used when an inbound message carries no
// Subject header.
const SubjectPlaceholder = "(no subject)"

// InboundMessage is the immutable result of fetching and decoding one
// mailbox message. Produced once per UID.
type InboundMessage struct {
	UID         uint32
	From        string
	To          string
	Subject     string
	SentAt      time.Time
	BodyText    string
	BodyHTML    string
	Attachments []AttachmentRef
	Skipped     []SkippedAttachment
}

// AttachmentPayload is a raw decoded MIME part before the size gate.
type AttachmentPayload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// AttachmentRef points at an attachment accepted by the size gate and
// written to local storage.
type AttachmentRef struct {
	ID          string
	Filename    string
	StoragePath string
	ContentType string
	Size        int64
}

// SkippedAttachment records a payload rejected by the size gate. It
// is never written to storage.
type SkippedAttachment struct {
	Filename string
	Size     int64
	Reason   string
}

// AttachmentResult is the delivery flag for one forwarded attachment.
type AttachmentResult struct {
	Filename string
	Sent     bool
}

// ForwardOutcome is the per-message delivery report. Used for logging
// and notification only; nothing is retried.
type ForwardOutcome struct {
	Sent            bool
	Attachments     []AttachmentResult
	SkippedNotified bool
}
