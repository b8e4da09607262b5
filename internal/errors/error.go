package errors

import "github.com/pkg/errors"

// Kind classifies a failure at the point it is first observed, so
// callers never have to pattern-match error text to decide policy.
type Kind string

const (
	// KindAuth covers credential rejections. Not recoverable by
	// reconnecting; the process reports and stops trying.
	KindAuth Kind = "auth"
	// KindTransport covers dial failures and dropped connections.
	// Recovered by a full session teardown and reconnect.
	KindTransport Kind = "transport"
	// KindProtocol covers unexpected server responses after a healthy
	// handshake, such as a failed mailbox SELECT.
	KindProtocol Kind = "protocol"
	KindFetch    Kind = "fetch"
	KindParse    Kind = "parse"
	KindStorage  Kind = "storage"
	KindGateway  Kind = "gateway"
)

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	return e.err.Error()
}

func (e *kindError) Unwrap() error {
	return e.err
}

// New creates a tagged error from a message.
func New(kind Kind, message string) error {
	return &kindError{kind: kind, err: errors.New(message)}
}

// Newf creates a tagged error from a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &kindError{kind: kind, err: errors.Errorf(format, args...)}
}

// Wrap tags err with kind and annotates it with a message. Returns
// nil when err is nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: errors.Wrap(err, message)}
}

// Wrapf tags err with kind and annotates it with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: errors.Wrapf(err, format, args...)}
}

// KindOf walks the error chain and returns the first tag found, or
// the empty Kind for untagged errors.
func KindOf(err error) Kind {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			return ke.kind
		}
		err = errors.Unwrap(err)
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func IsAuth(err error) bool {
	return Is(err, KindAuth)
}

func IsTransport(err error) bool {
	return Is(err, KindTransport)
}
