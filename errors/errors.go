// Package errors provides centralized error definitions for sprucemail.
package errors

import "errors"

// Kind classifies an error the way a caller needs to branch on it,
// independent of the human-readable message. See spec taxonomy in
// the design docs.
type Kind int

const (
	// KindUnknown is the zero value; Error values from older code
	// paths may not have classified themselves yet.
	KindUnknown Kind = iota
	KindServiceUnavailable
	KindNotConnected
	KindCannotAuthenticate
	KindInvalidSender
	KindInvalidRecipient
	KindNoSuchMessage
	KindNoSuchFolder
	KindIllegalName
	KindIO
	KindProtocolGeneric
	KindCanceled
	KindTimeout
	KindSearchError
)

func (k Kind) String() string {
	switch k {
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindNotConnected:
		return "not_connected"
	case KindCannotAuthenticate:
		return "cannot_authenticate"
	case KindInvalidSender:
		return "invalid_sender"
	case KindInvalidRecipient:
		return "invalid_recipient"
	case KindNoSuchMessage:
		return "no_such_message"
	case KindNoSuchFolder:
		return "no_such_folder"
	case KindIllegalName:
		return "illegal_name"
	case KindIO:
		return "io"
	case KindProtocolGeneric:
		return "protocol"
	case KindCanceled:
		return "canceled"
	case KindTimeout:
		return "timeout"
	case KindSearchError:
		return "search_error"
	default:
		return "unknown"
	}
}

// Error is the machine-readable error surfaced to callers per the
// error handling design: a localized one-line reason, a Kind, and
// (for SMTP failures) the numeric protocol code.
type Error struct {
	Kind Kind
	Code int // SMTP numeric code, 0 if not applicable
	Text string
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Code != 0 {
		if e.Text != "" {
			return e.Text
		}
		return e.Kind.String()
	}
	if e.Text != "" {
		return e.Text
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind with a message.
func New(kind Kind, text string) *Error {
	return &Error{Kind: kind, Text: text}
}

// Wrap builds an Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err, Text: err.Error()}
}

// Protocol builds an Error carrying an SMTP response code and decoded text.
func Protocol(code int, text string) *Error {
	return &Error{Kind: KindProtocolGeneric, Code: code, Text: text}
}

// Authentication errors.
var (
	// ErrAuthFailed indicates authentication credentials are invalid.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Mailbox/folder errors.
var (
	// ErrMailboxNotFound indicates the requested mailbox does not exist.
	ErrMailboxNotFound = errors.New("mailbox not found")

	// ErrMailboxLocked indicates the mailbox is locked by another operation.
	ErrMailboxLocked = errors.New("mailbox locked")

	// ErrFolderExists indicates a create/rename target already exists.
	ErrFolderExists = errors.New("folder exists")

	// ErrFolderNotFound indicates the requested folder does not exist.
	ErrFolderNotFound = errors.New("folder not found")

	// ErrIllegalName indicates a folder or message name is not permitted
	// by the backing store (reserved suffix, reserved subdir name, etc).
	ErrIllegalName = errors.New("illegal name")

	// ErrInvalidFolderName is retained for call sites that previously
	// distinguished folder-name validation from general illegal names.
	ErrInvalidFolderName = ErrIllegalName

	// ErrPathTraversal indicates a computed path escaped the store root.
	ErrPathTraversal = errors.New("path escapes store root")
)

// Message errors.
var (
	// ErrMessageNotFound indicates the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrMessageDeleted indicates the message has been marked for deletion.
	ErrMessageDeleted = errors.New("message deleted")

	// ErrNoSuchMessage is a naming alias for ErrMessageNotFound.
	ErrNoSuchMessage = ErrMessageNotFound
)

// Delivery/envelope errors.
var (
	// ErrNoRecipients indicates no valid recipients were provided.
	ErrNoRecipients = errors.New("no recipients")

	// ErrRecipientNotFound indicates a recipient mailbox does not exist.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrQuotaExceeded indicates the mailbox quota has been exceeded.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidSender indicates the envelope sender address is unusable.
	ErrInvalidSender = errors.New("invalid sender")

	// ErrInvalidRecipient indicates an envelope recipient address is unusable.
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// Store/registry errors.
var (
	// ErrStoreNotRegistered indicates no factory is registered for a
	// requested store type.
	ErrStoreNotRegistered = errors.New("store type not registered")

	// ErrStoreConfigInvalid indicates a StoreConfig is missing required fields.
	ErrStoreConfigInvalid = errors.New("invalid store configuration")

	// ErrAuthAgentNotRegistered indicates no factory is registered for a
	// requested auth agent type.
	ErrAuthAgentNotRegistered = errors.New("auth agent type not registered")

	// ErrTransportNotRegistered indicates no factory is registered for a
	// requested transport scheme.
	ErrTransportNotRegistered = errors.New("transport scheme not registered")

	// ErrMaildirNotFound indicates a maildir directory has not been created.
	ErrMaildirNotFound = errors.New("maildir not found")
)

// Session errors.
var (
	// ErrNotConnected indicates an operation requires an active session
	// or connection that is not present.
	ErrNotConnected = errors.New("not connected")

	// ErrServiceUnavailable indicates the requested local or remote
	// resource cannot be reached.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrCanceled indicates the operation's context was canceled.
	ErrCanceled = errors.New("canceled")

	// ErrTimeout indicates the operation's context deadline was exceeded.
	ErrTimeout = errors.New("timeout")
)

// Search errors.
var (
	// ErrSearch is wrapped with the specific parse/eval failure text.
	ErrSearch = errors.New("search error")
)
