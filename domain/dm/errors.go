package dm

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds shared by every messaging module. Callers classify with errors.Is.
var (
	// ErrValidation indicates malformed input (empty body, malformed id).
	ErrValidation = errors.New("validation error")
	// ErrNotParticipant indicates the caller is not part of the conversation.
	ErrNotParticipant = errors.New("not a participant")
	// ErrNotFound indicates the conversation, message or record is absent.
	ErrNotFound = errors.New("not found")
	// ErrTransientIO indicates the underlying store is unreachable.
	ErrTransientIO = errors.New("transient i/o error")
)

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ClassifyRemote maps an error that crossed the service boundary back onto
// a sentinel. Errors lose their type when sent over NATS, so the match is
// done on message text. Unknown errors are returned unchanged.
func ClassifyRemote(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrNotParticipant, ErrValidation, ErrNotFound, ErrTransientIO} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	msg := strings.ToLower(err.Error())
	var matched []error
	for _, sentinel := range []error{ErrValidation, ErrNotParticipant, ErrNotFound, ErrTransientIO} {
		if strings.Contains(msg, sentinel.Error()) {
			matched = append(matched, sentinel)
		}
	}
	if len(matched) == 0 {
		return err
	}
	return &remoteError{kinds: matched, msg: err.Error()}
}

// remoteError carries the text of a service error together with every
// sentinel recognised in it.
type remoteError struct {
	kinds []error
	msg   string
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() []error { return e.kinds }

// NotParticipantError reports userID as a stranger to conversationID. Send
// treats this as a validation failure, so both kinds are wrapped.
func NotParticipantError(conversationID, userID string) error {
	return fmt.Errorf("%w: %w: user %s in conversation %s", ErrValidation, ErrNotParticipant, userID, conversationID)
}
