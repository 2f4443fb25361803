package services

// The coordinator reports four kinds of client-visible failures. All of them
// are recovered at the handler boundary and surfaced as a private error event
// (or a 4xx on the control plane); none ever terminates a connection.

// ValidationError reports a missing or malformed required field.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

// NotFoundError reports a room code that is not live.
type NotFoundError struct{ msg string }

func (e *NotFoundError) Error() string { return e.msg }

// StateError reports an action that requires a joined session.
type StateError struct{ msg string }

func (e *StateError) Error() string { return e.msg }

// AttachmentError reports an image payload that failed decode, validation or
// transform.
type AttachmentError struct{ msg string }

func (e *AttachmentError) Error() string { return e.msg }

func newAttachmentError(msg string) *AttachmentError {
	return &AttachmentError{msg: msg}
}

var (
	ErrUsernameRequired   = &ValidationError{msg: "Username is required"}
	ErrJoinFieldsRequired = &ValidationError{msg: "Room code and username are required"}
	ErrMessageRequired    = &ValidationError{msg: "Message or image is required"}
	ErrRoomNotFound       = &NotFoundError{msg: "Room does not exist"}
	ErrNotInRoom          = &StateError{msg: "Not in a room"}
)
